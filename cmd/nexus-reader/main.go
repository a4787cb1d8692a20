package main

import (
	"os"

	"github.com/spicery/nexus-reader/cmd/nexus-reader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
