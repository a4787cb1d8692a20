package cmd

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spicery/nexus-reader/pkg/nexus"
)

var symbolsFormat string

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Print the default symbols and equates of every DATATYPE",
	Long: `Print the default symbols and equates of every DATATYPE in the form read
by --symbols. With --symbols, the printed table includes its overrides.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadSymbols()
		if err != nil {
			return err
		}
		if table == nil {
			table = nexus.DefaultSymbolTable()
		}

		w, closeOutput, err := openOutput()
		if err != nil {
			return err
		}
		switch symbolsFormat {
		case "yaml":
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			err = enc.Encode(table.File())
			if err == nil {
				err = enc.Close()
			}
		case "toml":
			err = toml.NewEncoder(w).Encode(table.File())
		default:
			err = fmt.Errorf("unknown format '%s': expecting yaml or toml", symbolsFormat)
		}
		if err != nil {
			closeOutput()
			return err
		}
		return closeOutput()
	},
}

func init() {
	symbolsCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (defaults to stdout)")
	symbolsCmd.Flags().StringVar(&symbolsFormat, "format", "yaml", "Output format: yaml or toml")
	rootCmd.AddCommand(symbolsCmd)
}
