package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/spicery/nexus-reader/pkg/nexus"
)

var (
	symbolsFile string
	verbose     bool
	outputFile  string
)

var rootCmd = &cobra.Command{
	Use:   "nexus-reader",
	Short: "Read NEXUS phylogenetic data files",
	Long: `nexus-reader reads the TAXA, CHARACTERS and ASSUMPTIONS blocks of a
NEXUS file into taxa, characters and a sparse matrix of cells.

Commands:
  parse    - parse a file and print its matrices as JSON
  tokens   - print the tokens of a file, one JSON object per line
  symbols  - print the default symbols of every DATATYPE
  export   - parse a file and save its matrices to a SQLite database
  list     - list the matrices saved in a database
  show     - print a saved matrix as JSON`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&symbolsFile, "symbols", "", "YAML or TOML file of default symbols per DATATYPE (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log block and command progress to stderr")
}

// newLogger returns the message sink for the reader.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadSymbols returns the symbol table named by --symbols, or nil for the
// built-in defaults.
func loadSymbols() (*nexus.SymbolTable, error) {
	if symbolsFile == "" {
		return nil, nil
	}
	file, err := nexus.LoadSymbolsFile(symbolsFile)
	if err != nil {
		return nil, err
	}
	table, err := nexus.ApplySymbolsToDefaults(file)
	if err != nil {
		return nil, fmt.Errorf("failed to apply symbols file '%s': %w", symbolsFile, err)
	}
	return table, nil
}

// readInput reads the named file, or stdin when there is none or it is "-".
func readInput(args []string) (string, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(data), "stdin", nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", fmt.Errorf("failed to read file '%s': %w", args[0], err)
	}
	return string(data), args[0], nil
}

// openOutput returns stdout, or the file named by --output.
func openOutput() (io.Writer, func() error, error) {
	if outputFile == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	file, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file '%s': %w", outputFile, err)
	}
	return file, file.Close, nil
}

// parseInput parses a NEXUS file with the configured symbols and logger.
func parseInput(args []string) (*nexus.Result, string, error) {
	input, source, err := readInput(args)
	if err != nil {
		return nil, "", err
	}
	table, err := loadSymbols()
	if err != nil {
		return nil, "", err
	}
	res, err := nexus.Parse(input, nexus.Config{Symbols: table, Logger: newLogger()})
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", source, err)
	}
	return res, source, nil
}
