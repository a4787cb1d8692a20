package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spicery/nexus-reader/pkg/tokenizer"
)

var (
	tokensNewlines    bool
	tokensUnderscores bool
	tokensSingle      bool
	tokensExit0       bool
)

var tokensCmd = &cobra.Command{
	Use:   "tokens [file]",
	Short: "Print the tokens of a file, one JSON object per line",
	Long: `Print the tokens of a file, one JSON object per line. Tokens read before
an error are still printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, source, err := readInput(args)
		if err != nil {
			return err
		}

		opts := tokenizer.SaveCommandComments
		if tokensNewlines {
			opts |= tokenizer.NewlineIsToken
		}
		if tokensUnderscores {
			opts |= tokenizer.PreserveUnderscores
		}
		if tokensSingle {
			opts |= tokenizer.SingleCharacterToken
		}
		tokens, tokenizeErr := tokenizer.New(input).Tokenize(opts)

		w, closeOutput, err := openOutput()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, token := range tokens {
			if err := enc.Encode(token); err != nil {
				closeOutput()
				return fmt.Errorf("failed to encode JSON: %w", err)
			}
		}
		if err := closeOutput(); err != nil {
			return fmt.Errorf("failed to close output file '%s': %w", outputFile, err)
		}

		if tokenizeErr != nil && !tokensExit0 {
			return fmt.Errorf("%s: %w", source, tokenizeErr)
		}
		return nil
	},
}

func init() {
	tokensCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (defaults to stdout)")
	tokensCmd.Flags().BoolVar(&tokensNewlines, "newlines", false, "Return line ends as tokens")
	tokensCmd.Flags().BoolVar(&tokensUnderscores, "underscores", false, "Keep '_' instead of converting it to a space")
	tokensCmd.Flags().BoolVar(&tokensSingle, "single", false, "Return one character per token")
	tokensCmd.Flags().BoolVar(&tokensExit0, "exit0", false, "Exit with code 0 even on tokenization errors")
	rootCmd.AddCommand(tokensCmd)
}
