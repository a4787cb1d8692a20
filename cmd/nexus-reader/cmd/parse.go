package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spicery/nexus-reader/pkg/matrix"
)

type setsOutput struct {
	DefType      string           `json:"deftype"`
	CharSets     map[string][]int `json:"charsets,omitempty"`
	DefaultExSet string           `json:"default_exset,omitempty"`
}

type parseOutput struct {
	Taxa        []matrix.Taxon   `json:"taxa"`
	Matrices    []*matrix.Matrix `json:"matrices"`
	Assumptions []setsOutput     `json:"assumptions,omitempty"`
}

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse a NEXUS file and print its matrices as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, _, err := parseInput(args)
		if err != nil {
			return err
		}

		out := parseOutput{Taxa: res.Taxa, Matrices: res.Matrices}
		for _, a := range res.Assumptions {
			sets := setsOutput{DefType: a.DefType(), DefaultExSet: a.DefaultExSet()}
			for _, name := range a.CharSetNames() {
				if sets.CharSets == nil {
					sets.CharSets = make(map[string][]int)
				}
				s, _ := a.CharSet(name)
				sets.CharSets[name] = s.Sorted()
			}
			out.Assumptions = append(out.Assumptions, sets)
		}

		w, closeOutput, err := openOutput()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			closeOutput()
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return closeOutput()
	},
}

func init() {
	parseCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (defaults to stdout)")
	rootCmd.AddCommand(parseCmd)
}
