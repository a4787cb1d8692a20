package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spicery/nexus-reader/pkg/store"
)

var dbPath string

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Parse a NEXUS file and save its matrices to a SQLite database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, source, err := parseInput(args)
		if err != nil {
			return err
		}
		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()

		for _, m := range res.Matrices {
			id, err := s.SaveMatrix(cmd.Context(), m, source)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the matrices saved in a database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()

		matrices, err := s.ListMatrices(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tDATATYPE\tNTAX\tNCHAR\tSOURCE\tSAVED")
		for _, m := range matrices {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", m.ID, m.Title, m.Datatype, m.NTax, m.NChar,
				m.Source, m.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved matrix as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()

		m, err := s.LoadMatrix(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load matrix '%s': %w", args[0], err)
		}
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{exportCmd, listCmd, showCmd} {
		c.Flags().StringVar(&dbPath, "db", "./data/matrices.db", "SQLite database file")
		rootCmd.AddCommand(c)
	}
}
