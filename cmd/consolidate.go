package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sjsage522/bikecrawler/internal/consolidate"
)

func init() {
	rootCmd.AddCommand(consolidateCmd)
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate [paths...]",
	Short: "Loads CSV, JSON and JSON lines dumps into the database. Directories are searched recursively.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if len(args) == 0 {
			args = []string{cfg.OutputDir}
		}

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := consolidate.New(s, nil).IngestFiles(ctx, args...)
		printStats(cmd, stats)
		return err
	},
}

func printStats(cmd *cobra.Command, stats consolidate.Stats) {
	fmt.Fprintf(cmd.OutOrStdout(),
		"files: %d, read: %d, invalid: %d, duplicates: %d, created: %d, updated: %d, images: %d\n",
		stats.Files, stats.Read, stats.Invalid, stats.Duplicates, stats.Created, stats.Updated, stats.Images)
}
