package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sjsage522/bikecrawler/internal/pipeline"
)

var pipelineFlags struct {
	export string
	low    int
}

func init() {
	rootCmd.AddCommand(pipelineCmd)

	pipelineCmd.Flags().StringVar(&pipelineFlags.export, "export", "", "also write the cleaned records to this .csv, .json or .jsonl file")
	pipelineCmd.Flags().IntVar(&pipelineFlags.low, "low", 20, "how many low quality variants to list")
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline [paths...]",
	Short: "Cleans, dedupes and loads dumps, then prints the quality report.",
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

		p := pipeline.New(s, pipelineFlags.low)
		p.Export = pipelineFlags.export

		result, err := p.Run(ctx, args...)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "files: %d, read: %d, dropped: %d, merged: %d\n",
			result.Files, result.Read, result.Dropped, result.Merged)
		printStats(cmd, result.Load)
		if result.Report.Counts.Variants > 0 {
			result.Report.Render(out)
		}
		return err
	},
}
