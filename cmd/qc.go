package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"sjsage522/bikecrawler/internal/pipeline"
)

var qcFlags struct {
	low    int
	strict bool
}

func init() {
	rootCmd.AddCommand(qcCmd)

	qcCmd.Flags().IntVar(&qcFlags.low, "low", 20, "how many low quality variants to list")
	qcCmd.Flags().BoolVar(&qcFlags.strict, "strict", false, "exit with an error when the report finds orphans or no variants")
}

var qcCmd = &cobra.Command{
	Use:   "qc",
	Short: "Prints the quality-control report of the database.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := pipeline.QC(ctx, s, qcFlags.low)
		if err != nil {
			return err
		}
		report.Render(cmd.OutOrStdout())

		if qcFlags.strict && !report.Passed() {
			return errors.New("quality check failed")
		}
		return nil
	},
}
