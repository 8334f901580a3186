package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"sjsage522/bikecrawler/helpers"
	"sjsage522/bikecrawler/internal/consolidate"
	"sjsage522/bikecrawler/internal/pipeline"
	"sjsage522/bikecrawler/services/worker"
)

var refreshFlags struct {
	limit  int
	dryRun bool
}

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().IntVar(&refreshFlags.limit, "limit", 100, "refresh at most this many variants (0 = all due)")
	refreshCmd.Flags().BoolVar(&refreshFlags.dryRun, "dry-run", false, "only list the variants that are due")
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-crawls stale variants, most urgent first, and folds the results back into the database.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		c, _, err := newCrawler(cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		w := worker.NewWorker(c, nil, nil, nil, helpers.NewFailureLog(cfg.FailureLog), cfg.Workers)
		r := pipeline.NewRefresher(c, s, consolidate.New(s, nil), w)

		policy := pipeline.DefaultPolicy()
		policy.Limit = refreshFlags.limit
		tasks, err := r.Plan(ctx, policy)
		if err != nil {
			return err
		}

		t := newTable(out)
		t.AppendHeader(table.Row{"Priority", "Year", "Last crawled", "URL"})
		for _, task := range tasks {
			age := "never"
			if task.Age > 0 {
				age = fmt.Sprintf("%s ago", task.Age.Round(time.Hour))
			}
			t.AppendRow(table.Row{task.Priority, task.Year, age, task.URL})
		}
		t.Render()

		if refreshFlags.dryRun || len(tasks) == 0 {
			return nil
		}

		summary, err := r.Run(ctx, tasks)
		fmt.Fprintf(out, "tasks: %d, refreshed: %d, failed: %d\n", summary.Tasks, summary.Refreshed, summary.Failed)
		return err
	},
}
