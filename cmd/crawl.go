package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sjsage522/bikecrawler/helpers"
	"sjsage522/bikecrawler/internal/consolidate"
	"sjsage522/bikecrawler/internal/export"
	"sjsage522/bikecrawler/internal/model"
	"sjsage522/bikecrawler/internal/progress"
	"sjsage522/bikecrawler/logger"
	"sjsage522/bikecrawler/services/worker"
)

var crawlFlags struct {
	years   string
	brands  string
	format  string
	reset   bool
	browser bool
	load    bool
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	flags := crawlCmd.Flags()
	flags.StringVar(&crawlFlags.years, "years", fmt.Sprint(time.Now().Year()), "years to crawl, e.g. 2020-2024,2018")
	flags.StringVar(&crawlFlags.brands, "brands", "", "comma separated brands (default: the site's brand list)")
	flags.StringVar(&crawlFlags.format, "format", string(export.FormatCSV), "output format: csv, json or jsonl")
	flags.BoolVar(&crawlFlags.reset, "reset", false, "forget completed units and start over")
	flags.BoolVar(&crawlFlags.browser, "browser", false, "render pages in a headless browser (env USE_BROWSER)")
	flags.BoolVar(&crawlFlags.load, "load", false, "consolidate the written files into the database afterwards")
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Scrapes the catalog listing of every year and brand, resuming from the progress file.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logger.ForWorker()

		years, err := parseYears(crawlFlags.years)
		if err != nil {
			return err
		}
		format := export.Format(crawlFlags.format)
		if _, err := export.FormatOf("x." + crawlFlags.format); err != nil {
			return err
		}
		if crawlFlags.browser {
			cfg.UseBrowser = true
		}

		c, site, err := newCrawler(cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		brands := splitList(crawlFlags.brands)
		if len(brands) == 0 {
			brands = site.Brands
		}
		if len(brands) == 0 {
			return fmt.Errorf("site %s has no brands, pass --brands", site.Name)
		}
		units := model.Units(years, brands, site.MakerID)

		tracker, err := progress.Load(cfg.ProgressFile)
		if err != nil {
			return err
		}
		if crawlFlags.reset {
			if err := tracker.Reset(); err != nil {
				return err
			}
		}

		pub, err := newPublisher(ctx, cfg)
		if err != nil {
			return err
		}
		defer pub.Close()

		sink := export.NewFileSink(cfg.OutputDir, format)
		w := worker.NewWorker(c, sink, pub, tracker, helpers.NewFailureLog(cfg.FailureLog), cfg.Workers)

		log.Info().
			Str("site", site.Name).
			Str("run_id", w.RunID()).
			Int("units", len(units)).
			Int("workers", cfg.Workers).
			Str("progress", tracker.Path()).
			Msg("Starting crawl")

		summary, err := w.Run(ctx, units)
		fmt.Fprintf(cmd.OutOrStdout(), "units: %d, skipped: %d, succeeded: %d, failed: %d, bikes: %d\n",
			summary.Units, summary.Skipped, summary.Succeeded, summary.Failed, summary.Bikes)
		if err != nil {
			return err
		}

		if !crawlFlags.load {
			return nil
		}

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := consolidate.New(s, nil).IngestFiles(ctx, cfg.OutputDir)
		printStats(cmd, stats)
		return err
	},
}
