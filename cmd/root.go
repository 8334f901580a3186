// Package cmd wires the bikecrawler command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"sjsage522/bikecrawler/config"
	"sjsage522/bikecrawler/helpers"
	"sjsage522/bikecrawler/logger"
)

// cfg is loaded from the environment before every command and overridden by flags
var cfg *config.Config

var rootFlags struct {
	databaseDriver string
	databaseDSN    string
	outputDir      string
	workers        int
	site           string
	sitesFile      string
}

var rootCmd = &cobra.Command{
	Use:           "bikecrawler",
	Short:         "bikecrawler scrapes bicycle and motorcycle catalogs into a normalized database.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.LoadConfig()

		flags := cmd.Flags()
		if flags.Changed("db-driver") {
			cfg.DatabaseDriver = rootFlags.databaseDriver
		}
		if flags.Changed("dsn") {
			cfg.DatabaseDSN = rootFlags.databaseDSN
		}
		if flags.Changed("output") {
			cfg.OutputDir = rootFlags.outputDir
		}
		if flags.Changed("workers") {
			cfg.Workers = rootFlags.workers
		}
		if flags.Changed("site") {
			cfg.CatalogSite = rootFlags.site
		}
		if flags.Changed("sites-file") {
			cfg.SitesFile = rootFlags.sitesFile
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		helpers.SetTimeout(cfg.RequestTimeout)

		logger.Debug("Configuration loaded (environment: %s, database: %s)", cfg.Environment, cfg.DatabaseDriver)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootFlags.databaseDriver, "db-driver", "", "database driver: sqlite or postgres (env DATABASE_DRIVER)")
	flags.StringVar(&rootFlags.databaseDSN, "dsn", "", "database file or connection string (env DATABASE_DSN)")
	flags.StringVar(&rootFlags.outputDir, "output", "", "directory for scraped files (env OUTPUT_DIR)")
	flags.IntVar(&rootFlags.workers, "workers", 0, "concurrent scrape workers (env WORKERS)")
	flags.StringVar(&rootFlags.site, "site", "", "catalog site to crawl (env CATALOG_SITE)")
	flags.StringVar(&rootFlags.sitesFile, "sites-file", "", "JSON5 file overriding the built-in sites (env SITES_FILE)")
}

// Execute runs the command line with ctx cancelled on shutdown signals
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
