package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"sjsage522/bikecrawler/internal/crawler"
)

func init() {
	rootCmd.AddCommand(parseURLCmd)
}

var parseURLCmd = &cobra.Command{
	Use:   "parse-url <url>...",
	Short: "Shows the year, brand and model extracted from catalog URLs.",
	Args:  cobra.MinimumNArgs(1),
	// no configuration needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"URL", "Year", "Brand", "Model", "Package", "ID", "Error"})
		for _, raw := range args {
			info, err := crawler.ParseBikeURL(raw)
			if err != nil {
				t.AppendRow(table.Row{raw, "", "", "", "", "", err.Error()})
				continue
			}
			t.AppendRow(table.Row{raw, info.Year, info.Brand, info.Model, info.Package, crawler.BikeID(info), ""})
		}
		t.Render()
	},
}
