package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"sjsage522/bikecrawler/internal/store"
)

// LowQualityThreshold is the score under which a variant counts as low quality
const LowQualityThreshold = 50

// Report is the outcome of a quality-control pass over the store
type Report struct {
	Counts     store.Counts
	Quality    store.QualityStats
	Missing    store.Missing
	Orphans    store.Orphans
	LowQuality []store.VariantSummary
}

// QC gathers the quality report; at most lowLimit low quality variants are listed
func QC(ctx context.Context, s *store.Store, lowLimit int) (Report, error) {
	var (
		r   Report
		err error
	)

	if r.Counts, err = s.Counts(ctx); err != nil {
		return Report{}, err
	}
	if r.Quality, err = s.QualityStats(ctx); err != nil {
		return Report{}, err
	}
	if r.Missing, err = s.MissingSpecs(ctx); err != nil {
		return Report{}, err
	}
	if r.Orphans, err = s.Orphans(ctx); err != nil {
		return Report{}, err
	}
	if lowLimit > 0 {
		if r.LowQuality, err = s.LowQuality(ctx, LowQualityThreshold, lowLimit); err != nil {
			return Report{}, err
		}
	}
	return r, nil
}

// Passed reports whether the store has no orphans and at least one variant
func (r Report) Passed() bool {
	return r.Counts.Variants > 0 && r.Orphans.Manufacturers == 0 && r.Orphans.Models == 0
}

func percent(part, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(total))
}

// Render writes the report as tables
func (r Report) Render(w io.Writer) {
	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetStyle(table.StyleRounded)
	summary.SetTitle("Catalog")
	summary.AppendHeader(table.Row{"Metric", "Value", "Share"})
	summary.AppendRows([]table.Row{
		{"Manufacturers", r.Counts.Manufacturers, ""},
		{"Models", r.Counts.Models, ""},
		{"Variants", r.Counts.Variants, ""},
		{"Images", r.Counts.Images, ""},
	})
	summary.AppendSeparator()
	summary.AppendRows([]table.Row{
		{"Missing engine specs", r.Missing.Engine, percent(r.Missing.Engine, r.Counts.Variants)},
		{"Missing physical specs", r.Missing.Physical, percent(r.Missing.Physical, r.Counts.Variants)},
		{"Orphan manufacturers", r.Orphans.Manufacturers, ""},
		{"Orphan models", r.Orphans.Models, ""},
	})
	summary.AppendSeparator()
	summary.AppendRows([]table.Row{
		{"Average quality", fmt.Sprintf("%.1f", r.Quality.Average), ""},
		{"Quality range", fmt.Sprintf("%d..%d", r.Quality.Min, r.Quality.Max), ""},
		{fmt.Sprintf("Quality below %d", LowQualityThreshold), r.Quality.Below50, percent(r.Quality.Below50, r.Counts.Variants)},
	})
	summary.Render()

	if len(r.LowQuality) == 0 {
		return
	}

	low := table.NewWriter()
	low.SetOutputMirror(w)
	low.SetStyle(table.StyleRounded)
	low.SetTitle("Lowest quality variants")
	low.AppendHeader(table.Row{"Score", "Make", "Model", "Year", "Package", "Source"})
	for _, v := range r.LowQuality {
		low.AppendRow(table.Row{v.QualityScore, v.Manufacturer, v.Model, v.Year, v.Package, v.SourceURL})
	}
	low.Render()
}
