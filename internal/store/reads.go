package store

import (
	"context"
	"database/sql"
	"time"

	apperrors "sjsage522/bikecrawler/pkg/errors"
)

// Counts holds the number of rows per table
type Counts struct {
	Manufacturers int
	Models        int
	Variants      int
	Engines       int
	Physicals     int
	Images        int
}

// Counts returns the row count of every catalog table
func (q *Queries) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := q.queryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM manufacturers),
		(SELECT COUNT(*) FROM motorcycle_models),
		(SELECT COUNT(*) FROM motorcycle_variants),
		(SELECT COUNT(*) FROM engine_specs),
		(SELECT COUNT(*) FROM physical_specs),
		(SELECT COUNT(*) FROM motorcycle_images)`,
	).Scan(&c.Manufacturers, &c.Models, &c.Variants, &c.Engines, &c.Physicals, &c.Images)
	if err != nil {
		return Counts{}, apperrors.NewStorage("failed to count rows", err)
	}
	return c, nil
}

// CrawlState is what the refresher needs to know about a variant
type CrawlState struct {
	VariantID    int64
	URL          string
	Year         int
	QualityScore int
	// LastCrawled is zero when the variant was never crawled
	LastCrawled time.Time
}

// CrawlStates lists every variant with a source URL
func (q *Queries) CrawlStates(ctx context.Context) ([]CrawlState, error) {
	rows, err := q.query(ctx,
		`SELECT id, source_url, year, quality_score, last_crawled_at
		FROM motorcycle_variants WHERE source_url <> '' ORDER BY id`)
	if err != nil {
		return nil, apperrors.NewStorage("failed to list crawl states", err)
	}
	defer rows.Close()

	var states []CrawlState
	for rows.Next() {
		var (
			s    CrawlState
			last sql.NullTime
		)
		if err := rows.Scan(&s.VariantID, &s.URL, &s.Year, &s.QualityScore, &last); err != nil {
			return nil, apperrors.NewStorage("failed to scan crawl state", err)
		}
		if last.Valid {
			s.LastCrawled = last.Time
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorage("failed to list crawl states", err)
	}
	return states, nil
}

// VariantSummary identifies a variant for reports
type VariantSummary struct {
	ID           int64
	Manufacturer string
	Model        string
	Year         int
	Package      string
	QualityScore int
	SourceURL    string
}

// LowQuality lists up to limit variants scoring below the threshold, worst first
func (q *Queries) LowQuality(ctx context.Context, below, limit int) ([]VariantSummary, error) {
	rows, err := q.query(ctx,
		`SELECT v.id, m.name, mo.name, v.year, v.package, v.quality_score, v.source_url
		FROM motorcycle_variants v
		JOIN motorcycle_models mo ON mo.id = v.model_id
		JOIN manufacturers m ON m.id = mo.manufacturer_id
		WHERE v.quality_score < ?
		ORDER BY v.quality_score, m.name, mo.name, v.year
		LIMIT ?`,
		below, limit,
	)
	if err != nil {
		return nil, apperrors.NewStorage("failed to list low quality variants", err)
	}
	defer rows.Close()

	var out []VariantSummary
	for rows.Next() {
		var v VariantSummary
		if err := rows.Scan(&v.ID, &v.Manufacturer, &v.Model, &v.Year, &v.Package, &v.QualityScore, &v.SourceURL); err != nil {
			return nil, apperrors.NewStorage("failed to scan variant", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorage("failed to list low quality variants", err)
	}
	return out, nil
}

// Missing counts variants without spec rows
type Missing struct {
	Engine   int
	Physical int
}

// MissingSpecs counts variants lacking engine or physical specs
func (q *Queries) MissingSpecs(ctx context.Context) (Missing, error) {
	var m Missing
	err := q.queryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM motorcycle_variants v
			WHERE NOT EXISTS (SELECT 1 FROM engine_specs e WHERE e.variant_id = v.id)),
		(SELECT COUNT(*) FROM motorcycle_variants v
			WHERE NOT EXISTS (SELECT 1 FROM physical_specs p WHERE p.variant_id = v.id))`,
	).Scan(&m.Engine, &m.Physical)
	if err != nil {
		return Missing{}, apperrors.NewStorage("failed to count missing specs", err)
	}
	return m, nil
}

// QualityStats summarises variant quality scores
type QualityStats struct {
	Average float64
	Min     int
	Max     int
	Below50 int
}

// QualityStats aggregates the quality scores of all variants; an empty table gives zero values
func (q *Queries) QualityStats(ctx context.Context) (QualityStats, error) {
	var (
		avg    sql.NullFloat64
		lo, hi sql.NullInt64
		below  int
	)
	err := q.queryRow(ctx,
		`SELECT AVG(quality_score), MIN(quality_score), MAX(quality_score),
		COALESCE(SUM(CASE WHEN quality_score < 50 THEN 1 ELSE 0 END), 0)
		FROM motorcycle_variants`,
	).Scan(&avg, &lo, &hi, &below)
	if err != nil {
		return QualityStats{}, apperrors.NewStorage("failed to aggregate quality", err)
	}
	return QualityStats{
		Average: avg.Float64,
		Min:     int(lo.Int64),
		Max:     int(hi.Int64),
		Below50: below,
	}, nil
}

// Orphans counts manufacturers without models and models without variants
type Orphans struct {
	Manufacturers int
	Models        int
}

// Orphans counts rows that lost all their children
func (q *Queries) Orphans(ctx context.Context) (Orphans, error) {
	var o Orphans
	err := q.queryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM manufacturers m
			WHERE NOT EXISTS (SELECT 1 FROM motorcycle_models mo WHERE mo.manufacturer_id = m.id)),
		(SELECT COUNT(*) FROM motorcycle_models mo
			WHERE NOT EXISTS (SELECT 1 FROM motorcycle_variants v WHERE v.model_id = mo.id))`,
	).Scan(&o.Manufacturers, &o.Models)
	if err != nil {
		return Orphans{}, apperrors.NewStorage("failed to count orphans", err)
	}
	return o, nil
}
