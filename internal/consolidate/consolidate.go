// Package consolidate loads flat bike records into the normalized catalog store.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"sjsage522/bikecrawler/internal/export"
	"sjsage522/bikecrawler/internal/model"
	"sjsage522/bikecrawler/internal/normalize"
	"sjsage522/bikecrawler/internal/store"
	"sjsage522/bikecrawler/logger"
	apperrors "sjsage522/bikecrawler/pkg/errors"
)

const (
	MinYear = 1885
	MaxYear = 2100
)

// Stats counts what a consolidation did
type Stats struct {
	Files      int
	Read       int
	Invalid    int
	Duplicates int
	Created    int
	Updated    int
	Images     int
}

// Add accumulates other into s
func (s *Stats) Add(other Stats) {
	s.Files += other.Files
	s.Read += other.Read
	s.Invalid += other.Invalid
	s.Duplicates += other.Duplicates
	s.Created += other.Created
	s.Updated += other.Updated
	s.Images += other.Images
}

// Normalize cleans the names of a record and resolves its make to the canonical spelling
func Normalize(b model.Bike, makes *normalize.MakeResolver) model.Bike {
	if makes != nil {
		b.Make = makes.Resolve(b.Make)
	} else {
		b.Make = normalize.Name(b.Make)
	}
	b.Model = normalize.Name(b.Model)
	b.Package = normalize.Name(b.Package)
	b.Category = normalize.Name(b.Category)
	b.Engine = strings.TrimSpace(b.Engine)
	b.Price = strings.TrimSpace(b.Price)
	b.URL = strings.TrimSpace(b.URL)
	b.ImageURL = strings.TrimSpace(b.ImageURL)
	return b
}

// Validate rejects records that cannot be stored
func Validate(b model.Bike) error {
	if b.Make == "" {
		return apperrors.NewValidation(b.Provider, "missing make")
	}
	if b.Model == "" {
		return apperrors.NewValidation(b.Provider, "missing model")
	}
	if b.Year != 0 && (b.Year < MinYear || b.Year > MaxYear) {
		return apperrors.NewValidation(b.Provider, fmt.Sprintf("year %d outside %d..%d", b.Year, MinYear, MaxYear))
	}
	return nil
}

// Dedupe merges records sharing make, model, year and package, keeping first-seen order.
// It returns the merged records and how many duplicates were folded in.
func Dedupe(bikes []model.Bike) ([]model.Bike, int, error) {
	index := make(map[string]int, len(bikes))
	out := make([]model.Bike, 0, len(bikes))
	duplicates := 0

	for _, b := range bikes {
		key := normalize.Key(b.Make, b.Model, b.Year, b.Package)
		if i, ok := index[key]; ok {
			if err := model.Merge(&out[i], b); err != nil {
				return nil, 0, fmt.Errorf("failed to merge %s: %w", key, err)
			}
			duplicates++
			continue
		}
		index[key] = len(out)
		out = append(out, b)
	}
	return out, duplicates, nil
}

// Consolidator writes records into the store
type Consolidator struct {
	store *store.Store
	makes *normalize.MakeResolver
	log   *logger.Logger
}

// New creates a consolidator; makes may be nil for a fresh resolver
func New(s *store.Store, makes *normalize.MakeResolver) *Consolidator {
	if makes == nil {
		makes = normalize.NewMakeResolver()
	}
	return &Consolidator{
		store: s,
		makes: makes,
		log:   logger.ForPipeline("consolidate"),
	}
}

// Consolidate normalizes, validates and dedupes bikes, then stores each record in its own
// transaction. source names the origin of records that carry no provider.
func (c *Consolidator) Consolidate(ctx context.Context, bikes []model.Bike, source string) (Stats, error) {
	stats := Stats{Read: len(bikes)}

	valid := make([]model.Bike, 0, len(bikes))
	for _, b := range bikes {
		b = Normalize(b, c.makes)
		if err := Validate(b); err != nil {
			stats.Invalid++
			c.log.Debug().Err(err).Str("make", b.Make).Str("model", b.Model).Msg("Skipping invalid record")
			continue
		}
		valid = append(valid, b)
	}

	merged, duplicates, err := Dedupe(valid)
	if err != nil {
		return stats, err
	}
	stats.Duplicates = duplicates

	for _, b := range merged {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		var created bool
		var images int
		err := c.store.InTx(ctx, func(q *store.Queries) error {
			var err error
			created, images, err = c.write(ctx, q, b, source)
			return err
		})
		if err != nil {
			return stats, fmt.Errorf("failed to store %s %s %d: %w", b.Make, b.Model, b.Year, err)
		}

		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
		stats.Images += images
	}

	c.log.Info().
		Str("source", source).
		Int("read", stats.Read).
		Int("invalid", stats.Invalid).
		Int("duplicates", stats.Duplicates).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Msg("Consolidated records")
	return stats, nil
}

func (c *Consolidator) write(ctx context.Context, q *store.Queries, b model.Bike, source string) (bool, int, error) {
	specs := normalize.ExtractSpecs(b)

	makeID, _, err := q.UpsertManufacturer(ctx, b.Make)
	if err != nil {
		return false, 0, err
	}

	modelID, _, err := q.UpsertModel(ctx, makeID, b.Model, specs.Category)
	if err != nil {
		return false, 0, err
	}

	origin := b.Provider
	if origin == "" {
		origin = source
	}
	variantID, created, err := q.UpsertVariant(ctx, store.Variant{
		ModelID:      modelID,
		Year:         b.Year,
		Package:      b.Package,
		Price:        specs.Price,
		Currency:     specs.Currency,
		Source:       origin,
		SourceURL:    b.URL,
		QualityScore: normalize.QualityScore(b, specs),
		CrawledAt:    b.ScrapedAt,
	})
	if err != nil {
		return false, 0, err
	}

	images, err := writeDetails(ctx, q, variantID, b, specs)
	if err != nil {
		return false, 0, err
	}
	return created, images, nil
}

// writeDetails stores the engine, physical and image rows of a variant and returns how many
// images were added
func writeDetails(ctx context.Context, q *store.Queries, variantID int64, b model.Bike, specs normalize.Specs) (int, error) {
	if specs.HasEngine() {
		_, err := q.UpsertEngine(ctx, variantID, store.EngineSpec{
			EngineType:     specs.EngineType,
			DisplacementCC: specs.DisplacementCC,
			PowerHP:        specs.PowerHP,
			PowerRPM:       specs.PowerRPM,
			TorqueNM:       specs.TorqueNM,
			TorqueRPM:      specs.TorqueRPM,
			Raw:            b.Engine,
		})
		if err != nil {
			return 0, err
		}
	}

	if specs.HasPhysical() {
		_, err := q.UpsertPhysical(ctx, variantID, store.PhysicalSpec{
			DryWeightKG:   specs.DryWeightKG,
			WetWeightKG:   specs.WetWeightKG,
			SeatHeightMM:  specs.SeatHeightMM,
			WheelbaseMM:   specs.WheelbaseMM,
			FuelCapacityL: specs.FuelCapacityL,
		})
		if err != nil {
			return 0, err
		}
	}

	if b.ImageURL == "" {
		return 0, nil
	}
	added, err := q.AddImage(ctx, variantID, b.ImageURL)
	if err != nil || !added {
		return 0, err
	}
	return 1, nil
}

// Refresh folds a re-crawled page into the variant it was crawled for. The page's make,
// model, year and package are not used for matching, so a detail page that names the bike
// differently from its listing still updates the same row.
func (c *Consolidator) Refresh(ctx context.Context, variantID int64, b model.Bike) (Stats, error) {
	b = Normalize(b, c.makes)
	specs := normalize.ExtractSpecs(b)

	stats := Stats{Read: 1}
	err := c.store.InTx(ctx, func(q *store.Queries) error {
		err := q.UpdateVariant(ctx, variantID, store.Variant{
			Price:        specs.Price,
			Currency:     specs.Currency,
			Source:       b.Provider,
			SourceURL:    b.URL,
			QualityScore: normalize.QualityScore(b, specs),
			CrawledAt:    b.ScrapedAt,
		})
		if err != nil {
			return err
		}
		stats.Images, err = writeDetails(ctx, q, variantID, b, specs)
		return err
	})
	if err != nil {
		return Stats{Read: 1}, fmt.Errorf("failed to refresh variant %d: %w", variantID, err)
	}

	stats.Updated = 1
	return stats, nil
}

// IngestFile consolidates one CSV, JSON or JSON lines dump
func (c *Consolidator) IngestFile(ctx context.Context, path string) (Stats, error) {
	bikes, err := export.ReadFile(path)
	if err != nil {
		return Stats{}, err
	}

	stats, err := c.Consolidate(ctx, bikes, filepath.Base(path))
	stats.Files = 1
	return stats, err
}

// IngestFiles consolidates every dump found under paths. Unreadable files are logged and
// skipped; their errors are returned joined once all files were tried.
func (c *Consolidator) IngestFiles(ctx context.Context, paths ...string) (Stats, error) {
	files, err := export.FindFiles(paths...)
	if err != nil {
		return Stats{}, err
	}

	var (
		total Stats
		errs  []error
	)
	for _, path := range files {
		stats, err := c.IngestFile(ctx, path)
		total.Add(stats)
		if err != nil {
			if ctx.Err() != nil || apperrors.IsType(err, apperrors.ErrorTypeStorage) {
				return total, err
			}
			c.log.Warn().Err(err).Str("file", path).Msg("Skipping unreadable file")
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}
