package pipeline

import (
	"context"
	"errors"
	"fmt"

	"sjsage522/bikecrawler/internal/consolidate"
	"sjsage522/bikecrawler/internal/export"
	"sjsage522/bikecrawler/internal/model"
	"sjsage522/bikecrawler/internal/normalize"
	"sjsage522/bikecrawler/internal/store"
	"sjsage522/bikecrawler/logger"
)

// Result is what a pipeline run did
type Result struct {
	Files   int
	Read    int
	Dropped int
	Merged  int
	Load    consolidate.Stats
	Report  Report
}

// Pipeline runs read -> clean -> dedupe -> load -> QC over record dumps
type Pipeline struct {
	store    *store.Store
	makes    *normalize.MakeResolver
	lowLimit int
	// Export, when set, receives the cleaned and deduplicated records before loading
	Export string
}

// New creates a pipeline loading into s; lowLimit bounds the low quality listing of the report
func New(s *store.Store, lowLimit int) *Pipeline {
	return &Pipeline{
		store:    s,
		makes:    normalize.NewMakeResolver(),
		lowLimit: lowLimit,
	}
}

// Run processes every dump under paths. Unreadable files are skipped and reported in the
// returned error once the rest of the run has completed.
func (p *Pipeline) Run(ctx context.Context, paths ...string) (Result, error) {
	var result Result

	files, err := export.FindFiles(paths...)
	if err != nil {
		return result, err
	}

	log := logger.ForPipeline("read")
	var (
		bikes    []model.Bike
		readErrs []error
	)
	for _, path := range files {
		read, err := export.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping unreadable file")
			readErrs = append(readErrs, err)
			continue
		}
		result.Files++
		bikes = append(bikes, read...)
	}
	result.Read = len(bikes)
	log.Info().Int("files", result.Files).Int("records", result.Read).Msg("Read dumps")

	bikes, result.Dropped = Clean(bikes, p.makes)

	bikes, result.Merged, err = Dedupe(bikes)
	if err != nil {
		return result, err
	}
	logger.ForPipeline("dedupe").Info().
		Int("dropped", result.Dropped).
		Int("merged", result.Merged).
		Int("remaining", len(bikes)).
		Msg("Cleaned records")

	if p.Export != "" {
		if err := export.WriteFile(p.Export, bikes); err != nil {
			return result, fmt.Errorf("failed to export cleaned records: %w", err)
		}
	}

	result.Load, err = consolidate.New(p.store, p.makes).Consolidate(ctx, bikes, "pipeline")
	if err != nil {
		return result, err
	}

	result.Report, err = QC(ctx, p.store, p.lowLimit)
	if err != nil {
		return result, err
	}

	return result, errors.Join(readErrs...)
}
