// Package pipeline runs the offline stages over scraped dumps: clean, dedupe, load,
// quality control and refresh prioritization.
package pipeline

import (
	"sjsage522/bikecrawler/internal/consolidate"
	"sjsage522/bikecrawler/internal/model"
	"sjsage522/bikecrawler/internal/normalize"
	"sjsage522/bikecrawler/logger"
)

// Clean normalizes every record and drops the ones that cannot be stored.
// It returns the kept records and the number dropped.
func Clean(bikes []model.Bike, makes *normalize.MakeResolver) ([]model.Bike, int) {
	log := logger.ForPipeline("clean")

	kept := make([]model.Bike, 0, len(bikes))
	dropped := 0
	for _, b := range bikes {
		b = consolidate.Normalize(b, makes)
		if err := consolidate.Validate(b); err != nil {
			log.Debug().Err(err).Str("url", b.URL).Msg("Dropping record")
			dropped++
			continue
		}
		kept = append(kept, b)
	}
	return kept, dropped
}

// Dedupe merges records with the same make, model, year and package.
// Dedupe(Dedupe(x)) equals Dedupe(x).
func Dedupe(bikes []model.Bike) ([]model.Bike, int, error) {
	return consolidate.Dedupe(bikes)
}
