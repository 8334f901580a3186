package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sjsage522/bikecrawler/helpers"
	"sjsage522/bikecrawler/internal/crawler"
	"sjsage522/bikecrawler/internal/export"
	"sjsage522/bikecrawler/internal/model"
	"sjsage522/bikecrawler/logger"
	"sjsage522/bikecrawler/services/publisher"
)

// Progress is the checkpoint the worker resumes from
type Progress interface {
	IsDone(key string) bool
	MarkDone(key string, count int) error
	MarkFailed(key string, err error) error
}

// Event is the message published for every scraped bike
type Event struct {
	RunID string     `json:"run_id"`
	Unit  string     `json:"unit"`
	Bike  model.Bike `json:"bike"`
}

// Summary counts the outcome of a run
type Summary struct {
	Units     int
	Skipped   int
	Succeeded int
	Failed    int
	Bikes     int
}

// Worker scrapes units concurrently and hands the results to the sink and publisher
type Worker struct {
	crawler   crawler.Crawler
	sink      export.Sink
	publisher publisher.Publisher
	progress  Progress
	failures  helpers.FailureRecorder
	workers   int
	runID     string
	log       *logger.Logger
}

// NewWorker creates a new worker; nil publisher and failure recorder are replaced with no-ops
func NewWorker(
	c crawler.Crawler,
	sink export.Sink,
	pub publisher.Publisher,
	progress Progress,
	failures helpers.FailureRecorder,
	workers int,
) *Worker {
	if pub == nil {
		pub = publisher.NopPublisher{}
	}
	if failures == nil {
		failures = helpers.NopFailureRecorder{}
	}
	if workers < 1 {
		workers = 1
	}
	return &Worker{
		crawler:   c,
		sink:      sink,
		publisher: pub,
		progress:  progress,
		failures:  failures,
		workers:   workers,
		runID:     uuid.NewString(),
		log:       logger.ForWorker(),
	}
}

// RunID identifies the events published by this worker
func (w *Worker) RunID() string {
	return w.runID
}

// Run scrapes every unit not yet completed. Cancelling ctx stops scheduling new units;
// units already running finish or fail on their own.
func (w *Worker) Run(ctx context.Context, units []model.Unit) (Summary, error) {
	start := time.Now()
	summary := Summary{Units: len(units)}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(w.workers)

	for _, unit := range units {
		if w.progress != nil && w.progress.IsDone(unit.Key()) {
			summary.Skipped++
			continue
		}
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			count, err := w.scrapeUnit(ctx, unit)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				return nil
			}
			summary.Succeeded++
			summary.Bikes += count
			return nil
		})
	}
	g.Wait()

	// Trim all streams after crawling
	if err := w.publisher.TrimStreams(); err != nil {
		logger.LogError("StreamTrimming", err, "failed to trim streams")
	}

	w.log.Info().
		Str("run_id", w.runID).
		Int("units", summary.Units).
		Int("skipped", summary.Skipped).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("bikes", summary.Bikes).
		Dur("elapsed", time.Since(start)).
		Msg("Crawl finished")
	return summary, ctx.Err()
}

// scrapeUnit fetches one unit, writes and publishes its bikes and checkpoints the result
func (w *Worker) scrapeUnit(ctx context.Context, unit model.Unit) (int, error) {
	key := unit.Key()
	log := w.log.WithField("unit", key)

	bikes, err := w.crawler.FetchBikes(ctx, unit)
	if err != nil {
		w.fail(ctx, key, err)
		return 0, err
	}

	if len(bikes) > 0 && w.sink != nil {
		path, err := w.sink.Write(unit, bikes)
		if err != nil {
			w.fail(ctx, key, err)
			return 0, err
		}
		log.Debug().Str("path", path).Msg("Wrote unit")
	}

	for i, bike := range bikes {
		data, err := json.Marshal(Event{RunID: w.runID, Unit: key, Bike: bike})
		if err != nil {
			logger.LogError(w.crawler.GetName(), err, "failed to encode bike")
			continue
		}
		if err := w.publisher.Publish(w.crawler.GetProvider(), data); err != nil {
			logger.LogError(w.crawler.GetName(), err, "failed to publish bike")
		}
		if i == 0 {
			log.Debug().Str("model", bike.Model).Str("url", bike.URL).Msg("First bike of unit")
		}
	}

	if w.progress != nil {
		if err := w.progress.MarkDone(key, len(bikes)); err != nil {
			log.Warn().Err(err).Msg("Failed to save progress")
		}
	}
	log.Info().Int("bikes", len(bikes)).Msg("Unit completed")
	return len(bikes), nil
}

// fail checkpoints a failed unit. Interrupted units are left pending without a failure entry.
func (w *Worker) fail(ctx context.Context, key string, err error) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		w.log.Warn().Str("unit", key).Msg("Unit interrupted")
		return
	}

	w.failures.RecordFailure(key, err)
	if w.progress != nil {
		if perr := w.progress.MarkFailed(key, err); perr != nil {
			w.log.Warn().Err(perr).Str("unit", key).Msg("Failed to save progress")
		}
	}
}

// URLSummary counts the outcome of RunURLs
type URLSummary struct {
	URLs      int
	Succeeded int
	Failed    int
}

// RunURLs calls fn for every URL with at most Workers calls in flight. Failures are recorded
// and do not stop the other URLs.
func (w *Worker) RunURLs(ctx context.Context, urls []string, fn func(ctx context.Context, url string) error) (URLSummary, error) {
	summary := URLSummary{URLs: len(urls)}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(w.workers)

	for _, url := range urls {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := fn(ctx, url)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				if ctx.Err() == nil {
					w.failures.RecordFailure(url, err)
				}
				return nil
			}
			summary.Succeeded++
			return nil
		})
	}
	g.Wait()

	return summary, ctx.Err()
}
