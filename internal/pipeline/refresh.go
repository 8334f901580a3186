package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"sjsage522/bikecrawler/internal/consolidate"
	"sjsage522/bikecrawler/internal/crawler"
	"sjsage522/bikecrawler/internal/store"
	"sjsage522/bikecrawler/logger"
	"sjsage522/bikecrawler/services/worker"
)

// Priority is a refresh bucket; lower values are refreshed first
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// Policy holds the staleness thresholds of the refresh buckets
type Policy struct {
	// RecentYears and CurrentYears are how many model years back count as high and medium
	RecentYears  int
	CurrentYears int
	HighAge      time.Duration
	MediumAge    time.Duration
	LowAge       time.Duration
	// variants scoring below MinQuality move up one bucket
	MinQuality int
	Limit      int
}

// DefaultPolicy refreshes last year's models daily, the last five years weekly and the rest monthly
func DefaultPolicy() Policy {
	return Policy{
		RecentYears:  1,
		CurrentYears: 4,
		HighAge:      24 * time.Hour,
		MediumAge:    7 * 24 * time.Hour,
		LowAge:       30 * 24 * time.Hour,
		MinQuality:   LowQualityThreshold,
	}
}

// Task is a variant due for a re-crawl
type Task struct {
	VariantID int64
	URL       string
	Year      int
	Priority  Priority
	// Age is zero for variants that were never crawled
	Age time.Duration
}

// Prioritize picks the variants due for a refresh at now and orders them by bucket,
// then oldest crawl first, then URL. Never crawled variants are critical.
func Prioritize(states []store.CrawlState, now time.Time, policy Policy) []Task {
	currentYear := now.Year()

	var tasks []Task
	for _, s := range states {
		if s.URL == "" {
			continue
		}

		if s.LastCrawled.IsZero() {
			tasks = append(tasks, Task{VariantID: s.VariantID, URL: s.URL, Year: s.Year, Priority: PriorityCritical})
			continue
		}

		age := now.Sub(s.LastCrawled)
		var (
			priority Priority
			due      bool
		)
		switch {
		case s.Year >= currentYear-policy.RecentYears:
			priority, due = PriorityHigh, age > policy.HighAge
		case s.Year >= currentYear-policy.CurrentYears:
			priority, due = PriorityMedium, age > policy.MediumAge
		default:
			priority, due = PriorityLow, age > policy.LowAge
		}
		if !due {
			continue
		}
		if s.QualityScore < policy.MinQuality && priority > PriorityHigh {
			priority--
		}

		tasks = append(tasks, Task{VariantID: s.VariantID, URL: s.URL, Year: s.Year, Priority: priority, Age: age})
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Age != b.Age {
			return a.Age > b.Age
		}
		return a.URL < b.URL
	})

	if policy.Limit > 0 && len(tasks) > policy.Limit {
		tasks = tasks[:policy.Limit]
	}
	return tasks
}

// RefreshSummary counts the outcome of a refresh run
type RefreshSummary struct {
	Tasks     int
	Refreshed int
	Failed    int
	Stats     consolidate.Stats
}

// Refresher re-crawls detail pages and folds them back into the store
type Refresher struct {
	crawler      crawler.Crawler
	store        *store.Store
	consolidator *consolidate.Consolidator
	worker       *worker.Worker
	now          func() time.Time
	log          *logger.Logger
}

// NewRefresher creates a refresher; w bounds how many pages are fetched at once
func NewRefresher(c crawler.Crawler, s *store.Store, cons *consolidate.Consolidator, w *worker.Worker) *Refresher {
	return &Refresher{
		crawler:      c,
		store:        s,
		consolidator: cons,
		worker:       w,
		now:          time.Now,
		log:          logger.ForPipeline("refresh"),
	}
}

// Plan loads the crawl states from the store and prioritizes them
func (r *Refresher) Plan(ctx context.Context, policy Policy) ([]Task, error) {
	states, err := r.store.CrawlStates(ctx)
	if err != nil {
		return nil, err
	}
	return Prioritize(states, r.now(), policy), nil
}

// Run fetches every task's page once and folds it into each variant crawled from that URL.
// Refreshed and Failed count variants.
func (r *Refresher) Run(ctx context.Context, tasks []Task) (RefreshSummary, error) {
	summary := RefreshSummary{Tasks: len(tasks)}

	variants := make(map[string][]int64, len(tasks))
	urls := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := variants[t.URL]; !ok {
			urls = append(urls, t.URL)
		}
		variants[t.URL] = append(variants[t.URL], t.VariantID)
	}

	var mu sync.Mutex
	_, err := r.worker.RunURLs(ctx, urls, func(ctx context.Context, url string) error {
		ids := variants[url]
		stats, err := r.refreshURL(ctx, url, ids)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			summary.Failed += len(ids)
			return err
		}
		summary.Refreshed += len(ids)
		summary.Stats.Add(stats)
		return nil
	})

	r.log.Info().
		Int("tasks", summary.Tasks).
		Int("urls", len(urls)).
		Int("refreshed", summary.Refreshed).
		Int("failed", summary.Failed).
		Msg("Refresh finished")
	return summary, err
}

func (r *Refresher) refreshURL(ctx context.Context, url string, ids []int64) (consolidate.Stats, error) {
	bike, err := r.crawler.FetchDetail(ctx, url)
	if err != nil {
		return consolidate.Stats{}, err
	}
	if bike.Provider == "" {
		bike.Provider = r.crawler.GetProvider()
	}
	if bike.URL == "" {
		bike.URL = url
	}
	if bike.ScrapedAt.IsZero() {
		bike.ScrapedAt = r.now()
	}

	var total consolidate.Stats
	for _, id := range ids {
		stats, err := r.consolidator.Refresh(ctx, id, bike)
		if err != nil {
			return total, err
		}
		total.Add(stats)
	}
	return total, nil
}
