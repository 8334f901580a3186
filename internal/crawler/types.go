package crawler

import (
	"context"
	"io"
	"time"

	"sjsage522/bikecrawler/internal/model"
)

// Crawler interface defines the contract for catalog crawlers
type Crawler interface {
	// FetchBikes retrieves every listing of a year/brand unit, following pagination
	FetchBikes(ctx context.Context, unit model.Unit) ([]model.Bike, error)

	// FetchDetail retrieves the spec table of a single bike page
	FetchDetail(ctx context.Context, url string) (model.Bike, error)

	// GetName returns the crawler's name for logging and identification
	GetName() string

	// GetProvider returns the provider name for the crawler
	GetProvider() string
}

// Fetcher retrieves the UTF-8 HTML of a page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.Reader, error)
}

// Selectors contains CSS selectors for various elements in the page
type Selectors struct {
	BikeList    string
	Title       string
	Link        string
	Price       string
	Category    string
	Image       string
	Package     string
	Engine      string
	SpecRow     string
	SpecKey     string
	SpecValue   string
	NextPage    string
	PriceRegex  string
	ClassFilter string
}

// CrawlerConfig contains configuration for a crawler
type CrawlerConfig struct {
	Name         string
	ListingURL   string
	CacheKey     string
	BlockTime    int
	BaseURL      string
	Provider     string
	MaxPages     int
	FetchDetails bool
	Selectors    Selectors

	MaxRetries        int
	RetryBaseDelay    time.Duration
	ChallengeWait     time.Duration
	RequestsPerSecond float64
	Burst             int
}
