package crawler

import (
	"sjsage522/bikecrawler/config"
	"sjsage522/bikecrawler/logger"
	"sjsage522/bikecrawler/services/cache"
)

// ConfigFromSite builds a crawler configuration from a site definition and runtime settings
func ConfigFromSite(cfg *config.Config, site config.Site) CrawlerConfig {
	cacheKey := site.CacheKey
	if cacheKey == "" {
		cacheKey = site.Name + "_rate_limited"
	}

	return CrawlerConfig{
		Name:         site.Name,
		ListingURL:   site.ListingURL,
		CacheKey:     cacheKey,
		BlockTime:    site.BlockTimeSeconds,
		BaseURL:      site.BaseURL,
		Provider:     site.Provider,
		MaxPages:     site.MaxPages,
		FetchDetails: site.FetchDetails,
		Selectors: Selectors{
			BikeList:    site.Selectors.BikeList,
			Title:       site.Selectors.Title,
			Link:        site.Selectors.Link,
			Price:       site.Selectors.Price,
			Category:    site.Selectors.Category,
			Image:       site.Selectors.Image,
			Package:     site.Selectors.Package,
			Engine:      site.Selectors.Engine,
			SpecRow:     site.Selectors.SpecRow,
			SpecKey:     site.Selectors.SpecKey,
			SpecValue:   site.Selectors.SpecValue,
			NextPage:    site.Selectors.NextPage,
			PriceRegex:  site.Selectors.PriceRegex,
			ClassFilter: site.Selectors.ClassFilter,
		},
		MaxRetries:        cfg.MaxRetries,
		RetryBaseDelay:    cfg.RetryBaseDelay,
		ChallengeWait:     cfg.ChallengeWait,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}
}

// CreateCrawler creates the crawler for a site. Pages are rendered in a browser when
// either the site or the configuration asks for it.
func CreateCrawler(cfg *config.Config, site config.Site, cacheSvc cache.CacheService) *CatalogCrawler {
	var fetcher Fetcher = HTTPFetcher{}
	if cfg.UseBrowser || site.UseBrowser {
		fetcher = NewBrowserFetcher(cfg.Headless, cfg.RequestTimeout)
	}

	crawler := NewCatalogCrawler(ConfigFromSite(cfg, site), cacheSvc, fetcher)
	logger.ForCrawler(site.Name).Info().
		Str("listing_url", site.ListingURL).
		Bool("browser", cfg.UseBrowser || site.UseBrowser).
		Bool("details", site.FetchDetails).
		Msg("Created catalog crawler")

	return crawler
}
