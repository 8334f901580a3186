package cmd

import (
	"context"
	"fmt"

	"sjsage522/bikecrawler/config"
	"sjsage522/bikecrawler/internal/crawler"
	"sjsage522/bikecrawler/internal/store"
	"sjsage522/bikecrawler/logger"
	"sjsage522/bikecrawler/services/cache"
	"sjsage522/bikecrawler/services/publisher"
)

// loadSite resolves the configured catalog site
func loadSite(cfg *config.Config) (config.Site, error) {
	sites, err := config.LoadSites(cfg.SitesFile)
	if err != nil {
		return config.Site{}, err
	}
	return config.FindSite(sites, cfg.CatalogSite)
}

// newCrawler builds the crawler of the configured site with its cooldown cache
func newCrawler(cfg *config.Config) (*crawler.CatalogCrawler, config.Site, error) {
	site, err := loadSite(cfg)
	if err != nil {
		return nil, config.Site{}, err
	}

	cacheSvc := cache.New(cfg.MemcacheAddr)
	if cfg.MemcacheAddr != "" {
		logger.Info("Using memcache at %s", cfg.MemcacheAddr)
	}
	return crawler.CreateCrawler(cfg, site, cacheSvc), site, nil
}

// newPublisher connects to Redis when an address is configured
func newPublisher(ctx context.Context, cfg *config.Config) (publisher.Publisher, error) {
	if cfg.RedisAddr == "" {
		return publisher.NopPublisher{}, nil
	}

	pub, err := publisher.NewRedisPublisher(
		ctx,
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.RedisStream,
		cfg.RedisStreamCount,
		cfg.RedisStreamMaxLength,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}

	logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)", cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	return pub, nil
}

// openStore opens the configured database
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	return store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
}
