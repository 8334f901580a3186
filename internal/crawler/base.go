package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"sjsage522/bikecrawler/helpers"
	"sjsage522/bikecrawler/logger"
	apperrors "sjsage522/bikecrawler/pkg/errors"
	"sjsage522/bikecrawler/services/cache"
)

const maxRetryInterval = time.Minute

// BaseCrawler provides navigation shared by all crawlers: pacing, cooldowns,
// challenge detection and retries
type BaseCrawler struct {
	Name           string
	BaseURL        string
	Provider       string
	CacheKey       string
	CacheSvc       cache.CacheService
	BlockTime      time.Duration
	ChallengeWait  time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	PriceRegex     string

	Fetcher Fetcher
	Limiter *rate.Limiter

	priceRe *regexp.Regexp
	log     *logger.Logger
}

func newBaseCrawler(config CrawlerConfig, cacheSvc cache.CacheService, fetcher Fetcher) BaseCrawler {
	base := BaseCrawler{
		Name:           config.Name,
		BaseURL:        config.BaseURL,
		Provider:       config.Provider,
		CacheKey:       config.CacheKey,
		CacheSvc:       cacheSvc,
		BlockTime:      time.Duration(config.BlockTime) * time.Second,
		ChallengeWait:  config.ChallengeWait,
		MaxRetries:     config.MaxRetries,
		RetryBaseDelay: config.RetryBaseDelay,
		PriceRegex:     config.Selectors.PriceRegex,
		Fetcher:        fetcher,
		log:            logger.ForCrawler(config.Name),
	}

	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		base.Limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	if base.PriceRegex != "" {
		re, err := regexp.Compile(base.PriceRegex)
		if err != nil {
			base.log.Warn().Err(err).Str("price_regex", base.PriceRegex).Msg("Invalid price regex, title prices disabled")
			base.PriceRegex = ""
		}
		base.priceRe = re
	}
	return base
}

// GetName returns the crawler's name for logging
func (c *BaseCrawler) GetName() string {
	return c.Name
}

// GetProvider returns the provider name for the crawler
func (c *BaseCrawler) GetProvider() string {
	return c.Provider
}

func (c *BaseCrawler) getLogger() *logger.Logger {
	if c.log == nil {
		c.log = logger.ForCrawler(c.Name)
	}
	return c.log
}

func (c *BaseCrawler) challengeKey() string {
	return c.CacheKey + ":challenge"
}

// navigate fetches url and parses it, retrying network failures and challenge pages
// with exponential backoff. Rate limits and parse failures end the attempt immediately.
func (c *BaseCrawler) navigate(ctx context.Context, url string) (*goquery.Document, error) {
	var doc *goquery.Document

	operation := func() error {
		d, err := c.fetchOnce(ctx, url)
		if err != nil {
			if ctx.Err() != nil || !apperrors.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		doc = d
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.RetryBaseDelay
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = time.Second
	}
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = maxRetryInterval
	policy.MaxElapsedTime = 0

	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}

	notify := func(err error, wait time.Duration) {
		c.getLogger().Warn().Err(err).Str("url", url).Dur("retry_in", wait).Msg("Navigation failed, retrying")
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx), notify)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// fetchOnce performs a single navigation attempt
func (c *BaseCrawler) fetchOnce(ctx context.Context, url string) (*goquery.Document, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if c.isBlocked() {
		return nil, apperrors.NewRateLimit(c.Provider, c.BlockTime)
	}
	if err := c.waitChallengeCooldown(ctx); err != nil {
		return nil, err
	}

	if c.Fetcher == nil {
		return nil, apperrors.NewConfiguration(fmt.Sprintf("crawler %s has no fetcher", c.Name), nil)
	}

	reader, err := c.Fetcher.Fetch(ctx, url)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeRateLimit) {
			c.block()
		}
		return nil, err
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperrors.NewNetwork(c.Provider, "failed to read page", err)
	}

	if keyword, ok := DetectChallenge(body); ok {
		c.getLogger().Warn().Str("url", url).Str("keyword", keyword).Dur("wait", c.ChallengeWait).Msg("Challenge page detected")
		c.startChallengeCooldown()
		if err := sleep(ctx, c.ChallengeWait); err != nil {
			return nil, err
		}
		return nil, apperrors.NewChallenge(c.Provider, url, keyword)
	}

	return c.createDocument(bytes.NewReader(body))
}

// isBlocked reports whether the rate-limit block key is set
func (c *BaseCrawler) isBlocked() bool {
	if c.CacheSvc == nil || c.CacheKey == "" {
		return false
	}
	_, err := c.CacheSvc.Get(c.CacheKey)
	return err == nil
}

func (c *BaseCrawler) block() {
	if c.CacheSvc == nil || c.CacheKey == "" || c.BlockTime <= 0 {
		return
	}
	if err := c.CacheSvc.Set(c.CacheKey, []byte(fmt.Sprintf("%d", int(c.BlockTime/time.Second))), c.BlockTime); err != nil {
		c.getLogger().Warn().Err(err).Msg("Failed to set rate limit block")
	}
}

// startChallengeCooldown stores the time the challenge is expected to clear, so every
// worker on this provider holds off until then
func (c *BaseCrawler) startChallengeCooldown() {
	if c.CacheSvc == nil || c.CacheKey == "" || c.ChallengeWait <= 0 {
		return
	}
	until := time.Now().Add(c.ChallengeWait).Format(time.RFC3339Nano)
	if err := c.CacheSvc.Set(c.challengeKey(), []byte(until), c.ChallengeWait); err != nil {
		c.getLogger().Warn().Err(err).Msg("Failed to set challenge cooldown")
	}
}

func (c *BaseCrawler) waitChallengeCooldown(ctx context.Context) error {
	if c.CacheSvc == nil || c.CacheKey == "" {
		return nil
	}
	value, err := c.CacheSvc.Get(c.challengeKey())
	if err != nil {
		return nil
	}
	until, err := time.Parse(time.RFC3339Nano, string(value))
	if err != nil {
		return nil
	}
	return sleep(ctx, time.Until(until))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// createDocument creates a goquery document from a reader
func (c *BaseCrawler) createDocument(reader io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, apperrors.NewParsing(c.Provider, "failed to parse HTML", err)
	}
	return doc, nil
}

// ResolveURL resolves a relative URL against the crawler's base URL
func (c *BaseCrawler) ResolveURL(href string) string {
	return helpers.ResolveURL(c.BaseURL, href)
}

// ExtractPrice splits a trailing price off a title using PriceRegex
func (c *BaseCrawler) ExtractPrice(title string) (string, string) {
	if c.priceRe == nil {
		if c.PriceRegex == "" {
			return title, ""
		}
		re, err := regexp.Compile(c.PriceRegex)
		if err != nil {
			return title, ""
		}
		c.priceRe = re
	}

	match := c.priceRe.FindStringSubmatch(title)
	if match == nil {
		return title, ""
	}
	price := match[0]
	if len(match) > 1 {
		price = match[1]
	}
	return strings.TrimSpace(strings.Replace(title, match[0], "", 1)), strings.TrimSpace(price)
}
