package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Redis configuration, an empty address disables crawl events
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration, an empty address selects the in-process cache
	MemcacheAddr string

	// Crawler configuration
	CatalogSite       string
	SitesFile         string
	RequestTimeout    time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	ChallengeWait     time.Duration
	RequestsPerSecond float64
	Burst             int
	Workers           int
	Headless          bool
	UseBrowser        bool

	// Output configuration
	OutputDir    string
	ProgressFile string
	FailureLog   string

	// Storage configuration
	DatabaseDriver string
	DatabaseDSN    string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	outputDir := getEnv("OUTPUT_DIR", "data")

	return &Config{
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "bikes"),
		RedisStreamCount:     getEnvInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		CatalogSite:          getEnv("CATALOG_SITE", "99spokes"),
		SitesFile:            getEnv("SITES_FILE", ""),
		RequestTimeout:       time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxRetries:           getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay:       time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 2000)) * time.Millisecond,
		ChallengeWait:        time.Duration(getEnvInt("CHALLENGE_WAIT_SECONDS", 30)) * time.Second,
		RequestsPerSecond:    getEnvFloat("REQUESTS_PER_SECOND", 0.5),
		Burst:                getEnvInt("BURST", 1),
		Workers:              getEnvInt("WORKERS", 2),
		Headless:             getEnvBool("HEADLESS", true),
		UseBrowser:           getEnvBool("USE_BROWSER", false),
		OutputDir:            outputDir,
		ProgressFile:         getEnv("PROGRESS_FILE", outputDir+"/progress.json"),
		FailureLog:           getEnv("FAILURE_LOG", outputDir+"/failures.log"),
		DatabaseDriver:       getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:          getEnv("DATABASE_DSN", outputDir+"/bikes.db"),
		Environment:          getEnv("BIKECRAWLER_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the crawler cannot run with
func (c *Config) Validate() error {
	var problems []string

	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("unsupported database driver %q", c.DatabaseDriver))
	}
	if c.DatabaseDSN == "" {
		problems = append(problems, "database DSN is empty")
	}
	if c.Workers < 1 {
		problems = append(problems, "workers must be at least 1")
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "max retries cannot be negative")
	}
	if c.RequestsPerSecond <= 0 {
		problems = append(problems, "requests per second must be positive")
	}
	if c.Burst < 1 {
		problems = append(problems, "burst must be at least 1")
	}
	if c.OutputDir == "" {
		problems = append(problems, "output directory is empty")
	}
	if c.RedisStreamCount < 1 {
		problems = append(problems, "redis stream count must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
