package cache

import (
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired
var ErrCacheMiss = errors.New("cache: miss")

// CacheService represents a generic cache service.
// The crawler keeps rate-limit blocks and challenge cooldowns in it.
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// New returns a memcache-backed cache when addr is set, otherwise an in-process cache
func New(addr string) CacheService {
	if addr == "" {
		return NewLocalCache(1024)
	}
	return NewMemcacheService(addr)
}
