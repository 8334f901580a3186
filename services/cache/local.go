package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"sjsage522/bikecrawler/logger"
)

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// LocalCache implements CacheService in process for single-machine runs.
// Block and cooldown keys are set with different expirations, so each entry carries its own
// deadline and the LRU only bounds the number of keys.
type LocalCache struct {
	lru *lru.Cache[string, localEntry]
	now func() time.Time
}

// NewLocalCache creates an in-process cache holding at most size keys
func NewLocalCache(size int) *LocalCache {
	if size < 1 {
		size = 1
	}

	c := &LocalCache{now: time.Now}
	// NewWithEvict only fails for a non-positive size
	c.lru, _ = lru.NewWithEvict(size, c.onEvict)
	return c
}

func (c *LocalCache) onEvict(key string, entry localEntry) {
	if entry.expiresAt.IsZero() || c.now().Before(entry.expiresAt) {
		logger.ForCache().Debug().Str("key", key).Msg("Evicted live cache entry")
	}
}

// Get retrieves a value that has not expired yet
func (c *LocalCache) Get(key string) ([]byte, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores a value; a non-positive expiration keeps it until evicted
func (c *LocalCache) Set(key string, value []byte, expiration time.Duration) error {
	entry := localEntry{value: append([]byte(nil), value...)}
	if expiration > 0 {
		entry.expiresAt = c.now().Add(expiration)
	}
	c.lru.Add(key, entry)
	return nil
}

// Delete removes a value
func (c *LocalCache) Delete(key string) error {
	c.lru.Remove(key)
	return nil
}
