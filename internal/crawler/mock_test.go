package crawler

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sjsage522/bikecrawler/services/cache"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

// countingServer serves handler and counts requests
func countingServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, hit int64)) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	hits := &atomic.Int64{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(w, r, hits.Add(1))
	}))
	t.Cleanup(server.Close)
	return server, hits
}

func testConfig(baseURL string) CrawlerConfig {
	return CrawlerConfig{
		Name:           "test",
		BaseURL:        baseURL,
		Provider:       "TestCatalog",
		CacheKey:       "test_rate_limited",
		BlockTime:      60,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		ChallengeWait:  time.Millisecond,
	}
}
