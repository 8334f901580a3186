package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/bikecrawler/internal/crawler"
	"sjsage522/bikecrawler/internal/export"
	"sjsage522/bikecrawler/internal/model"
	"sjsage522/bikecrawler/internal/progress"
	"sjsage522/bikecrawler/services/publisher"
)

// MockCrawler implements the crawler.Crawler interface for testing
type MockCrawler struct {
	mu      sync.Mutex
	bikes   map[string][]model.Bike
	errs    map[string]error
	calls   []string
	running atomic.Int32
	peak    atomic.Int32
}

// Ensure MockCrawler implements crawler.Crawler
var _ crawler.Crawler = (*MockCrawler)(nil)

func (m *MockCrawler) FetchBikes(ctx context.Context, unit model.Unit) ([]model.Bike, error) {
	n := m.running.Add(1)
	defer m.running.Add(-1)
	for {
		peak := m.peak.Load()
		if n <= peak || m.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, unit.Key())
	m.mu.Unlock()

	if err := m.errs[unit.Key()]; err != nil {
		return nil, err
	}
	return m.bikes[unit.Key()], nil
}

func (m *MockCrawler) FetchDetail(ctx context.Context, url string) (model.Bike, error) {
	return model.Bike{URL: url}, nil
}

func (m *MockCrawler) GetName() string {
	return "MockCrawler"
}

func (m *MockCrawler) GetProvider() string {
	return "Test"
}

// MockPublisher implements the publisher.Publisher interface for testing
type MockPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
	trimmed  int
}

// Ensure MockPublisher implements publisher.Publisher
var _ publisher.Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{messages: make(map[string][][]byte)}
}

func (m *MockPublisher) Publish(key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy the message to ensure thread safety
	messageCopy := make([]byte, len(message))
	copy(messageCopy, message)

	m.messages[key] = append(m.messages[key], messageCopy)
	return nil
}

func (m *MockPublisher) TrimStreams() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimmed++
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// MockFailureRecorder collects recorded failures
type MockFailureRecorder struct {
	mu       sync.Mutex
	failures []string
}

func (m *MockFailureRecorder) RecordFailure(unit string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, unit+": "+err.Error())
}

// MemorySink keeps written units in memory
type MemorySink struct {
	mu    sync.Mutex
	units map[string][]model.Bike
}

func (s *MemorySink) Write(unit model.Unit, bikes []model.Bike) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.units == nil {
		s.units = make(map[string][]model.Bike)
	}
	s.units[unit.Key()] = bikes
	return "memory://" + unit.Key(), nil
}

func loadProgress(t *testing.T) *progress.Tracker {
	t.Helper()
	tracker, err := progress.Load(filepath.Join(t.TempDir(), "progress.json"))
	require.NoError(t, err)
	return tracker
}

func TestWorkerRun(t *testing.T) {
	ctx := context.Background()
	units := model.Units([]int{2023}, []string{"Trek", "Giant", "Scott"}, nil)

	mockCrawler := &MockCrawler{
		bikes: map[string][]model.Bike{
			"2023:trek":  {{Make: "Trek", Model: "Marlin 7", Year: 2023}, {Make: "Trek", Model: "Fuel EX", Year: 2023}},
			"2023:giant": {{Make: "Giant", Model: "Talon 1", Year: 2023}},
		},
		errs: map[string]error{"2023:scott": errors.New("challenge page")},
	}
	mockPublisher := NewMockPublisher()
	failures := &MockFailureRecorder{}
	sink := &MemorySink{}
	tracker := loadProgress(t)

	w := NewWorker(mockCrawler, sink, mockPublisher, tracker, failures, 2)
	summary, err := w.Run(ctx, units)
	require.NoError(t, err)

	assert.Equal(t, Summary{Units: 3, Succeeded: 2, Failed: 1, Bikes: 3}, summary)
	assert.Len(t, sink.units["2023:trek"], 2)
	assert.Len(t, mockPublisher.messages["Test"], 3)
	assert.Equal(t, 1, mockPublisher.trimmed)
	assert.Equal(t, []string{"2023:scott: challenge page"}, failures.failures)

	var event Event
	require.NoError(t, json.Unmarshal(mockPublisher.messages["Test"][0], &event))
	assert.Equal(t, w.RunID(), event.RunID)
	assert.NotEmpty(t, event.Unit)

	assert.True(t, tracker.IsDone("2023:trek"))
	assert.True(t, tracker.IsDone("2023:giant"))
	assert.False(t, tracker.IsDone("2023:scott"))
	assert.Contains(t, tracker.Failures(), "2023:scott")
}

func TestWorkerResumesFromProgress(t *testing.T) {
	ctx := context.Background()
	units := model.Units([]int{2022, 2023}, []string{"Trek"}, nil)

	tracker := loadProgress(t)
	require.NoError(t, tracker.MarkDone("2022:trek", 10))

	mockCrawler := &MockCrawler{bikes: map[string][]model.Bike{"2023:trek": {{Make: "Trek", Model: "Marlin 7"}}}}
	w := NewWorker(mockCrawler, &MemorySink{}, nil, tracker, nil, 1)

	summary, err := w.Run(ctx, units)
	require.NoError(t, err)
	assert.Equal(t, Summary{Units: 2, Skipped: 1, Succeeded: 1, Bikes: 1}, summary)
	assert.Equal(t, []string{"2023:trek"}, mockCrawler.calls)

	// a second run has nothing left to do
	summary, err = w.Run(ctx, units)
	require.NoError(t, err)
	assert.Equal(t, Summary{Units: 2, Skipped: 2}, summary)
}

func TestWorkerRespectsConcurrencyLimit(t *testing.T) {
	var brands []string
	for i := 0; i < 12; i++ {
		brands = append(brands, fmt.Sprintf("brand%d", i))
	}

	mockCrawler := &MockCrawler{}
	w := NewWorker(mockCrawler, nil, nil, nil, nil, 3)
	summary, err := w.Run(context.Background(), model.Units([]int{2024}, brands, nil))
	require.NoError(t, err)

	assert.Equal(t, 12, summary.Succeeded)
	assert.LessOrEqual(t, mockCrawler.peak.Load(), int32(3))
}

func TestWorkerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mockCrawler := &MockCrawler{}
	failures := &MockFailureRecorder{}
	w := NewWorker(mockCrawler, nil, nil, nil, failures, 2)

	summary, err := w.Run(ctx, model.Units([]int{2023}, []string{"Trek", "Giant"}, nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Succeeded)
	assert.Empty(t, mockCrawler.calls)
	assert.Empty(t, failures.failures)
}

func TestWorkerInterruptedUnitStaysPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tracker := loadProgress(t)
	failures := &MockFailureRecorder{}
	w := NewWorker(&MockCrawler{}, nil, nil, tracker, failures, 1)

	w.fail(ctx, "2023:trek", fmt.Errorf("listing page 1: %w", context.Canceled))
	assert.Empty(t, failures.failures)
	assert.Empty(t, tracker.Failures())
}

func TestWorkerRunURLs(t *testing.T) {
	failures := &MockFailureRecorder{}
	w := NewWorker(&MockCrawler{}, nil, nil, nil, failures, 2)

	var visited sync.Map
	urls := []string{"https://bikez.com/a", "https://bikez.com/b", "https://bikez.com/c"}
	summary, err := w.RunURLs(context.Background(), urls, func(ctx context.Context, url string) error {
		visited.Store(url, true)
		if url == "https://bikez.com/b" {
			return errors.New("404")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, URLSummary{URLs: 3, Succeeded: 2, Failed: 1}, summary)
	assert.Equal(t, []string{"https://bikez.com/b: 404"}, failures.failures)

	for _, url := range urls {
		_, ok := visited.Load(url)
		assert.True(t, ok, url)
	}
}

func TestFileSinkIntegration(t *testing.T) {
	dir := t.TempDir()
	mockCrawler := &MockCrawler{bikes: map[string][]model.Bike{"2023:trek": {{Make: "Trek", Model: "Marlin 7", Year: 2023}}}}
	w := NewWorker(mockCrawler, export.NewFileSink(dir, export.FormatCSV), nil, nil, nil, 1)

	_, err := w.Run(context.Background(), []model.Unit{{Year: 2023, Brand: "Trek"}})
	require.NoError(t, err)

	bikes, err := export.ReadFile(filepath.Join(dir, "bikes_2023_trek.csv"))
	require.NoError(t, err)
	require.Len(t, bikes, 1)
	assert.Equal(t, "Marlin 7", bikes[0].Model)
}
