package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sjsage522/bikecrawler/logger"
)

// FailureRecorder records scrape units or URLs that could not be processed
type FailureRecorder interface {
	RecordFailure(unit string, err error)
}

// FailureLog appends failures to a plain text file, one line per failure
type FailureLog struct {
	mu   sync.Mutex
	path string
}

// NewFailureLog creates a failure log writing to path
func NewFailureLog(path string) *FailureLog {
	return &FailureLog{path: path}
}

// RecordFailure appends "[timestamp] [unit] error" to the log file and mirrors it to the structured log
func (l *FailureLog) RecordFailure(unit string, err error) {
	logger.ForWorker().Error().Str("unit", unit).Err(err).Msg("Scrape unit failed")

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" {
		if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
			logger.Warn("failed to create failure log directory: %v", mkErr)
			return
		}
	}

	f, fileErr := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if fileErr != nil {
		logger.Warn("failed to open failure log: %v", fileErr)
		return
	}
	defer f.Close()

	message := strings.ReplaceAll(err.Error(), "\n", " ")
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(f, "[%s] [%s] %s\n", timestamp, unit, message)
}

// NopFailureRecorder drops failures; the structured log still sees them through the worker
type NopFailureRecorder struct{}

func (NopFailureRecorder) RecordFailure(string, error) {}
