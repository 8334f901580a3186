// Package progress keeps the JSON checkpoint of completed scrape units so a crawl can resume.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Completion records a finished unit
type Completion struct {
	Count      int       `json:"count"`
	FinishedAt time.Time `json:"finished_at"`
}

// Failure records the last error of a unit that has not completed
type Failure struct {
	Error       string    `json:"error"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
}

type state struct {
	Completed map[string]Completion `json:"completed"`
	Failed    map[string]Failure    `json:"failed"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Stats summarizes the checkpoint
type Stats struct {
	Completed int
	Failed    int
	Bikes     int
}

// Tracker is a progress file. It is safe for concurrent use; every mutation is
// written to disk before the call returns.
type Tracker struct {
	mu    sync.Mutex
	path  string
	state state
	now   func() time.Time
}

// Load reads the progress file at path; a missing file yields an empty tracker
func Load(path string) (*Tracker, error) {
	t := &Tracker{
		path: path,
		state: state{
			Completed: make(map[string]Completion),
			Failed:    make(map[string]Failure),
		},
		now: time.Now,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress file: %w", err)
	}

	if err := json.Unmarshal(data, &t.state); err != nil {
		return nil, fmt.Errorf("failed to parse progress file %s: %w", path, err)
	}
	if t.state.Completed == nil {
		t.state.Completed = make(map[string]Completion)
	}
	if t.state.Failed == nil {
		t.state.Failed = make(map[string]Failure)
	}
	return t, nil
}

// Path returns the file the tracker writes to
func (t *Tracker) Path() string {
	return t.path
}

// IsDone reports whether the unit has completed
func (t *Tracker) IsDone(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.state.Completed[key]
	return ok
}

// MarkDone records a completed unit and clears any earlier failure
func (t *Tracker) MarkDone(key string, count int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.Completed[key] = Completion{Count: count, FinishedAt: t.now().UTC()}
	delete(t.state.Failed, key)
	return t.save()
}

// MarkFailed records a failed attempt of a unit
func (t *Tracker) MarkFailed(key string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	failure := t.state.Failed[key]
	failure.Attempts++
	failure.LastAttempt = t.now().UTC()
	if cause != nil {
		failure.Error = cause.Error()
	}
	t.state.Failed[key] = failure
	return t.save()
}

// Failures returns the recorded failures keyed by unit
func (t *Tracker) Failures() map[string]Failure {
	t.mu.Lock()
	defer t.mu.Unlock()

	failures := make(map[string]Failure, len(t.state.Failed))
	for k, v := range t.state.Failed {
		failures[k] = v
	}
	return failures
}

// Pending filters keys down to the units that have not completed, keeping their order
func (t *Tracker) Pending(keys []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pending []string
	for _, key := range keys {
		if _, ok := t.state.Completed[key]; !ok {
			pending = append(pending, key)
		}
	}
	return pending
}

// Completed returns the completed unit keys in sorted order
func (t *Tracker) Completed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]string, 0, len(t.state.Completed))
	for k := range t.state.Completed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reset forgets every unit and rewrites the file
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.Completed = make(map[string]Completion)
	t.state.Failed = make(map[string]Failure)
	return t.save()
}

// Stats summarizes the checkpoint
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Stats{Completed: len(t.state.Completed), Failed: len(t.state.Failed)}
	for _, c := range t.state.Completed {
		stats.Bikes += c.Count
	}
	return stats
}

// save writes the state to a temporary file and renames it over the progress file,
// so a crash never leaves a truncated checkpoint. Callers hold t.mu.
func (t *Tracker) save() error {
	t.state.UpdatedAt = t.now().UTC()

	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create progress directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary progress file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write progress: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace progress file: %w", err)
	}
	return nil
}
