package progress

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	tracker, err := Load(filepath.Join(t.TempDir(), "progress.json"))
	require.NoError(t, err)
	assert.Equal(t, Stats{}, tracker.Stats())
	assert.False(t, tracker.IsDone("2023:trek"))
}

func TestResumeAfterReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "progress.json")

	tracker, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, tracker.Path())
	require.NoError(t, tracker.MarkDone("2023:trek", 42))
	require.NoError(t, tracker.MarkFailed("2023:giant", errors.New("challenge page")))
	require.NoError(t, tracker.MarkFailed("2023:giant", errors.New("challenge page again")))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, reloaded.IsDone("2023:trek"))
	assert.False(t, reloaded.IsDone("2023:giant"))
	assert.Equal(t, []string{"2023:giant", "2024:trek"}, reloaded.Pending([]string{"2023:trek", "2023:giant", "2024:trek"}))
	assert.Equal(t, Stats{Completed: 1, Failed: 1, Bikes: 42}, reloaded.Stats())

	failure := reloaded.Failures()["2023:giant"]
	assert.Equal(t, 2, failure.Attempts)
	assert.Equal(t, "challenge page again", failure.Error)

	// a later success clears the failure
	require.NoError(t, reloaded.MarkDone("2023:giant", 7))
	assert.Empty(t, reloaded.Failures())
	assert.Equal(t, []string{"2023:giant", "2023:trek"}, reloaded.Completed())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	tracker, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, tracker.MarkDone("2023:trek", 1))
	require.NoError(t, tracker.Reset())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, reloaded.Stats())
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConcurrentMarkDone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	tracker, err := Load(path)
	require.NoError(t, err)

	keys := []string{"2020:a", "2020:b", "2020:c", "2020:d", "2020:e", "2020:f", "2020:g", "2020:h"}
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			assert.NoError(t, tracker.MarkDone(key, 1))
		}(key)
	}
	wg.Wait()

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, len(keys), reloaded.Stats().Completed)
}
