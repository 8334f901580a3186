package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/bikecrawler/internal/export"
	"sjsage522/bikecrawler/internal/model"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := Execute(context.Background())
	return out.String(), err
}

func TestParseURLCommand(t *testing.T) {
	out, err := run(t, "parse-url",
		"https://99spokes.com/en-US/bikes/trek/2023/marlin-7",
		"https://example.com/about",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Marlin 7")
	assert.Contains(t, out, "trek-2023-marlin-7")
	assert.Contains(t, out, "https://example.com/about")
}

func TestConsolidateAndQCCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OUTPUT_DIR", dir)
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", filepath.Join(dir, "bikes.db"))

	require.NoError(t, export.WriteFile(filepath.Join(dir, "bikes_2023_honda.csv"), []model.Bike{
		{Make: "Honda", Model: "CB500F", Year: 2023, Engine: "471 cc parallel twin"},
		{Make: "honda", Model: "cb500f", Year: 2023, Price: "$6,899"},
		{Make: "Honda", Model: "Rebel 500", Year: 2023},
	}))

	out, err := run(t, "consolidate")
	require.NoError(t, err)
	assert.Contains(t, out, "read: 3, invalid: 0, duplicates: 1, created: 2")

	out, err = run(t, "qc", "--strict")
	require.NoError(t, err)
	assert.Contains(t, out, "Variants")
	assert.Contains(t, out, "Rebel 500")
}

func TestInvalidConfiguration(t *testing.T) {
	t.Setenv("WORKERS", "0")
	_, err := run(t, "qc")
	assert.ErrorContains(t, err, "workers must be at least 1")
}
