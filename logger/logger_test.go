package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentLoggers(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	var buf bytes.Buffer
	InitWithWriter(&buf)
	buf.Reset()

	ForCrawler("99spokes").Info().Int("bikes", 3).Msg("listing parsed")
	ForPipeline("dedupe").Warn().Msg("duplicates dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "99spokes", first["crawler"])
	assert.Equal(t, float64(3), first["bikes"])
	assert.Equal(t, "info", first["level"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "pipeline", second["component"])
	assert.Equal(t, "dedupe", second["stage"])
}

func TestLogLevelFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("BIKECRAWLER_ENVIRONMENT", "production")
	var buf bytes.Buffer
	InitWithWriter(&buf)

	Debug("hidden %d", 1)
	assert.Empty(t, buf.String())
	assert.False(t, IsDebugEnabled())

	LogError("store", errors.New("locked"), "insert %s", "variant")
	assert.Contains(t, buf.String(), "locked")
	assert.Contains(t, buf.String(), "insert variant")
}
