package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
	assert.True(t, ValidLevel("Info"))
	assert.False(t, ValidLevel("verbose"))
}

func TestNewLogger_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(Config{Level: "warn", Format: "json"}, &buf)

	log.Info().Msg("hidden")
	symLog := WithSymbol(log, "SPY")
	symLog.Warn().Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "SPY", entry["symbol"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.File = path
	log := newLogger(cfg, &buf)

	log.Info().Str("run_id", "r1").Msg("scan complete")

	assert.Contains(t, buf.String(), "scan complete")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"r1"`)
}
