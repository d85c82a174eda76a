package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewJSONToConsole(t *testing.T) {
	var buf bytes.Buffer
	log, closeFn := New(Options{Level: "debug", Format: "json", Console: &buf})
	defer closeFn()

	log.Debug("llm attempt", "section", "introduction")
	assert.Contains(t, buf.String(), `"msg":"llm attempt"`)
	assert.Contains(t, buf.String(), `"section":"introduction"`)
}

func TestNewWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "srsgen.log")
	var console bytes.Buffer

	log, closeFn := New(Options{Level: "info", File: path, Console: &console})
	log.Info("document saved", "path", "out.docx")
	log.Debug("hidden")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "document saved")
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, console.String(), "document saved")
}
