package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/karelxkk/svx-dashboard/internal/platform/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestNew_JSONWithCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")

	logger.DebugContext(context.Background(), "hidden")
	logger.InfoContext(correlation.WithID(context.Background(), "c0ffee"), "Broadcast", "event", "history_add")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Broadcast", rec["msg"])
	assert.Equal(t, "history_add", rec["event"])
	assert.Equal(t, "c0ffee", rec[correlation.Key])
}

func TestInitLogger_File(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "svx.log")
	closer := InitLogger(Options{Level: "info", Format: "text", File: path})
	slog.Info("File logging works")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "File logging works")
}
