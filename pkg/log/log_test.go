package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandler_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(newHandler(&buf, "info", "json"))
	logger.Info("workflow started", "workflow_id", "wf-1")

	var entry map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "workflow started", entry["msg"])
	assert.Equal(t, "wf-1", entry["workflow_id"])
}

func TestNewHandler_TextIsDefaultFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(newHandler(&buf, "info", "unknown"))
	logger.Info("workflow started")

	assert.Contains(t, buf.String(), "msg=\"workflow started\"")
}

func TestNewHandler_Levels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level     string
		debugKept bool
		warnKept  bool
	}{
		{level: "debug", debugKept: true, warnKept: true},
		{level: "info", debugKept: false, warnKept: true},
		{level: "warn", debugKept: false, warnKept: true},
		{level: "error", debugKept: false, warnKept: false},
		{level: "bogus", debugKept: false, warnKept: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			t.Parallel()

			handler := newHandler(&bytes.Buffer{}, tt.level, "text")

			assert.Equal(t, tt.debugKept, handler.Enabled(t.Context(), slog.LevelDebug))
			assert.Equal(t, tt.warnKept, handler.Enabled(t.Context(), slog.LevelWarn))
		})
	}
}
