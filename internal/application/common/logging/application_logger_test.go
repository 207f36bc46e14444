package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level string) (ApplicationLogger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger, err := NewApplicationLoggerWithWriter(Config{Level: level, Format: "json"}, buf)
	require.NoError(t, err)
	return logger, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestApplicationLogger_CreateStructuredLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "json to stdout", config: Config{Level: "INFO", Format: "json", Output: "stdout"}},
		{name: "text to stderr", config: Config{Level: "DEBUG", Format: "text", Output: "stderr"}},
		{name: "invalid level", config: Config{Level: "INVALID", Format: "json", Output: "stdout"}, wantErr: true},
		{name: "invalid format", config: Config{Level: "INFO", Format: "xml", Output: "stdout"}, wantErr: true},
		{name: "invalid output", config: Config{Level: "INFO", Format: "json", Output: "file"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewApplicationLogger(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
				return
			}
			require.NoError(t, err)
			assert.Implements(t, (*ApplicationLogger)(nil), logger)
		})
	}
}

func TestApplicationLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, "WARN")
	ctx := context.Background()

	logger.Debug(ctx, "debug", nil)
	logger.Info(ctx, "info", nil)
	logger.Warn(ctx, "warn", nil)
	logger.Error(ctx, "error", nil)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
}

func TestApplicationLogger_FieldsComponentAndCorrelation(t *testing.T) {
	logger, buf := newBufferLogger(t, "DEBUG")
	ctx := WithCorrelationID(context.Background(), "corr-123")

	logger.WithComponent("archive-service").Info(ctx, "migration finished", Fields{
		"scope":     "course",
		"processed": 42,
	})

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "migration finished", entry["message"])
	assert.Equal(t, "archive-service", entry["component"])
	assert.Equal(t, "corr-123", entry["correlation_id"])
	assert.Equal(t, "course", entry["scope"])
	assert.InDelta(t, 42, entry["processed"], 0)
	assert.Contains(t, entry, "time")
}

func TestApplicationLogger_ErrorWithError(t *testing.T) {
	logger, buf := newBufferLogger(t, "INFO")

	logger.ErrorWithError(context.Background(), errors.New("boom"), "flush failed", Fields{"batch": 2})

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0]["error"])
	assert.Equal(t, "error", entries[0]["level"])
}

func TestApplicationLogger_LogPerformance(t *testing.T) {
	logger, buf := newBufferLogger(t, "INFO")

	logger.LogPerformance(context.Background(), "migrate_all", 1500*time.Millisecond, nil)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "migrate_all", entries[0]["operation"])
	assert.InDelta(t, 1500, entries[0]["duration_ms"], 0.001)
}

func TestEnsureCorrelationID(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	require.NotEmpty(t, id)
	assert.Equal(t, id, GetCorrelationID(ctx))

	same, again := EnsureCorrelationID(ctx)
	assert.Equal(t, id, again)
	assert.Equal(t, ctx, same)
}

func TestLogNATSPublishEvent(t *testing.T) {
	logger, buf := newBufferLogger(t, "INFO")
	ctx := context.Background()

	LogNATSPublishEvent(ctx, logger, NATSPublishEvent{Subject: "archive.events.completed", Success: true, Stream: "ARCHIVE", Sequence: 7})
	LogNATSPublishEvent(ctx, logger, NATSPublishEvent{Subject: "archive.events.failed", Error: errors.New("no responders")})

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "NATS message published", entries[0]["message"])
	assert.Equal(t, "ARCHIVE", entries[0]["stream"])
	assert.Equal(t, "no responders", entries[1]["error"])
}
