package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := Setup(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	})

	logger.Info("test message", "key", "value")

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "test message", logEntry["msg"])
	assert.Equal(t, "value", logEntry["key"])
	assert.Equal(t, "INFO", logEntry["level"])
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := Setup(Config{
		Level:  "info",
		Format: "text",
		Output: &buf,
	})

	logger.Info("test message", "key", "value")

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "key=value")
	// no ANSI escapes when not writing to a terminal
	assert.NotContains(t, output, "\x1b[")
}

func TestSetup_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{
		Level:  "warn",
		Format: "json",
		Output: &buf,
	})

	Info(context.Background(), "dropped")
	assert.Empty(t, buf.String())

	Warn(context.Background(), "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetup_FileOutput(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger := Setup(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
		File:   path,
	})
	logger.Info("to both")

	assert.Contains(t, buf.String(), "to both")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithProvider(ctx, "openai")
	ctx = WithSyncID(ctx, "sync-1")

	assert.Equal(t, "req-123", RequestID(ctx))
	assert.Equal(t, "openai", ctx.Value(ProviderKey))
	assert.Equal(t, "sync-1", ctx.Value(SyncIDKey))
	assert.Empty(t, RequestID(context.Background()))
}

func TestLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	})

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithSyncID(ctx, "sync-456")

	logger := Logger(ctx)
	logger.Info("test with context")

	output := buf.String()
	assert.Contains(t, output, "req-123")
	assert.Contains(t, output, "sync-456")
}

func TestAudit(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	})

	ctx := WithProvider(context.Background(), "anthropic")

	Audit(ctx, "bulk_import", "success_count", 9, "error_count", 1)

	output := buf.String()
	assert.Contains(t, output, "AUDIT")
	assert.Contains(t, output, "bulk_import")
	assert.Contains(t, output, `"provider":"anthropic"`)
}

func TestContextHandler_AddsContextValues(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	})

	ctx := context.Background()
	ctx = WithRequestID(ctx, "test-request-id")
	ctx = WithProvider(ctx, "openai")

	// derived loggers keep the context wrapper
	slog.Default().With("component", "syncer").InfoContext(ctx, "test message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var logEntry map[string]interface{}
	err := json.Unmarshal([]byte(lines[0]), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "test message", logEntry["msg"])
	assert.Equal(t, "test-request-id", logEntry["request_id"])
	assert.Equal(t, "openai", logEntry["provider"])
	assert.Equal(t, "syncer", logEntry["component"])
}
