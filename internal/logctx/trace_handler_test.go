package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	return entry
}

func spanContext(t *testing.T) context.Context {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestTraceHandler_NoSpanContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "test message", "key", "value")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.NotContains(t, entry, "chapter_id")
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

func TestTraceHandler_WithValidSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(spanContext(t), "test message")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestTraceHandler_WithChapterID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithChapterID(context.Background(), "src||c1||ch1")
	logger.InfoContext(ctx, "page written")

	entry := decode(t, &buf)
	assert.Equal(t, "src||c1||ch1", entry["chapter_id"])
}

func TestTraceHandler_Enabled(t *testing.T) {
	h := NewTraceHandler(slog.NewJSONHandler(nil, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx := context.Background()
	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}

func TestTraceHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewTraceHandler(slog.NewJSONHandler(&buf, nil))

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("component", "worker")})
	require.IsType(t, &TraceHandler{}, withAttrs)

	withGroup := withAttrs.WithGroup("mygroup")
	require.IsType(t, &TraceHandler{}, withGroup)

	slog.New(withGroup).InfoContext(context.Background(), "test", "key", "value")

	entry := decode(t, &buf)
	assert.Equal(t, "worker", entry["component"])
	assert.Equal(t, map[string]any{"key": "value"}, entry["mygroup"])
}

func TestTraceHandler_NilHandler(t *testing.T) {
	assert.Panics(t, func() { NewTraceHandler(nil) })
}

func TestLoggerFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))

	l := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	assert.Same(t, l, LoggerFromContext(WithLogger(context.Background(), l)))
}

func TestNewLoggerTeesToFile(t *testing.T) {
	var stdout bytes.Buffer
	file := filepath.Join(t.TempDir(), "app.log")

	logger, closer := NewLogger(Options{Level: slog.LevelInfo, Format: "json", File: file, Stdout: &stdout})
	logger.Info("hello", "n", 1)
	logger.Debug("dropped")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), `"msg":"hello"`)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.NotContains(t, string(data), "dropped")
}

func TestNewLoggerTextFormat(t *testing.T) {
	var stdout bytes.Buffer

	logger, closer := NewLogger(Options{Level: slog.LevelDebug, Format: "text", Stdout: &stdout, DisableColor: true})
	defer closer.Close()

	logger.Debug("queue refreshed", "queued", 3)

	assert.Contains(t, stdout.String(), "queue refreshed")
	assert.Contains(t, stdout.String(), "queued=3")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
