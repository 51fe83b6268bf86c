package logctx

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// TraceHandler decorates records with request-scoped values found in the context:
// the OpenTelemetry trace_id and span_id, and the chapter_id set by WithChapterID.
type TraceHandler struct {
	slog.Handler
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	if h == nil {
		panic("logctx: nil handler")
	}

	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(contextAttrs(ctx)...)

	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewTraceHandler(h.Handler.WithAttrs(attrs))
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return NewTraceHandler(h.Handler.WithGroup(name))
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	if id, ok := ChapterIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String("chapter_id", id))
	}

	return attrs
}
