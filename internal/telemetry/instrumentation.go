package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes stay low-cardinality: chapter ids, titles and urls go to logs, not spans.

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Chapter outcomes reported by InstrumentChapter callbacks.
const (
	OutcomeCompleted   = "completed"
	OutcomeFailed      = "failed"
	OutcomeHalted      = "halted"
	OutcomeSkipped     = "skipped"
	OutcomeInterrupted = "interrupted"
)

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation wraps fn in a span tagged with component and operation.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	ctx, span := t.tracer.Start(ctx, operationName)
	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

// InstrumentDBOperation instruments record store operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	t.RecordDBOperation(ctx, operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentProviderOperation instruments content provider calls.
func (t *Telemetry) InstrumentProviderOperation(ctx context.Context, provider, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "provider_"+operation, "content_provider", func(ctx context.Context) error {
		return fn(ctx)
	})

	t.RecordProviderOperation(ctx, provider, operation, statusOf(err))

	return err
}

// InstrumentChapter wraps the processing of one chapter. fn returns one of the Outcome
// labels; OutcomeFailed marks the span as an error.
func (t *Telemetry) InstrumentChapter(ctx context.Context, fn func(ctx context.Context) string) string {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.incrementActiveChapters(ctx, 1)
	defer t.incrementActiveChapters(ctx, -1)

	ctx, span := t.tracer.Start(ctx, "chapter")
	defer span.End()

	outcome := fn(ctx)

	span.SetAttributes(attribute.String("outcome", outcome))
	if outcome == OutcomeFailed {
		span.SetStatus(codes.Error, "chapter failed")
	}

	t.RecordChapter(ctx, outcome, time.Since(start))

	return outcome
}

func statusOf(err error) string {
	if err != nil {
		return statusError
	}

	return statusSuccess
}
