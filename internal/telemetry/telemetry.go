package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
// A zero Telemetry (or a nil pointer) is valid and records nothing.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	registry       *promclient.Registry

	// HTTP
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Pipeline
	chaptersTotal     metric.Int64Counter
	chaptersActive    metric.Int64UpDownCounter
	chapterDuration   metric.Float64Histogram
	pagesWritten      metric.Int64Counter
	pageBytes         metric.Int64Counter
	queueDepth        metric.Int64Gauge
	cleanupDeleted    metric.Int64Counter
	providerOpsTotal  metric.Int64Counter
	providerErrors    metric.Int64Counter
	dbOperationsTotal metric.Int64Counter
	dbOpDuration      metric.Float64Histogram
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint, when set, additionally pushes metrics over OTLP/gRPC.
	OTLPEndpoint string
}

// New creates a new telemetry instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	registry := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res), sdkmetric.WithReader(exporter)}

	if cfg.OTLPEndpoint != "" {
		otlp, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlp)))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		registry:       registry,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime metrics: %w", err)
	}

	return t, nil
}

// Tracer returns the OpenTelemetry tracer, or a no-op tracer when disabled.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer("noop")
	}

	return t.tracer
}

// Handler returns the HTTP handler for the metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.registry == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.meterProvider == nil {
		return nil
	}

	return errors.Join(t.meterProvider.Shutdown(ctx), t.tracerProvider.Shutdown(ctx))
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(ctx context.Context, method, route, statusClass string, duration time.Duration) {
	if t == nil || t.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", statusClass),
	)

	t.httpRequestsTotal.Add(ctx, 1, attrs)
	t.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordChapter records the outcome of one processed chapter.
func (t *Telemetry) RecordChapter(ctx context.Context, outcome string, duration time.Duration) {
	if t == nil || t.chaptersTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	t.chaptersTotal.Add(ctx, 1, attrs)
	t.chapterDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordPage records a page written by the given strategy ("network" or "direct").
func (t *Telemetry) RecordPage(ctx context.Context, strategy string, bytes int64) {
	if t == nil || t.pagesWritten == nil {
		return
	}

	t.pagesWritten.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
	t.pageBytes.Add(ctx, bytes)
}

// RecordQueueDepth records the number of queued chapters after a refresh.
func (t *Telemetry) RecordQueueDepth(ctx context.Context, depth int) {
	if t == nil || t.queueDepth == nil {
		return
	}

	t.queueDepth.Record(ctx, int64(depth))
}

// RecordCleanup records artifacts removed by a sweep, by kind ("record", "archive", "folder").
func (t *Telemetry) RecordCleanup(ctx context.Context, kind string, n int) {
	if t == nil || t.cleanupDeleted == nil || n == 0 {
		return
	}

	t.cleanupDeleted.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordProviderOperation records content provider calls.
func (t *Telemetry) RecordProviderOperation(ctx context.Context, provider, operation, status string) {
	if t == nil || t.providerOpsTotal == nil {
		return
	}

	t.providerOpsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))

	if status == statusError {
		t.providerErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("operation", operation),
		))
	}
}

// RecordDBOperation records database operation metrics.
func (t *Telemetry) RecordDBOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if t == nil || t.dbOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.dbOperationsTotal.Add(ctx, 1, attrs)
	t.dbOpDuration.Record(ctx, duration.Seconds(), attrs)
}

func (t *Telemetry) incrementActiveChapters(ctx context.Context, delta int64) {
	if t == nil || t.chaptersActive == nil {
		return
	}

	t.chaptersActive.Add(ctx, delta)
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	if t.httpRequestsTotal, err = t.meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests"), metric.WithUnit("1")); err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	if t.httpRequestDuration, err = t.meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"), metric.WithUnit("s")); err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	if t.chaptersTotal, err = t.meter.Int64Counter("chapters_total",
		metric.WithDescription("Chapters processed by the worker, by outcome"), metric.WithUnit("1")); err != nil {
		return fmt.Errorf("failed to create chapters_total counter: %w", err)
	}

	if t.chaptersActive, err = t.meter.Int64UpDownCounter("chapters_active",
		metric.WithDescription("Chapters currently being processed"), metric.WithUnit("1")); err != nil {
		return fmt.Errorf("failed to create chapters_active counter: %w", err)
	}

	if t.chapterDuration, err = t.meter.Float64Histogram("chapter_duration_seconds",
		metric.WithDescription("Time from dequeue to report for one chapter"), metric.WithUnit("s")); err != nil {
		return fmt.Errorf("failed to create chapter_duration histogram: %w", err)
	}

	if t.pagesWritten, err = t.meter.Int64Counter("pages_written_total",
		metric.WithDescription("Pages written to scratch directories"), metric.WithUnit("1")); err != nil {
		return fmt.Errorf("failed to create pages_written_total counter: %w", err)
	}

	if t.pageBytes, err = t.meter.Int64Counter("page_bytes_total",
		metric.WithDescription("Bytes written for pages"), metric.WithUnit("By")); err != nil {
		return fmt.Errorf("failed to create page_bytes_total counter: %w", err)
	}

	if t.queueDepth, err = t.meter.Int64Gauge("queue_depth",
		metric.WithDescription("Queued chapters waiting for the worker"), metric.WithUnit("1")); err != nil {
		return fmt.Errorf("failed to create queue_depth gauge: %w", err)
	}

	if t.cleanupDeleted, err = t.meter.Int64Counter("cleanup_deleted_total",
		metric.WithDescription("Records and artifacts removed by the cleanup sweeper"), metric.WithUnit("1")); err != nil {
		return fmt.Errorf("failed to create cleanup_deleted_total counter: %w", err)
	}

	if t.providerOpsTotal, err = t.meter.Int64Counter("provider_operations_total",
		metric.WithDescription("Content provider operations"), metric.WithUnit("1")); err != nil {
		return fmt.Errorf("failed to create provider_operations_total counter: %w", err)
	}

	if t.providerErrors, err = t.meter.Int64Counter("provider_errors_total",
		metric.WithDescription("Content provider errors"), metric.WithUnit("1")); err != nil {
		return fmt.Errorf("failed to create provider_errors_total counter: %w", err)
	}

	if t.dbOperationsTotal, err = t.meter.Int64Counter("db_operations_total",
		metric.WithDescription("Total number of database operations"), metric.WithUnit("1")); err != nil {
		return fmt.Errorf("failed to create db_operations_total counter: %w", err)
	}

	if t.dbOpDuration, err = t.meter.Float64Histogram("db_operation_duration_seconds",
		metric.WithDescription("Database operation duration in seconds"), metric.WithUnit("s")); err != nil {
		return fmt.Errorf("failed to create db_operation_duration histogram: %w", err)
	}

	return nil
}
