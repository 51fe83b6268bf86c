package telemetry

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPMiddleware traces each request and records request metrics. routeOf maps a
// served request to a low-cardinality route label; it runs after the handler so
// router state is populated. The wrapped writer keeps http.Hijacker for websockets.
func (t *Telemetry) HTTPMiddleware(routeOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if t == nil || t.tracer == nil {
			return next
		}

		measured := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)

			t.RecordHTTPRequest(r.Context(), r.Method, routeOf(r), statusClass(m.Code), m.Duration)
		})

		return otelhttp.NewHandler(measured, "http_request",
			otelhttp.WithTracerProvider(t.tracerProvider),
			otelhttp.WithMeterProvider(t.meterProvider),
		)
	}
}

// statusClass returns the status class (2xx, 3xx, 4xx, 5xx) for a given status code.
func statusClass(statusCode int) string {
	switch {
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		return "2xx"
	case statusCode >= http.StatusMultipleChoices && statusCode < http.StatusBadRequest:
		return "3xx"
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		return "4xx"
	case statusCode >= http.StatusInternalServerError:
		return "5xx"
	default:
		return "unknown"
	}
}
