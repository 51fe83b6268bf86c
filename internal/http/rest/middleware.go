package rest

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/italolelis/chapter_downloader/internal/logctx"
)

const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's request id or assigns a new one, and scopes the
// request logger with it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)

		logger := logctx.LoggerFromContext(r.Context()).With("request_id", id)

		next.ServeHTTP(w, r.WithContext(logctx.WithLogger(r.Context(), logger)))
	})
}

// RequestLogger logs one line per served request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		logctx.LoggerFromContext(r.Context()).Debug("http request",
			"method", r.Method,
			"route", routePattern(r),
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

// routePattern returns the matched chi pattern, or "unmatched" for 404s.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}

	return "unmatched"
}
