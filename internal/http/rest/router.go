// Package rest exposes the download pipeline over HTTP.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/italolelis/chapter_downloader/internal/telemetry"
)

func NewRouter(queue Queue, events EventSource, tel *telemetry.Telemetry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(tel.HTTPMiddleware(routePattern))
	r.Use(RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Get("/events", NewEventHandler(events).HandleEvents)
	r.Mount("/chapters", NewChapterHandler(queue).Routes())

	return r
}
