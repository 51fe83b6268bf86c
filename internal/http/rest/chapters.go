package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/downloader"
	"github.com/italolelis/chapter_downloader/internal/logctx"
	"github.com/italolelis/chapter_downloader/internal/storage"
)

// Queue is the set of caller commands the control surface exposes.
type Queue interface {
	Enqueue(ctx context.Context, reqs []downloader.Request) (int, error)
	Pause(ctx context.Context, ids []chapter.ID) error
	Resume(ctx context.Context, ids []chapter.ID) error
	Cancel(ctx context.Context, ids []chapter.ID) error
	List(ctx context.Context, status storage.Status) ([]storage.DownloadRecord, error)
}

type ChapterRequest struct {
	SourceID      string     `json:"source_id"`
	ContentID     string     `json:"content_id"`
	ChapterID     string     `json:"chapter_id"`
	ContentTitle  string     `json:"content_title"`
	ChapterTitle  string     `json:"chapter_title"`
	ChapterNumber *float64   `json:"chapter_number"`
	VolumeNumber  *float64   `json:"volume_number"`
	Creator       string     `json:"creator"`
	Summary       string     `json:"summary"`
	ExternalURL   string     `json:"external_url"`
	Language      string     `json:"language"`
	ContentKind   string     `json:"content_kind"`
	PublishedAt   *time.Time `json:"published_at"`
}

func (c ChapterRequest) toRequest() downloader.Request {
	return downloader.Request{
		ID:            chapter.NewID(c.SourceID, c.ContentID, c.ChapterID),
		ContentTitle:  c.ContentTitle,
		ChapterTitle:  c.ChapterTitle,
		ChapterNumber: c.ChapterNumber,
		VolumeNumber:  c.VolumeNumber,
		Creator:       c.Creator,
		Summary:       c.Summary,
		ExternalURL:   c.ExternalURL,
		Language:      c.Language,
		ContentKind:   c.ContentKind,
		PublishedAt:   c.PublishedAt,
	}
}

type IDsRequest struct {
	IDs []string `json:"ids"`
}

type ChapterRecord struct {
	ID             string     `json:"id"`
	SourceID       string     `json:"source_id"`
	ContentID      string     `json:"content_id"`
	ChapterID      string     `json:"chapter_id"`
	Status         string     `json:"status"`
	DateAdded      time.Time  `json:"date_added"`
	HasText        bool       `json:"has_text"`
	StorageLocator string     `json:"storage_locator,omitempty"`
	ContentTitle   string     `json:"content_title,omitempty"`
	ChapterTitle   string     `json:"chapter_title,omitempty"`
	ChapterNumber  *float64   `json:"chapter_number,omitempty"`
	VolumeNumber   *float64   `json:"volume_number,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
}

func newChapterRecord(rec storage.DownloadRecord) ChapterRecord {
	return ChapterRecord{
		ID:             rec.ID.String(),
		SourceID:       rec.ID.SourceID,
		ContentID:      rec.ID.ContentID,
		ChapterID:      rec.ID.ChapterID,
		Status:         string(rec.Status),
		DateAdded:      rec.DateAdded,
		HasText:        rec.HasText(),
		StorageLocator: rec.StorageLocator,
		ContentTitle:   rec.ContentTitle,
		ChapterTitle:   rec.ChapterTitle,
		ChapterNumber:  rec.ChapterNumber,
		VolumeNumber:   rec.VolumeNumber,
		PublishedAt:    rec.PublishedAt,
	}
}

type ChapterHandler struct {
	queue Queue
}

func NewChapterHandler(queue Queue) *ChapterHandler {
	return &ChapterHandler{queue: queue}
}

func (h *ChapterHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/", h.HandleEnqueue)
	r.Get("/", h.HandleList)
	r.Post("/pause", h.command("pause", h.queue.Pause))
	r.Post("/resume", h.command("resume", h.queue.Resume))
	r.Post("/cancel", h.command("cancel", h.queue.Cancel))

	return r
}

// HandleEnqueue queues every chapter in the request body.
func (h *ChapterHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var body []ChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	reqs := make([]downloader.Request, 0, len(body))
	for _, c := range body {
		reqs = append(reqs, c.toRequest())
	}

	queued, err := h.queue.Enqueue(r.Context(), reqs)
	if err != nil {
		writeError(w, r, "enqueue", err)

		return
	}

	logger.Info("chapters enqueued", "requested", len(reqs), "queued", queued)

	writeJSON(w, r, http.StatusAccepted, map[string]int{"queued": queued})
}

func (h *ChapterHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var status storage.Status

	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := storage.ParseStatus(raw)
		if !ok {
			http.Error(w, "unknown status "+raw, http.StatusBadRequest)

			return
		}

		status = st
	}

	records, err := h.queue.List(r.Context(), status)
	if err != nil {
		writeError(w, r, "list", err)

		return
	}

	out := make([]ChapterRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, newChapterRecord(rec))
	}

	writeJSON(w, r, http.StatusOK, out)
}

func (h *ChapterHandler) command(name string, fn func(context.Context, []chapter.ID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logctx.LoggerFromContext(r.Context()).With("command", name)

		var body IDsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			logger.Error("failed to decode request", "err", err)
			http.Error(w, "invalid request body", http.StatusBadRequest)

			return
		}

		ids, err := chapter.ParseIDs(body.IDs)
		if err != nil {
			writeError(w, r, name, err)

			return
		}

		if err := fn(r.Context(), ids); err != nil {
			writeError(w, r, name, err)

			return
		}

		logger.Info("command applied", "count", len(ids))

		w.WriteHeader(http.StatusAccepted)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var invalid *chapter.InvalidIDError
	if errors.As(err, &invalid) {
		http.Error(w, invalid.Error(), http.StatusBadRequest)

		return
	}

	logctx.LoggerFromContext(r.Context()).Error("failed to handle request", "op", op, "err", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}
