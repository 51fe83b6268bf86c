package downloader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/logctx"
	"github.com/italolelis/chapter_downloader/internal/storage"
)

// Request asks for one chapter to be downloaded. The display fields are copied onto
// the record and only feed metadata generation and archive naming.
type Request struct {
	ID            chapter.ID
	ContentTitle  string
	ChapterTitle  string
	ChapterNumber *float64
	VolumeNumber  *float64
	Creator       string
	Summary       string
	ExternalURL   string
	Language      string
	ContentKind   string
	PublishedAt   *time.Time
}

func (r Request) record() *storage.DownloadRecord {
	return &storage.DownloadRecord{
		ID:            r.ID,
		ContentTitle:  r.ContentTitle,
		ChapterTitle:  r.ChapterTitle,
		ChapterNumber: r.ChapterNumber,
		VolumeNumber:  r.VolumeNumber,
		Creator:       r.Creator,
		Summary:       r.Summary,
		ExternalURL:   r.ExternalURL,
		Language:      r.Language,
		ContentKind:   r.ContentKind,
		PublishedAt:   r.PublishedAt,
	}
}

// Enqueue marks each requested chapter as queued with a fresh enqueue time and wakes the
// worker. Chapters that are already completed or currently active are left untouched.
// It returns the number of chapters queued.
func (d *Downloader) Enqueue(ctx context.Context, reqs []Request) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	for _, req := range reqs {
		if err := req.ID.Validate(); err != nil {
			return 0, err
		}
	}

	queued := 0

	for _, req := range reqs {
		ok, err := d.enqueueOne(ctx, req)
		if err != nil {
			return queued, err
		}

		if ok {
			queued++
		}
	}

	logger.DebugContext(ctx, "chapters enqueued", "requested", len(reqs), "queued", queued)

	d.Refresh(ctx)

	return queued, nil
}

func (d *Downloader) enqueueOne(ctx context.Context, req Request) (bool, error) {
	logger := logctx.LoggerFromContext(ctx).With("chapter_id", req.ID.String())

	d.txMu.Lock()
	defer d.txMu.Unlock()

	existing, err := d.repo.GetDownload(ctx, req.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("failed to load download: %w", err)
	}

	if existing != nil && (existing.Status == storage.StatusCompleted || existing.Status == storage.StatusActive) {
		logger.DebugContext(ctx, "skipping enqueue", "status", existing.Status)

		return false, nil
	}

	rec := req.record()
	rec.Status = storage.StatusQueued
	rec.DateAdded = d.stamp()

	if existing != nil {
		// A previously finalized archive keeps its name so a re-download replaces it.
		rec.StorageLocator = existing.StorageLocator
	}

	if err := d.repo.SaveDownload(ctx, rec); err != nil {
		return false, fmt.Errorf("failed to save download: %w", err)
	}

	d.mu.Lock()
	d.forget(req.ID)
	d.mu.Unlock()

	return true, nil
}

// Pause moves chapters to paused. An active chapter stops at the next page boundary.
func (d *Downloader) Pause(ctx context.Context, ids []chapter.ID) error {
	logger := logctx.LoggerFromContext(ctx)

	for _, id := range ids {
		err := d.transition(ctx, id, func(rec *storage.DownloadRecord) bool {
			return rec.Status != storage.StatusCompleted && rec.Status != storage.StatusCancelled
		}, storage.StatusPaused, func() {
			d.paused[id] = struct{}{}
			d.dequeue(id)
		})
		if err != nil {
			return err
		}
	}

	logger.DebugContext(ctx, "chapters paused", "count", len(ids))

	return nil
}

// Resume requeues paused, failed or halted chapters without changing their enqueue time.
func (d *Downloader) Resume(ctx context.Context, ids []chapter.ID) error {
	logger := logctx.LoggerFromContext(ctx)

	for _, id := range ids {
		err := d.transition(ctx, id, func(rec *storage.DownloadRecord) bool {
			switch rec.Status {
			case storage.StatusPaused, storage.StatusFailing, storage.StatusIdle:
				return true
			default:
				return false
			}
		}, storage.StatusQueued, func() {
			d.forget(id)
		})
		if err != nil {
			return err
		}
	}

	logger.DebugContext(ctx, "chapters resumed", "count", len(ids))

	d.Refresh(ctx)

	return nil
}

// Cancel marks chapters as cancelled and schedules their records and artifacts for
// deletion by the next sweep. Cancelling a completed chapter deletes its download.
// When the worker is idle the sweep runs immediately.
func (d *Downloader) Cancel(ctx context.Context, ids []chapter.ID) error {
	logger := logctx.LoggerFromContext(ctx)

	for _, id := range ids {
		var locator string

		err := d.transition(ctx, id, func(rec *storage.DownloadRecord) bool {
			locator = rec.StorageLocator

			return true
		}, storage.StatusCancelled, func() {
			d.cancelled[id] = struct{}{}
			d.dequeue(id)
			d.scheduleArtifacts(id, locator)
		})
		if err != nil {
			return err
		}
	}

	logger.DebugContext(ctx, "chapters cancelled", "count", len(ids))

	if d.Idle() {
		d.Sweep(ctx)
	}

	return nil
}

// List returns records with the given status, or every record when status is empty.
func (d *Downloader) List(ctx context.Context, status storage.Status) ([]storage.DownloadRecord, error) {
	statuses := []storage.Status{status}
	if status == "" {
		statuses = storage.Statuses
	}

	var out []storage.DownloadRecord

	for _, st := range statuses {
		recs, err := d.repo.GetDownloadsByStatus(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s downloads: %w", st, err)
		}

		out = append(out, recs...)
	}

	return out, nil
}

// Refresh reloads the in-memory queue from the store and wakes the worker.
func (d *Downloader) Refresh(ctx context.Context) {
	d.refresh(ctx)
	d.signal()
}

// refresh replaces the in-memory queue with all queued records, oldest first.
// On a store error the current queue is kept.
func (d *Downloader) refresh(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	recs, err := d.repo.GetDownloadsByStatus(ctx, storage.StatusQueued)
	if err != nil {
		logger.ErrorContext(ctx, "failed to refresh queue", "err", err)

		return
	}

	d.mu.Lock()

	queue := make([]chapter.ID, 0, len(recs))

	for _, rec := range recs {
		if d.active != nil && *d.active == rec.ID {
			continue
		}

		if _, ok := d.paused[rec.ID]; ok {
			continue
		}

		if _, ok := d.cancelled[rec.ID]; ok {
			continue
		}

		queue = append(queue, rec.ID)
	}

	d.queue = queue
	d.mu.Unlock()

	d.telemetry.RecordQueueDepth(ctx, len(queue))
}

// transition applies a status change to one record under txMu. allow decides, given
// the stored record, whether the change applies; apply runs under mu after the write.
// Unknown ids are ignored.
func (d *Downloader) transition(
	ctx context.Context,
	id chapter.ID,
	allow func(*storage.DownloadRecord) bool,
	to storage.Status,
	apply func(),
) error {
	logger := logctx.LoggerFromContext(ctx).With("chapter_id", id.String())

	d.txMu.Lock()
	defer d.txMu.Unlock()

	rec, err := d.repo.GetDownload(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		logger.DebugContext(ctx, "ignoring unknown chapter", "to", to)

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to load download: %w", err)
	}

	if !allow(rec) {
		logger.DebugContext(ctx, "ignoring status change", "from", rec.Status, "to", to)

		return nil
	}

	rec.Status = to
	if err := d.repo.SaveDownload(ctx, rec); err != nil {
		return fmt.Errorf("failed to save download: %w", err)
	}

	d.mu.Lock()
	apply()
	d.mu.Unlock()

	return nil
}

// stamp returns a strictly increasing enqueue time so that chapters enqueued in the
// same call keep their order.
func (d *Downloader) stamp() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.now().UTC().Truncate(time.Microsecond)
	if !t.After(d.lastStamp) {
		t = d.lastStamp.Add(time.Microsecond)
	}

	d.lastStamp = t

	return t
}

// The helpers below require mu.

func (d *Downloader) dequeue(id chapter.ID) {
	d.queue = slices.DeleteFunc(d.queue, func(q chapter.ID) bool { return q == id })
}

// forget drops every halt signal and pending deletion registered for id.
func (d *Downloader) forget(id chapter.ID) {
	delete(d.paused, id)
	delete(d.cancelled, id)

	for path, owner := range d.pendingArchives {
		if owner == id {
			delete(d.pendingArchives, path)
		}
	}

	for path, owner := range d.pendingFolders {
		if owner == id {
			delete(d.pendingFolders, path)
		}
	}
}

// scheduleArtifacts registers every on-disk location id may occupy for deletion.
func (d *Downloader) scheduleArtifacts(id chapter.ID, locator string) {
	if locator != "" {
		d.pendingArchives[d.paths.ArchivePath(locator)] = id
	} else {
		d.pendingFolders[d.paths.PathFor(id, false)] = id
	}

	d.pendingFolders[d.paths.PathFor(id, true)] = id
}
