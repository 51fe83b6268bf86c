package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/fsutil"
	"github.com/italolelis/chapter_downloader/internal/logctx"
	"github.com/italolelis/chapter_downloader/internal/storage"
)

// process runs fetch, write, finalize and report for one chapter and returns the
// outcome label. Every failure ends in a status transition; nothing is returned.
func (d *Downloader) process(ctx context.Context, id chapter.ID) string {
	ctx = logctx.WithChapterID(ctx, id.String())
	logger := logctx.LoggerFromContext(ctx)

	rec, ok := d.activate(ctx, id)
	if !ok {
		return outcomeSkipped
	}

	title := displayName(rec)
	started := time.Now()

	logger.InfoContext(ctx, "processing chapter", "title", title)
	d.report(ctx, Event{Type: EventProgress, ChapterID: id.String(), Title: title, Phase: PhaseFetchingImages})

	pages, err := d.provider.FetchPages(ctx, id)
	if err != nil {
		return d.fail(ctx, rec, &chapter.FetchError{ID: id, Err: err})
	}

	var text, locator string

	switch {
	case pages.Empty():
		logger.InfoContext(ctx, "provider returned no content, nothing to write")
	case pages.Text != "":
		text = pages.Text
	default:
		scratch := d.paths.PathFor(id, true)

		// A previous failed attempt may have left pages behind.
		if err := fsutil.Remove(scratch); err != nil {
			return d.fail(ctx, rec, fmt.Errorf("failed to clear scratch directory: %w", err))
		}

		if err := fsutil.EnsureDir(scratch); err != nil {
			return d.fail(ctx, rec, fmt.Errorf("failed to create scratch directory: %w", err))
		}

		err := d.writePages(ctx, rec, pages, scratch)
		if errors.Is(err, chapter.ErrHalted) {
			d.halt(ctx, rec, scratch)

			return outcomeHalted
		}

		if err != nil {
			return d.fail(ctx, rec, err)
		}

		d.report(ctx, Event{Type: EventProgress, ChapterID: id.String(), Title: title, Phase: PhaseFinalizing})

		locator, err = d.finalizer.Finalize(ctx, rec, scratch)
		if err != nil {
			return d.fail(ctx, rec, err)
		}
	}

	completed, err := d.complete(ctx, id, text, locator)
	if err != nil {
		return d.fail(ctx, rec, err)
	}

	if !completed {
		logger.InfoContext(ctx, "chapter cancelled during finalize, download scheduled for deletion")
		d.report(ctx, Event{Type: EventHalted, ChapterID: id.String(), Title: title})

		return outcomeHalted
	}

	d.refreshContentIndex(ctx, id)

	logger.InfoContext(ctx, "chapter completed", "title", title, "locator", locator, "elapsed", time.Since(started).Round(time.Millisecond))
	d.report(ctx, Event{Type: EventCompleted, ChapterID: id.String(), Title: title})

	return outcomeCompleted
}

// activate re-validates the dequeued id against the store and marks it active.
func (d *Downloader) activate(ctx context.Context, id chapter.ID) (*storage.DownloadRecord, bool) {
	logger := logctx.LoggerFromContext(ctx)

	d.txMu.Lock()
	defer d.txMu.Unlock()

	rec, err := d.repo.GetDownload(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.DebugContext(ctx, "dequeued chapter no longer exists")
		} else {
			logger.ErrorContext(ctx, "failed to load dequeued chapter", "err", err)
		}

		return nil, false
	}

	if rec.Status != storage.StatusQueued || d.halted(id) {
		logger.DebugContext(ctx, "dequeued chapter is no longer queued", "status", rec.Status)

		return nil, false
	}

	rec.Status = storage.StatusActive
	if err := d.repo.SaveDownload(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "failed to mark chapter active", "err", err)

		return nil, false
	}

	return rec, true
}

// fail marks the chapter failing unless a caller paused or cancelled it meanwhile.
// The scratch directory is kept for inspection; the next attempt clears it.
// Errors caused by shutdown leave the record active for Recover to requeue.
func (d *Downloader) fail(ctx context.Context, rec *storage.DownloadRecord, cause error) string {
	logger := logctx.LoggerFromContext(ctx)

	if ctx.Err() != nil {
		logger.WarnContext(ctx, "chapter interrupted by shutdown", "err", cause)

		return outcomeInterrupted
	}

	logger.ErrorContext(ctx, "chapter download failed", "err", cause)

	if err := d.setStatusIfActive(ctx, rec.ID, storage.StatusFailing); err != nil {
		logger.ErrorContext(ctx, "failed to mark chapter failing", "err", err)
	}

	d.report(ctx, Event{Type: EventFailed, ChapterID: rec.ID.String(), Title: displayName(rec), Error: cause.Error()})

	return outcomeFailed
}

// halt abandons a chapter after a pause or cancel was observed between pages.
// No partial artifact survives a halt. The status is left as the command wrote it:
// Pause and Cancel persist paused or cancelled before adding the id to the halt sets.
func (d *Downloader) halt(ctx context.Context, rec *storage.DownloadRecord, scratch string) {
	logger := logctx.LoggerFromContext(ctx)

	if err := fsutil.Remove(scratch); err != nil {
		logger.WarnContext(ctx, "failed to remove scratch directory after halt", "dir", scratch, "err", err)
	}

	logger.InfoContext(ctx, "chapter halted")
	d.report(ctx, Event{Type: EventHalted, ChapterID: rec.ID.String(), Title: displayName(rec)})
}

// setStatusIfActive writes status only while the record is still active, so a pause
// or cancel issued mid-download is never overwritten.
func (d *Downloader) setStatusIfActive(ctx context.Context, id chapter.ID, status storage.Status) error {
	d.txMu.Lock()
	defer d.txMu.Unlock()

	rec, err := d.repo.GetDownload(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to load download: %w", err)
	}

	if rec.Status != storage.StatusActive {
		return nil
	}

	rec.Status = status

	if err := d.repo.SaveDownload(ctx, rec); err != nil {
		return fmt.Errorf("failed to save download: %w", err)
	}

	return nil
}

// complete persists the final locator and the completed status. It reports false when
// the chapter was cancelled or deleted while finalizing; the fresh artifact is then
// scheduled for deletion instead.
func (d *Downloader) complete(ctx context.Context, id chapter.ID, text, locator string) (bool, error) {
	d.txMu.Lock()
	defer d.txMu.Unlock()

	rec, err := d.repo.GetDownload(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("failed to load download: %w", err)
	}

	if rec == nil || rec.Status == storage.StatusCancelled || d.isCancelled(id) {
		d.mu.Lock()
		d.scheduleArtifacts(id, locator)
		d.mu.Unlock()

		return false, nil
	}

	rec.Status = storage.StatusCompleted
	rec.TextPayload = text
	rec.StorageLocator = locator

	if err := d.repo.SaveDownload(ctx, rec); err != nil {
		return false, fmt.Errorf("failed to save completed download: %w", err)
	}

	d.mu.Lock()
	delete(d.paused, id)
	d.mu.Unlock()

	return true, nil
}

// refreshContentIndex recomputes the completed-download summary for id's content.
func (d *Downloader) refreshContentIndex(ctx context.Context, id chapter.ID) {
	logger := logctx.LoggerFromContext(ctx)

	recs, err := d.repo.GetCompletedForContent(ctx, id.SourceID, id.ContentID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load completed chapters for content index", "err", err)

		return
	}

	if len(recs) == 0 {
		if err := d.repo.DeleteContentIndex(ctx, id.SourceID, id.ContentID); err != nil {
			logger.ErrorContext(ctx, "failed to delete content index", "err", err)
		}

		return
	}

	index := storage.ContentIndex{
		SourceID:       id.SourceID,
		ContentID:      id.ContentID,
		CompletedCount: len(recs),
		FirstAdded:     recs[0].DateAdded,
		LastAdded:      recs[0].DateAdded,
	}

	for _, rec := range recs[1:] {
		if rec.DateAdded.Before(index.FirstAdded) {
			index.FirstAdded = rec.DateAdded
		}

		if rec.DateAdded.After(index.LastAdded) {
			index.LastAdded = rec.DateAdded
		}
	}

	if err := d.repo.SaveContentIndex(ctx, index); err != nil {
		logger.ErrorContext(ctx, "failed to save content index", "err", err)
	}
}

// displayName is the human readable chapter name used in logs, events and notifications.
func displayName(rec *storage.DownloadRecord) string {
	name := archiveBaseName(rec)
	if name == "" {
		return rec.ID.ChapterID
	}

	return name
}
