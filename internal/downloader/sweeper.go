package downloader

import (
	"context"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/fsutil"
	"github.com/italolelis/chapter_downloader/internal/logctx"
)

// Sweep deletes the records of cancelled chapters together with their pending archives
// and folders. It is idempotent and a no-op when nothing is pending. Entries owned by
// the chapter currently being processed are kept for a later sweep. A failure on one
// artifact does not stop the others; it stays pending for the next sweep.
func (d *Downloader) Sweep(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx).With("component", "sweeper")

	d.txMu.Lock()

	ids, archives, folders := d.takePending()
	if len(ids) == 0 && len(archives) == 0 && len(folders) == 0 {
		d.txMu.Unlock()

		return
	}

	deletedRecords := 0

	if len(ids) > 0 {
		if err := d.repo.DeleteDownloads(ctx, ids); err != nil {
			logger.ErrorContext(ctx, "failed to delete cancelled records", "count", len(ids), "err", err)

			d.mu.Lock()
			for _, id := range ids {
				d.cancelled[id] = struct{}{}
			}
			d.mu.Unlock()
		} else {
			deletedRecords = len(ids)
		}
	}

	deletedArchives := d.removeAll(ctx, archives, d.pendingArchives, true)
	deletedFolders := d.removeAll(ctx, folders, d.pendingFolders, false)

	d.txMu.Unlock()

	d.telemetry.RecordCleanup(ctx, "record", deletedRecords)
	d.telemetry.RecordCleanup(ctx, "archive", deletedArchives)
	d.telemetry.RecordCleanup(ctx, "folder", deletedFolders)

	if deletedRecords > 0 {
		for _, id := range uniqueContents(ids) {
			d.refreshContentIndex(ctx, id)
		}
	}

	logger.InfoContext(ctx, "sweep finished",
		"records", deletedRecords,
		"archives", deletedArchives,
		"folders", deletedFolders)
}

// takePending snapshots and clears the cancelled set and the pending deletions, leaving
// entries that belong to the active chapter in place.
func (d *Downloader) takePending() ([]chapter.ID, map[string]chapter.ID, map[string]chapter.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	owned := func(id chapter.ID) bool {
		return d.active != nil && *d.active == id
	}

	var ids []chapter.ID

	for id := range d.cancelled {
		if owned(id) {
			continue
		}

		ids = append(ids, id)
		delete(d.cancelled, id)
	}

	take := func(pending map[string]chapter.ID) map[string]chapter.ID {
		out := make(map[string]chapter.ID)

		for path, id := range pending {
			if owned(id) {
				continue
			}

			out[path] = id
			delete(pending, path)
		}

		return out
	}

	return ids, take(d.pendingArchives), take(d.pendingFolders)
}

// removeAll deletes every path in items and returns how many existed and were removed.
// Paths that fail to delete are put back into pending.
func (d *Downloader) removeAll(ctx context.Context, items, pending map[string]chapter.ID, warnMissing bool) int {
	logger := logctx.LoggerFromContext(ctx).With("component", "sweeper")

	removed := 0

	for path, id := range items {
		if !fsutil.Exists(path) {
			if warnMissing {
				logger.WarnContext(ctx, "pending artifact already gone", "path", path, "chapter_id", id.String())
			}

			continue
		}

		if err := fsutil.Remove(path); err != nil {
			logger.ErrorContext(ctx, "failed to delete artifact", "path", path, "chapter_id", id.String(), "err", err)

			d.mu.Lock()
			pending[path] = id
			d.mu.Unlock()

			continue
		}

		removed++
	}

	return removed
}

func uniqueContents(ids []chapter.ID) []chapter.ID {
	var out []chapter.ID

	for _, id := range ids {
		seen := false

		for _, o := range out {
			if o.SameContent(id) {
				seen = true

				break
			}
		}

		if !seen {
			out = append(out, id)
		}
	}

	return out
}
