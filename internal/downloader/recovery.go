package downloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/italolelis/chapter_downloader/internal/fsutil"
	"github.com/italolelis/chapter_downloader/internal/logctx"
	"github.com/italolelis/chapter_downloader/internal/storage"
)

// Recover reconciles persisted state with a process that has just started: active and
// failing chapters are requeued, cancelled chapters are scheduled for deletion and the
// legacy scratch directory is removed. It then sweeps, refreshes the queue and lets
// the worker start. Running it again without worker activity yields the same queue.
func (d *Downloader) Recover(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx).With("component", "recovery")

	if !d.Idle() {
		return errors.New("recover: worker is busy")
	}

	requeued := 0

	for _, status := range []storage.Status{storage.StatusActive, storage.StatusFailing} {
		n, err := d.requeueStatus(ctx, status)
		if err != nil {
			return err
		}

		requeued += n
	}

	cancelled, err := d.repo.GetDownloadsByStatus(ctx, storage.StatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to load cancelled downloads: %w", err)
	}

	d.mu.Lock()
	for _, rec := range cancelled {
		d.cancelled[rec.ID] = struct{}{}
		d.scheduleArtifacts(rec.ID, rec.StorageLocator)
	}
	d.mu.Unlock()

	if legacy := d.paths.LegacyScratchRoot(); fsutil.Exists(legacy) {
		if err := fsutil.Remove(legacy); err != nil {
			logger.WarnContext(ctx, "failed to remove legacy scratch directory", "dir", legacy, "err", err)
		} else {
			logger.InfoContext(ctx, "removed legacy scratch directory", "dir", legacy)
		}
	}

	logger.InfoContext(ctx, "recovery finished", "requeued", requeued, "cancelled", len(cancelled))

	d.mu.Lock()
	d.ready = true
	d.mu.Unlock()

	d.Sweep(ctx)
	d.Refresh(ctx)

	return nil
}

func (d *Downloader) requeueStatus(ctx context.Context, status storage.Status) (int, error) {
	d.txMu.Lock()
	defer d.txMu.Unlock()

	recs, err := d.repo.GetDownloadsByStatus(ctx, status)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s downloads: %w", status, err)
	}

	for i := range recs {
		recs[i].Status = storage.StatusQueued
		if err := d.repo.SaveDownload(ctx, &recs[i]); err != nil {
			return 0, fmt.Errorf("failed to requeue download: %w", err)
		}
	}

	return len(recs), nil
}
