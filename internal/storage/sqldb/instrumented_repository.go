package sqldb

import (
	"context"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/storage"
	"github.com/italolelis/chapter_downloader/internal/telemetry"
)

// InstrumentedDownloadRepository wraps a storage.DownloadRepository with telemetry.
type InstrumentedDownloadRepository struct {
	repo      storage.DownloadRepository
	telemetry *telemetry.Telemetry
}

var _ storage.DownloadRepository = (*InstrumentedDownloadRepository)(nil)

// NewInstrumentedDownloadRepository creates a new instrumented download repository.
func NewInstrumentedDownloadRepository(repo storage.DownloadRepository, tel *telemetry.Telemetry) *InstrumentedDownloadRepository {
	return &InstrumentedDownloadRepository{
		repo:      repo,
		telemetry: tel,
	}
}

func (r *InstrumentedDownloadRepository) GetDownload(ctx context.Context, id chapter.ID) (*storage.DownloadRecord, error) {
	var result *storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_download", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetDownload(ctx, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedDownloadRepository) GetDownloadsByIDs(ctx context.Context, ids []chapter.ID) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_downloads_by_ids", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetDownloadsByIDs(ctx, ids)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedDownloadRepository) GetDownloadsByStatus(ctx context.Context, status storage.Status) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_downloads_by_status", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetDownloadsByStatus(ctx, status)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedDownloadRepository) GetCompletedForContent(ctx context.Context, sourceID, contentID string) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_completed_for_content", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetCompletedForContent(ctx, sourceID, contentID)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedDownloadRepository) GetContentIndex(ctx context.Context, sourceID, contentID string) (*storage.ContentIndex, error) {
	var result *storage.ContentIndex

	err := r.telemetry.InstrumentDBOperation(ctx, "get_content_index", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetContentIndex(ctx, sourceID, contentID)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedDownloadRepository) SaveDownload(ctx context.Context, record *storage.DownloadRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "save_download", func(ctx context.Context) error {
		return r.repo.SaveDownload(ctx, record)
	})
}

func (r *InstrumentedDownloadRepository) DeleteDownloads(ctx context.Context, ids []chapter.ID) error {
	return r.telemetry.InstrumentDBOperation(ctx, "delete_downloads", func(ctx context.Context) error {
		return r.repo.DeleteDownloads(ctx, ids)
	})
}

func (r *InstrumentedDownloadRepository) SaveContentIndex(ctx context.Context, index storage.ContentIndex) error {
	return r.telemetry.InstrumentDBOperation(ctx, "save_content_index", func(ctx context.Context) error {
		return r.repo.SaveContentIndex(ctx, index)
	})
}

func (r *InstrumentedDownloadRepository) DeleteContentIndex(ctx context.Context, sourceID, contentID string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "delete_content_index", func(ctx context.Context) error {
		return r.repo.DeleteContentIndex(ctx, sourceID, contentID)
	})
}
