package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/storage"
	"github.com/jmoiron/sqlx"
)

const downloadColumns = `id, source_id, content_id, chapter_id, status, date_added, text_payload,
	storage_locator, content_title, chapter_title, chapter_number, volume_number, creator,
	summary, external_url, language, content_kind, published_at`

const upsertDownload = `
INSERT INTO chapter_downloads (` + downloadColumns + `)
VALUES (:id, :source_id, :content_id, :chapter_id, :status, :date_added, :text_payload,
	:storage_locator, :content_title, :chapter_title, :chapter_number, :volume_number, :creator,
	:summary, :external_url, :language, :content_kind, :published_at)
ON CONFLICT (id) DO UPDATE SET
	status = excluded.status,
	date_added = excluded.date_added,
	text_payload = excluded.text_payload,
	storage_locator = excluded.storage_locator,
	content_title = excluded.content_title,
	chapter_title = excluded.chapter_title,
	chapter_number = excluded.chapter_number,
	volume_number = excluded.volume_number,
	creator = excluded.creator,
	summary = excluded.summary,
	external_url = excluded.external_url,
	language = excluded.language,
	content_kind = excluded.content_kind,
	published_at = excluded.published_at`

const upsertContentIndex = `
INSERT INTO content_index (source_id, content_id, completed_count, first_added, last_added)
VALUES (:source_id, :content_id, :completed_count, :first_added, :last_added)
ON CONFLICT (source_id, content_id) DO UPDATE SET
	completed_count = excluded.completed_count,
	first_added = excluded.first_added,
	last_added = excluded.last_added`

type downloadRow struct {
	ID             string          `db:"id"`
	SourceID       string          `db:"source_id"`
	ContentID      string          `db:"content_id"`
	ChapterID      string          `db:"chapter_id"`
	Status         string          `db:"status"`
	DateAdded      time.Time       `db:"date_added"`
	TextPayload    sql.NullString  `db:"text_payload"`
	StorageLocator sql.NullString  `db:"storage_locator"`
	ContentTitle   string          `db:"content_title"`
	ChapterTitle   string          `db:"chapter_title"`
	ChapterNumber  sql.NullFloat64 `db:"chapter_number"`
	VolumeNumber   sql.NullFloat64 `db:"volume_number"`
	Creator        string          `db:"creator"`
	Summary        string          `db:"summary"`
	ExternalURL    string          `db:"external_url"`
	Language       string          `db:"language"`
	ContentKind    string          `db:"content_kind"`
	PublishedAt    sql.NullTime    `db:"published_at"`
}

type contentIndexRow struct {
	SourceID       string    `db:"source_id"`
	ContentID      string    `db:"content_id"`
	CompletedCount int       `db:"completed_count"`
	FirstAdded     time.Time `db:"first_added"`
	LastAdded      time.Time `db:"last_added"`
}

// DownloadRepository implements storage.DownloadRepository on top of sqlx.
type DownloadRepository struct {
	db *sqlx.DB
}

func NewDownloadRepository(db *sqlx.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

func (r *DownloadRepository) GetDownload(ctx context.Context, id chapter.ID) (*storage.DownloadRecord, error) {
	var row downloadRow

	query := r.db.Rebind(`SELECT ` + downloadColumns + ` FROM chapter_downloads WHERE id = ?`)
	if err := r.db.GetContext(ctx, &row, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to get download: %w", err)
	}

	rec := row.toRecord()

	return &rec, nil
}

func (r *DownloadRepository) GetDownloadsByIDs(ctx context.Context, ids []chapter.ID) ([]storage.DownloadRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+downloadColumns+` FROM chapter_downloads WHERE id IN (?) ORDER BY date_added ASC, id ASC`, keys(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	return r.selectRecords(ctx, r.db.Rebind(query), args...)
}

func (r *DownloadRepository) GetDownloadsByStatus(ctx context.Context, status storage.Status) ([]storage.DownloadRecord, error) {
	query := r.db.Rebind(`SELECT ` + downloadColumns + ` FROM chapter_downloads WHERE status = ? ORDER BY date_added ASC, id ASC`)

	return r.selectRecords(ctx, query, string(status))
}

func (r *DownloadRepository) GetCompletedForContent(ctx context.Context, sourceID, contentID string) ([]storage.DownloadRecord, error) {
	query := r.db.Rebind(`SELECT ` + downloadColumns + ` FROM chapter_downloads
		WHERE source_id = ? AND content_id = ? AND status = ?
		ORDER BY date_added ASC, id ASC`)

	return r.selectRecords(ctx, query, sourceID, contentID, string(storage.StatusCompleted))
}

func (r *DownloadRepository) GetContentIndex(ctx context.Context, sourceID, contentID string) (*storage.ContentIndex, error) {
	var row contentIndexRow

	query := r.db.Rebind(`SELECT source_id, content_id, completed_count, first_added, last_added
		FROM content_index WHERE source_id = ? AND content_id = ?`)
	if err := r.db.GetContext(ctx, &row, query, sourceID, contentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to get content index: %w", err)
	}

	return &storage.ContentIndex{
		SourceID:       row.SourceID,
		ContentID:      row.ContentID,
		CompletedCount: row.CompletedCount,
		FirstAdded:     row.FirstAdded.UTC(),
		LastAdded:      row.LastAdded.UTC(),
	}, nil
}

// SaveDownload upserts the record keyed by its composite id.
func (r *DownloadRepository) SaveDownload(ctx context.Context, record *storage.DownloadRecord) error {
	if _, err := r.db.NamedExecContext(ctx, upsertDownload, fromRecord(record)); err != nil {
		return fmt.Errorf("failed to save download: %w", err)
	}

	return nil
}

func (r *DownloadRepository) DeleteDownloads(ctx context.Context, ids []chapter.ID) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`DELETE FROM chapter_downloads WHERE id IN (?)`, keys(ids))
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to delete downloads: %w", err)
	}

	return nil
}

func (r *DownloadRepository) SaveContentIndex(ctx context.Context, index storage.ContentIndex) error {
	row := contentIndexRow{
		SourceID:       index.SourceID,
		ContentID:      index.ContentID,
		CompletedCount: index.CompletedCount,
		FirstAdded:     index.FirstAdded.UTC(),
		LastAdded:      index.LastAdded.UTC(),
	}

	if _, err := r.db.NamedExecContext(ctx, upsertContentIndex, row); err != nil {
		return fmt.Errorf("failed to save content index: %w", err)
	}

	return nil
}

func (r *DownloadRepository) DeleteContentIndex(ctx context.Context, sourceID, contentID string) error {
	query := r.db.Rebind(`DELETE FROM content_index WHERE source_id = ? AND content_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, sourceID, contentID); err != nil {
		return fmt.Errorf("failed to delete content index: %w", err)
	}

	return nil
}

func (r *DownloadRepository) selectRecords(ctx context.Context, query string, args ...any) ([]storage.DownloadRecord, error) {
	var rows []downloadRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}

	records := make([]storage.DownloadRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}

	return records, nil
}

func keys(ids []chapter.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}

	return out
}

func fromRecord(rec *storage.DownloadRecord) downloadRow {
	row := downloadRow{
		ID:             rec.ID.String(),
		SourceID:       rec.ID.SourceID,
		ContentID:      rec.ID.ContentID,
		ChapterID:      rec.ID.ChapterID,
		Status:         string(rec.Status),
		DateAdded:      rec.DateAdded.UTC(),
		TextPayload:    sql.NullString{String: rec.TextPayload, Valid: rec.TextPayload != ""},
		StorageLocator: sql.NullString{String: rec.StorageLocator, Valid: rec.StorageLocator != ""},
		ContentTitle:   rec.ContentTitle,
		ChapterTitle:   rec.ChapterTitle,
		Creator:        rec.Creator,
		Summary:        rec.Summary,
		ExternalURL:    rec.ExternalURL,
		Language:       rec.Language,
		ContentKind:    rec.ContentKind,
	}

	if rec.ChapterNumber != nil {
		row.ChapterNumber = sql.NullFloat64{Float64: *rec.ChapterNumber, Valid: true}
	}

	if rec.VolumeNumber != nil {
		row.VolumeNumber = sql.NullFloat64{Float64: *rec.VolumeNumber, Valid: true}
	}

	if rec.PublishedAt != nil {
		row.PublishedAt = sql.NullTime{Time: rec.PublishedAt.UTC(), Valid: true}
	}

	return row
}

func (row downloadRow) toRecord() storage.DownloadRecord {
	rec := storage.DownloadRecord{
		ID:             chapter.NewID(row.SourceID, row.ContentID, row.ChapterID),
		Status:         storage.Status(row.Status),
		DateAdded:      row.DateAdded.UTC(),
		TextPayload:    row.TextPayload.String,
		StorageLocator: row.StorageLocator.String,
		ContentTitle:   row.ContentTitle,
		ChapterTitle:   row.ChapterTitle,
		Creator:        row.Creator,
		Summary:        row.Summary,
		ExternalURL:    row.ExternalURL,
		Language:       row.Language,
		ContentKind:    row.ContentKind,
	}

	if row.ChapterNumber.Valid {
		n := row.ChapterNumber.Float64
		rec.ChapterNumber = &n
	}

	if row.VolumeNumber.Valid {
		v := row.VolumeNumber.Float64
		rec.VolumeNumber = &v
	}

	if row.PublishedAt.Valid {
		p := row.PublishedAt.Time.UTC()
		rec.PublishedAt = &p
	}

	return rec
}
