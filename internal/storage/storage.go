package storage

import (
	"context"
	"errors"
	"time"

	"github.com/italolelis/chapter_downloader/internal/chapter"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("download record not found")

// Status is the lifecycle state of a chapter download.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusFailing   Status = "failing"
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusIdle, StatusQueued, StatusActive, StatusFailing, StatusCompleted, StatusPaused, StatusCancelled,
}

// ParseStatus returns the status named by s, or false when unknown.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusIdle, StatusQueued, StatusActive, StatusFailing, StatusCompleted, StatusPaused, StatusCancelled:
		return st, true
	}

	return "", false
}

// DownloadRecord is the persisted state of one chapter queued for download.
// The display fields are copied at enqueue time and only feed metadata generation.
type DownloadRecord struct {
	ID             chapter.ID
	Status         Status
	DateAdded      time.Time
	TextPayload    string
	StorageLocator string

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

// HasText reports whether the chapter content was stored as text.
func (r *DownloadRecord) HasText() bool {
	return r.TextPayload != ""
}

// ContentIndex is the denormalized count of completed downloads for one content item.
type ContentIndex struct {
	SourceID       string
	ContentID      string
	CompletedCount int
	FirstAdded     time.Time
	LastAdded      time.Time
}

type DownloadReadRepository interface {
	GetDownload(ctx context.Context, id chapter.ID) (*DownloadRecord, error)
	GetDownloadsByIDs(ctx context.Context, ids []chapter.ID) ([]DownloadRecord, error)
	// GetDownloadsByStatus returns records ordered by DateAdded ascending.
	GetDownloadsByStatus(ctx context.Context, status Status) ([]DownloadRecord, error)
	GetCompletedForContent(ctx context.Context, sourceID, contentID string) ([]DownloadRecord, error)
	GetContentIndex(ctx context.Context, sourceID, contentID string) (*ContentIndex, error)
}

type DownloadWriteRepository interface {
	// SaveDownload inserts the record or replaces the existing one with the same id.
	SaveDownload(ctx context.Context, record *DownloadRecord) error
	DeleteDownloads(ctx context.Context, ids []chapter.ID) error
	SaveContentIndex(ctx context.Context, index ContentIndex) error
	DeleteContentIndex(ctx context.Context, sourceID, contentID string) error
}

type DownloadRepository interface {
	DownloadReadRepository
	DownloadWriteRepository
}
