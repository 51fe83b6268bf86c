package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/storage"
)

type contentKey struct {
	sourceID  string
	contentID string
}

// DownloadRepository is a storage.DownloadRepository kept in process memory.
type DownloadRepository struct {
	mu      sync.RWMutex
	records map[chapter.ID]storage.DownloadRecord
	indexes map[contentKey]storage.ContentIndex
}

func NewDownloadRepository() *DownloadRepository {
	return &DownloadRepository{
		records: make(map[chapter.ID]storage.DownloadRecord),
		indexes: make(map[contentKey]storage.ContentIndex),
	}
}

func (r *DownloadRepository) GetDownload(_ context.Context, id chapter.ID) (*storage.DownloadRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return clone(rec), nil
}

func (r *DownloadRepository) GetDownloadsByIDs(_ context.Context, ids []chapter.ID) ([]storage.DownloadRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]storage.DownloadRecord, 0, len(ids))

	for _, id := range ids {
		if rec, ok := r.records[id]; ok {
			out = append(out, *clone(rec))
		}
	}

	return out, nil
}

func (r *DownloadRepository) GetDownloadsByStatus(_ context.Context, status storage.Status) ([]storage.DownloadRecord, error) {
	return r.filter(func(rec storage.DownloadRecord) bool { return rec.Status == status }), nil
}

func (r *DownloadRepository) GetCompletedForContent(_ context.Context, sourceID, contentID string) ([]storage.DownloadRecord, error) {
	return r.filter(func(rec storage.DownloadRecord) bool {
		return rec.Status == storage.StatusCompleted && rec.ID.SourceID == sourceID && rec.ID.ContentID == contentID
	}), nil
}

func (r *DownloadRepository) GetContentIndex(_ context.Context, sourceID, contentID string) (*storage.ContentIndex, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.indexes[contentKey{sourceID, contentID}]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return &idx, nil
}

func (r *DownloadRepository) SaveDownload(_ context.Context, record *storage.DownloadRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[record.ID] = *clone(*record)

	return nil
}

func (r *DownloadRepository) DeleteDownloads(_ context.Context, ids []chapter.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		delete(r.records, id)
	}

	return nil
}

func (r *DownloadRepository) SaveContentIndex(_ context.Context, index storage.ContentIndex) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.indexes[contentKey{index.SourceID, index.ContentID}] = index

	return nil
}

func (r *DownloadRepository) DeleteContentIndex(_ context.Context, sourceID, contentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.indexes, contentKey{sourceID, contentID})

	return nil
}

func (r *DownloadRepository) filter(keep func(storage.DownloadRecord) bool) []storage.DownloadRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []storage.DownloadRecord

	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, *clone(rec))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DateAdded.Equal(out[j].DateAdded) {
			return out[i].ID.String() < out[j].ID.String()
		}

		return out[i].DateAdded.Before(out[j].DateAdded)
	})

	return out
}

func clone(rec storage.DownloadRecord) *storage.DownloadRecord {
	c := rec

	if rec.ChapterNumber != nil {
		n := *rec.ChapterNumber
		c.ChapterNumber = &n
	}

	if rec.VolumeNumber != nil {
		v := *rec.VolumeNumber
		c.VolumeNumber = &v
	}

	if rec.PublishedAt != nil {
		p := *rec.PublishedAt
		c.PublishedAt = &p
	}

	return &c
}
