package memory

import (
	"context"
	"testing"
	"time"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadRepository_StatusOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewDownloadRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveDownload(ctx, &storage.DownloadRecord{ID: chapter.NewID("s", "c", "2"), Status: storage.StatusQueued, DateAdded: base.Add(2 * time.Second)}))
	require.NoError(t, repo.SaveDownload(ctx, &storage.DownloadRecord{ID: chapter.NewID("s", "c", "1"), Status: storage.StatusQueued, DateAdded: base.Add(time.Second)}))
	require.NoError(t, repo.SaveDownload(ctx, &storage.DownloadRecord{ID: chapter.NewID("s", "c", "3"), Status: storage.StatusPaused, DateAdded: base}))

	queued, err := repo.GetDownloadsByStatus(ctx, storage.StatusQueued)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "1", queued[0].ID.ChapterID)
	assert.Equal(t, "2", queued[1].ID.ChapterID)
}

func TestDownloadRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewDownloadRepository()
	id := chapter.NewID("s", "c", "1")
	n := 5.0

	require.NoError(t, repo.SaveDownload(ctx, &storage.DownloadRecord{ID: id, Status: storage.StatusQueued, ChapterNumber: &n}))

	got, err := repo.GetDownload(ctx, id)
	require.NoError(t, err)

	got.Status = storage.StatusCompleted
	*got.ChapterNumber = 9

	again, err := repo.GetDownload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusQueued, again.Status)
	assert.InDelta(t, 5.0, *again.ChapterNumber, 0)
}

func TestDownloadRepository_DeleteAndIndex(t *testing.T) {
	ctx := context.Background()
	repo := NewDownloadRepository()
	id := chapter.NewID("s", "c", "1")

	require.NoError(t, repo.SaveDownload(ctx, &storage.DownloadRecord{ID: id, Status: storage.StatusCompleted}))

	done, err := repo.GetCompletedForContent(ctx, "s", "c")
	require.NoError(t, err)
	assert.Len(t, done, 1)

	require.NoError(t, repo.DeleteDownloads(ctx, []chapter.ID{id}))

	_, err = repo.GetDownload(ctx, id)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, repo.SaveContentIndex(ctx, storage.ContentIndex{SourceID: "s", ContentID: "c", CompletedCount: 1}))

	idx, err := repo.GetContentIndex(ctx, "s", "c")
	require.NoError(t, err)
	assert.Equal(t, 1, idx.CompletedCount)

	require.NoError(t, repo.DeleteContentIndex(ctx, "s", "c"))

	_, err = repo.GetContentIndex(ctx, "s", "c")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
