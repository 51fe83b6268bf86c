package sqldb

import (
	"context"
	"errors"
	"testing"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/storage"
	"github.com/italolelis/chapter_downloader/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedDownloadRepository_PassesThrough(t *testing.T) {
	ctx := context.Background()

	tel, err := telemetry.New(ctx, telemetry.Config{Enabled: false})
	require.NoError(t, err)

	repo := NewInstrumentedDownloadRepository(newTestRepository(t), tel)

	id := chapter.NewID("src", "content", "ch-1")
	require.NoError(t, repo.SaveDownload(ctx, &storage.DownloadRecord{ID: id, Status: storage.StatusQueued}))

	got, err := repo.GetDownload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusQueued, got.Status)

	queued, err := repo.GetDownloadsByStatus(ctx, storage.StatusQueued)
	require.NoError(t, err)
	assert.Len(t, queued, 1)

	require.NoError(t, repo.DeleteDownloads(ctx, []chapter.ID{id}))

	_, err = repo.GetDownload(ctx, id)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
