package downloader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/fsutil"
	"github.com/italolelis/chapter_downloader/internal/paths"
	"github.com/italolelis/chapter_downloader/internal/storage"
)

func num(f float64) *float64 { return &f }

func TestArchiveFileName(t *testing.T) {
	id := chapter.NewID("src", "content", "ch")

	tests := []struct {
		name string
		rec  storage.DownloadRecord
		want string
	}{
		{
			name: "title and number",
			rec:  storage.DownloadRecord{ID: id, ContentTitle: "Foo", ChapterNumber: num(5)},
			want: "Foo (5).cbz",
		},
		{
			name: "fractional number and chapter title",
			rec:  storage.DownloadRecord{ID: id, ContentTitle: "Foo", ChapterNumber: num(12.5), ChapterTitle: "The End"},
			want: "Foo (12.5) - The End.cbz",
		},
		{
			name: "invalid characters stripped",
			rec:  storage.DownloadRecord{ID: id, ContentTitle: `Re:Zero / "Part" <2>?`, ChapterNumber: num(1)},
			want: "ReZero  Part 2 (1).cbz",
		},
		{
			name: "control characters stripped",
			rec:  storage.DownloadRecord{ID: id, ContentTitle: "Bar\x00\tBaz"},
			want: "BarBaz.cbz",
		},
		{
			name: "empty falls back to hash",
			rec:  storage.DownloadRecord{ID: id, ContentTitle: `:*?`},
			want: paths.Hash(id.String())[:16] + ".cbz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, archiveFileName(&tt.rec))
		})
	}
}

func TestArchiveName_Collision(t *testing.T) {
	rec := &storage.DownloadRecord{ID: chapter.NewID("src", "c", "1"), ContentTitle: "Foo", ChapterNumber: num(1)}

	assert.Equal(t, "Foo (1).cbz", archiveName(rec, false))

	suffixed := archiveName(rec, true)
	assert.Equal(t, "Foo (1) ["+paths.Hash(rec.ID.String())[:8]+"].cbz", suffixed)

	// The record's own previous archive is replaced, not suffixed.
	rec.StorageLocator = "Foo (1).cbz"
	assert.Equal(t, "Foo (1).cbz", archiveName(rec, true))
}

func TestSanitizeFileNameTruncates(t *testing.T) {
	long := strings.Repeat("é", maxArchiveName)

	got := sanitizeFileName(long)
	assert.LessOrEqual(t, len(got), maxArchiveName)
	assert.True(t, strings.HasPrefix(long, got))
}

func writeScratch(t *testing.T, dir string, files ...string) {
	t.Helper()

	require.NoError(t, fsutil.EnsureDir(dir))

	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), png(f), fsutil.FilePerm))
	}
}

func TestFinalizer_DirectoryReplacesExisting(t *testing.T) {
	resolver := paths.NewResolver(t.TempDir())
	f := &Finalizer{paths: resolver, now: time.Now}

	rec := &storage.DownloadRecord{ID: chapter.NewID("src", "c", "1")}
	scratch := resolver.PathFor(rec.ID, true)
	dest := resolver.PathFor(rec.ID, false)

	writeScratch(t, dest, "stale.png")
	writeScratch(t, scratch, "0000.png", "0001.png")

	locator, err := f.Finalize(context.Background(), rec, scratch)
	require.NoError(t, err)
	assert.Empty(t, locator)

	assert.False(t, fsutil.Exists(scratch))
	assert.Equal(t, []string{"0000.png", "0001.png"}, listDir(t, dest))
}

func TestFinalizer_ArchiveNameCollision(t *testing.T) {
	resolver := paths.NewResolver(t.TempDir())
	f := &Finalizer{paths: resolver, archiveMode: true, appVersion: "test", now: time.Now}

	first := &storage.DownloadRecord{ID: chapter.NewID("a", "c", "1"), ContentTitle: "Foo", ChapterNumber: num(1)}
	second := &storage.DownloadRecord{ID: chapter.NewID("b", "c", "1"), ContentTitle: "Foo", ChapterNumber: num(1)}

	writeScratch(t, resolver.PathFor(first.ID, true), "0000.png")
	writeScratch(t, resolver.PathFor(second.ID, true), "0000.png")

	name1, err := f.Finalize(context.Background(), first, resolver.PathFor(first.ID, true))
	require.NoError(t, err)

	name2, err := f.Finalize(context.Background(), second, resolver.PathFor(second.ID, true))
	require.NoError(t, err)

	assert.Equal(t, "Foo (1).cbz", name1)
	assert.NotEqual(t, name1, name2)
	assert.True(t, fsutil.Exists(resolver.ArchivePath(name1)))
	assert.True(t, fsutil.Exists(resolver.ArchivePath(name2)))
}

func TestFinalizer_MissingScratchFails(t *testing.T) {
	resolver := paths.NewResolver(t.TempDir())
	f := &Finalizer{paths: resolver, now: time.Now}

	rec := &storage.DownloadRecord{ID: chapter.NewID("src", "c", "1")}

	_, err := f.Finalize(context.Background(), rec, resolver.PathFor(rec.ID, true))

	var finalizeErr *chapter.FinalizeError
	require.ErrorAs(t, err, &finalizeErr)
	assert.Equal(t, modeDirectory, finalizeErr.Mode)
}
