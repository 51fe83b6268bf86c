package downloader

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/comicinfo"
	"github.com/italolelis/chapter_downloader/internal/fsutil"
	"github.com/italolelis/chapter_downloader/internal/logctx"
	"github.com/italolelis/chapter_downloader/internal/paths"
	"github.com/italolelis/chapter_downloader/internal/storage"
)

const (
	modeDirectory = "directory"
	modeArchive   = "archive"

	archiveExt     = ".cbz"
	maxArchiveName = 200
	invalidChars   = `/\:*?"<>|`
)

// Finalizer turns a fully written scratch directory into permanent storage.
type Finalizer struct {
	paths       *paths.Resolver
	archiveMode bool
	appVersion  string
	now         func() time.Time
}

// Finalize moves or archives scratch and returns the storage locator: the archive
// file name in archive mode, empty in directory mode where the path derives from the id.
// On error the scratch directory is left in place.
func (f *Finalizer) Finalize(ctx context.Context, rec *storage.DownloadRecord, scratch string) (string, error) {
	if f.archiveMode {
		return f.archive(ctx, rec, scratch)
	}

	return "", f.moveToPermanent(ctx, rec, scratch)
}

func (f *Finalizer) moveToPermanent(ctx context.Context, rec *storage.DownloadRecord, scratch string) error {
	logger := logctx.LoggerFromContext(ctx)

	dest := f.paths.PathFor(rec.ID, false)

	if err := fsutil.Remove(dest); err != nil {
		return &chapter.FinalizeError{ID: rec.ID, Mode: modeDirectory, Err: err}
	}

	if err := fsutil.Move(scratch, dest); err != nil {
		return &chapter.FinalizeError{ID: rec.ID, Mode: modeDirectory, Err: err}
	}

	logger.DebugContext(ctx, "chapter moved to permanent storage", "dir", dest)

	return nil
}

func (f *Finalizer) archive(ctx context.Context, rec *storage.DownloadRecord, scratch string) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	// Metadata is best-effort; an archive without it is still a valid download.
	if err := comicinfo.New(rec, f.appVersion, f.now()).Write(scratch); err != nil {
		logger.WarnContext(ctx, "failed to write chapter metadata", "err", err)
	}

	name := archiveName(rec, fsutil.Exists(f.paths.ArchivePath(archiveFileName(rec))))
	dest := f.paths.ArchivePath(name)

	size, err := fsutil.CompressDirectory(scratch, dest)
	if err != nil {
		return "", &chapter.FinalizeError{ID: rec.ID, Mode: modeArchive, Err: err}
	}

	if err := fsutil.Remove(scratch); err != nil {
		logger.WarnContext(ctx, "failed to remove scratch directory after archiving", "dir", scratch, "err", err)
	}

	logger.DebugContext(ctx, "chapter archived", "archive", name, "size", humanize.Bytes(uint64(size)))

	return name, nil
}

// archiveName returns the archive file name for rec. When the preferred name is taken
// by a different chapter's archive, a short id hash is appended.
func archiveName(rec *storage.DownloadRecord, preferredExists bool) string {
	name := archiveFileName(rec)
	if preferredExists && rec.StorageLocator != name {
		base := strings.TrimSuffix(name, archiveExt)

		return fmt.Sprintf("%s [%s]%s", base, paths.Hash(rec.ID.String())[:8], archiveExt)
	}

	return name
}

// archiveFileName is "<content title> (<number>) - <chapter title>.cbz" with absent parts
// dropped, or a hash of the id when nothing printable remains.
func archiveFileName(rec *storage.DownloadRecord) string {
	base := archiveBaseName(rec)
	if base == "" {
		base = paths.Hash(rec.ID.String())[:16]
	}

	return base + archiveExt
}

func archiveBaseName(rec *storage.DownloadRecord) string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(rec.ContentTitle))

	if rec.ChapterNumber != nil {
		if b.Len() > 0 {
			b.WriteString(" ")
		}

		b.WriteString("(" + comicinfo.FormatNumber(*rec.ChapterNumber) + ")")
	}

	if title := strings.TrimSpace(rec.ChapterTitle); title != "" {
		if b.Len() > 0 {
			b.WriteString(" - ")
		}

		b.WriteString(title)
	}

	return sanitizeFileName(b.String())
}

// sanitizeFileName strips characters that are invalid on common filesystems and
// trims the result to maxArchiveName bytes.
func sanitizeFileName(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(invalidChars, r) {
			return -1
		}

		return r
	}, s)

	for len(cleaned) > maxArchiveName {
		_, size := utf8.DecodeLastRuneInString(cleaned)
		cleaned = cleaned[:len(cleaned)-size]
	}

	return strings.Trim(strings.TrimSpace(cleaned), ".")
}
