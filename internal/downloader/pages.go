package downloader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/downloader/progress"
	"github.com/italolelis/chapter_downloader/internal/fsutil"
	"github.com/italolelis/chapter_downloader/internal/logctx"
	"github.com/italolelis/chapter_downloader/internal/provider"
	"github.com/italolelis/chapter_downloader/internal/storage"
)

const (
	strategyNetwork = "network"
	strategyDirect  = "direct"

	sniffLen         = 512
	progressInterval = 1 << 20 // 1MiB
	defaultExt       = ".bin"
)

var extByMediaType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/avif": ".avif",
	"image/bmp":  ".bmp",
	"image/heic": ".heic",
	"image/jxl":  ".jxl",
}

var knownExt = map[string]bool{".jpeg": true}

func init() {
	for _, ext := range extByMediaType {
		knownExt[ext] = true
	}
}

// writePages writes every page unit into dir, one at a time. Before each unit it checks
// the halt signals and returns chapter.ErrHalted if the chapter was paused or cancelled.
func (d *Downloader) writePages(ctx context.Context, rec *storage.DownloadRecord, pages *provider.Pages, dir string) error {
	logger := logctx.LoggerFromContext(ctx)

	total := pages.Count()
	strategy := strategyDirect

	if len(pages.URLs) > 0 {
		strategy = strategyNetwork
	}

	logger.DebugContext(ctx, "writing pages", "pages", total, "strategy", strategy, "dir", dir)

	var written int64

	for i := 0; i < total; i++ {
		if d.halted(rec.ID) {
			logger.InfoContext(ctx, "halt observed", "written", i, "pages", total)

			return chapter.ErrHalted
		}

		var (
			n   int64
			err error
		)

		if strategy == strategyNetwork {
			n, err = d.downloadPage(ctx, i, pages.URLs[i], dir)
			if err != nil {
				return &chapter.WriteError{ID: rec.ID, Page: i, URL: pages.URLs[i], Err: err}
			}
		} else {
			n, err = writeRawPage(i, pages.Raw[i], dir)
			if err != nil {
				return &chapter.WriteError{ID: rec.ID, Page: i, Err: err}
			}
		}

		written += n
		d.telemetry.RecordPage(ctx, strategy, n)

		d.report(ctx, Event{
			Type:      EventProgress,
			ChapterID: rec.ID.String(),
			Title:     displayName(rec),
			Phase:     PhaseDownloading,
			Progress:  float64(i+1) / float64(total),
		})
	}

	logger.InfoContext(ctx, "pages written", "pages", total, "size", humanize.Bytes(uint64(written)))

	return nil
}

// downloadPage fetches one page URL through the provider's request transform and
// stores it as %04d<ext> in dir.
func (d *Downloader) downloadPage(ctx context.Context, index int, pageURL, dir string) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	req, err := d.provider.TransformRequest(ctx, pageURL)
	if err != nil {
		return 0, fmt.Errorf("failed to build page request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to download page: %s", resp.Status)
	}

	pr := progress.NewReader(resp.Body, resp.ContentLength, progressInterval, func(read, total int64) {
		if total > 0 {
			logger.DebugContext(ctx, "page download progress",
				"page", index,
				"downloaded", humanize.Bytes(uint64(read)),
				"total", humanize.Bytes(uint64(total)))
		}
	})

	body := bufio.NewReaderSize(pr, sniffLen)
	head, _ := body.Peek(sniffLen)

	target := filepath.Join(dir, pageName(index, pageExtension(pageURL, resp.Header.Get("Content-Type"), head)))

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fsutil.FilePerm)
	if err != nil {
		return 0, fmt.Errorf("failed to create page file: %w", err)
	}

	if _, err := io.Copy(out, body); err != nil {
		_ = out.Close()

		return 0, fmt.Errorf("failed to write page file: %w", err)
	}

	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close page file: %w", err)
	}

	return pr.N(), nil
}

func writeRawPage(index int, data []byte, dir string) (int64, error) {
	target := filepath.Join(dir, pageName(index, pageExtension("", "", data)))

	if err := os.WriteFile(target, data, fsutil.FilePerm); err != nil {
		return 0, fmt.Errorf("failed to write page file: %w", err)
	}

	return int64(len(data)), nil
}

func pageName(index int, ext string) string {
	return fmt.Sprintf("%04d%s", index, ext)
}

// pageExtension picks a file extension from the URL path, then the declared
// Content-Type, then the sniffed bytes.
func pageExtension(pageURL, contentType string, head []byte) string {
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil {
			if ext := strings.ToLower(path.Ext(u.Path)); knownExt[ext] {
				return ext
			}
		}
	}

	if ext, ok := extForMediaType(contentType); ok {
		return ext
	}

	if len(head) > 0 {
		if ext, ok := extForMediaType(http.DetectContentType(head)); ok {
			return ext
		}
	}

	return defaultExt
}

func extForMediaType(contentType string) (string, bool) {
	if contentType == "" {
		return "", false
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}

	ext, ok := extByMediaType[strings.ToLower(mediaType)]

	return ext, ok
}
