package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/fsutil"
	"github.com/italolelis/chapter_downloader/internal/paths"
	"github.com/italolelis/chapter_downloader/internal/provider"
	"github.com/italolelis/chapter_downloader/internal/storage"
	"github.com/italolelis/chapter_downloader/internal/storage/memory"
)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

func png(label string) []byte {
	return []byte("\x89PNG\r\n\x1a\n" + label)
}

type fakeProvider struct {
	mu       sync.Mutex
	pages    map[chapter.ID]*provider.Pages
	failures map[chapter.ID]int
	calls    []chapter.ID
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		pages:    make(map[chapter.ID]*provider.Pages),
		failures: make(map[chapter.ID]int),
	}
}

func (p *fakeProvider) set(id chapter.ID, pages *provider.Pages) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pages[id] = pages
}

func (p *fakeProvider) failNext(id chapter.ID, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures[id] = n
}

func (p *fakeProvider) fetched() []chapter.ID {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]chapter.ID(nil), p.calls...)
}

func (p *fakeProvider) FetchPages(_ context.Context, id chapter.ID) (*provider.Pages, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, id)

	if p.failures[id] > 0 {
		p.failures[id]--

		return nil, errors.New("provider unavailable")
	}

	pages, ok := p.pages[id]
	if !ok {
		return nil, fmt.Errorf("unknown chapter %s", id)
	}

	return pages, nil
}

func (p *fakeProvider) TransformRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-Provider", "fake")

	return req, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Report(_ context.Context, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
}

func (l *eventLog) forChapter(id chapter.ID) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Event

	for _, e := range l.events {
		if e.ChapterID == id.String() {
			out = append(out, e)
		}
	}

	return out
}

// invariantRepo checks the single-active and finalize-then-complete invariants on every write.
type invariantRepo struct {
	storage.DownloadRepository
	paths *paths.Resolver

	mu         sync.Mutex
	maxActive  int
	violations []string
	noArtifact map[chapter.ID]bool
}

// allowNoArtifact exempts id from the artifact check, for chapters with nothing to write.
func (r *invariantRepo) allowNoArtifact(id chapter.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.noArtifact == nil {
		r.noArtifact = make(map[chapter.ID]bool)
	}

	r.noArtifact[id] = true
}

func (r *invariantRepo) SaveDownload(ctx context.Context, rec *storage.DownloadRecord) error {
	if rec.Status == storage.StatusCompleted && !rec.HasText() {
		artifact := r.paths.PathFor(rec.ID, false)
		if rec.StorageLocator != "" {
			artifact = r.paths.ArchivePath(rec.StorageLocator)
		}

		r.mu.Lock()
		exempt := r.noArtifact[rec.ID]
		r.mu.Unlock()

		if !exempt && !fsutil.Exists(artifact) {
			r.violate("completed before artifact existed: " + rec.ID.String())
		}

		if fsutil.Exists(r.paths.PathFor(rec.ID, true)) {
			r.violate("completed while scratch directory remained: " + rec.ID.String())
		}
	}

	if err := r.DownloadRepository.SaveDownload(ctx, rec); err != nil {
		return err
	}

	active, err := r.DownloadRepository.GetDownloadsByStatus(ctx, storage.StatusActive)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.maxActive = max(r.maxActive, len(active))
	r.mu.Unlock()

	return nil
}

func (r *invariantRepo) violate(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.violations = append(r.violations, msg)
}

type harness struct {
	d      *Downloader
	repo   *invariantRepo
	store  *memory.DownloadRepository
	prov   *fakeProvider
	paths  *paths.Resolver
	events *eventLog
}

type harnessOption func(*Options)

func withArchiveMode() harnessOption {
	return func(o *Options) { o.ArchiveMode = true }
}

// newHarness builds a downloader over an in-memory store. The worker is not started;
// call start once the store is seeded.
func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	store := memory.NewDownloadRepository()
	resolver := paths.NewResolver(t.TempDir())
	repo := &invariantRepo{DownloadRepository: store, paths: resolver}
	prov := newFakeProvider()
	events := &eventLog{}

	o := Options{
		Repository: repo,
		Provider:   prov,
		Resolver:   resolver,
		Reporter:   events,
		AppVersion: "test",
	}
	for _, opt := range opts {
		opt(&o)
	}

	d, err := New(o)
	require.NoError(t, err)

	h := &harness{d: d, repo: repo, store: store, prov: prov, paths: resolver, events: events}

	t.Cleanup(func() {
		repo.mu.Lock()
		defer repo.mu.Unlock()

		require.LessOrEqual(t, repo.maxActive, 1, "more than one active record observed")
		require.Empty(t, repo.violations)
	})

	return h
}

// start runs the worker and the recovery procedure.
func (h *harness) start(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = h.d.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.NoError(t, h.d.Recover(ctx))
}

func (h *harness) status(t *testing.T, id chapter.ID) storage.Status {
	t.Helper()

	rec, err := h.store.GetDownload(context.Background(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return ""
	}

	if err != nil {
		t.Errorf("load %s: %v", id, err)

		return ""
	}

	return rec.Status
}

func (h *harness) waitStatus(t *testing.T, id chapter.ID, want storage.Status) {
	t.Helper()

	require.Eventually(t, func() bool {
		return h.status(t, id) == want && h.d.Idle()
	}, waitFor, tick, "chapter %s never reached %q", id, want)
}

func (h *harness) waitGone(t *testing.T, id chapter.ID) {
	t.Helper()

	require.Eventually(t, func() bool {
		return h.status(t, id) == "" && h.d.Idle()
	}, waitFor, tick, "chapter %s was never deleted", id)
}

func (h *harness) seed(t *testing.T, id chapter.ID, status storage.Status, added time.Time) {
	t.Helper()

	require.NoError(t, h.store.SaveDownload(context.Background(), &storage.DownloadRecord{
		ID:           id,
		Status:       status,
		DateAdded:    added,
		ContentTitle: "Seeded",
	}))
}

func queueSnapshot(d *Downloader) []chapter.ID {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]chapter.ID(nil), d.queue...)
}

func requests(ids ...chapter.ID) []Request {
	out := make([]Request, 0, len(ids))
	for _, id := range ids {
		out = append(out, Request{ID: id, ContentTitle: "Series"})
	}

	return out
}
