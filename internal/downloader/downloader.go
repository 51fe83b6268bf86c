package downloader

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/logctx"
	"github.com/italolelis/chapter_downloader/internal/paths"
	"github.com/italolelis/chapter_downloader/internal/provider"
	"github.com/italolelis/chapter_downloader/internal/storage"
	"github.com/italolelis/chapter_downloader/internal/telemetry"
)

const (
	outcomeCompleted   = telemetry.OutcomeCompleted
	outcomeFailed      = telemetry.OutcomeFailed
	outcomeHalted      = telemetry.OutcomeHalted
	outcomeSkipped     = telemetry.OutcomeSkipped
	outcomeInterrupted = telemetry.OutcomeInterrupted
)

type Options struct {
	Repository storage.DownloadRepository
	Provider   provider.Provider
	Resolver   *paths.Resolver
	// HTTPClient downloads page URLs. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	Reporter   Reporter
	Telemetry  *telemetry.Telemetry

	ArchiveMode bool
	AppVersion  string
	Now         func() time.Time
}

// Downloader owns the download queue and the single worker that drains it.
// Caller commands (Enqueue, Pause, Resume, Cancel) are safe for concurrent use;
// Run must be called exactly once.
type Downloader struct {
	repo       storage.DownloadRepository
	provider   provider.Provider
	paths      *paths.Resolver
	httpClient *http.Client
	reporter   Reporter
	telemetry  *telemetry.Telemetry
	finalizer  *Finalizer
	now        func() time.Time

	wake chan struct{}

	// txMu serializes read-modify-write status transitions and sweeps.
	// Lock order: txMu before mu.
	txMu sync.Mutex

	mu              sync.Mutex
	queue           []chapter.ID
	paused          map[chapter.ID]struct{}
	cancelled       map[chapter.ID]struct{}
	pendingArchives map[string]chapter.ID
	pendingFolders  map[string]chapter.ID
	active          *chapter.ID
	idle            bool
	ready           bool
	lastStamp       time.Time
}

func New(opts Options) (*Downloader, error) {
	if opts.Repository == nil {
		return nil, errors.New("downloader: repository is required")
	}

	if opts.Provider == nil {
		return nil, errors.New("downloader: provider is required")
	}

	if opts.Resolver == nil {
		return nil, errors.New("downloader: path resolver is required")
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Downloader{
		repo:       opts.Repository,
		provider:   opts.Provider,
		paths:      opts.Resolver,
		httpClient: opts.HTTPClient,
		reporter:   opts.Reporter,
		telemetry:  opts.Telemetry,
		finalizer: &Finalizer{
			paths:       opts.Resolver,
			archiveMode: opts.ArchiveMode,
			appVersion:  opts.AppVersion,
			now:         opts.Now,
		},
		now:             opts.Now,
		wake:            make(chan struct{}, 1),
		paused:          make(map[chapter.ID]struct{}),
		cancelled:       make(map[chapter.ID]struct{}),
		pendingArchives: make(map[string]chapter.ID),
		pendingFolders:  make(map[string]chapter.ID),
		idle:            true,
	}, nil
}

// Run is the worker loop. It sleeps until woken by Enqueue, Resume, Refresh or Recover,
// then processes queued chapters one at a time until the queue is empty.
func (d *Downloader) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx).With("component", "worker", "run_id", uuid.NewString())
	ctx = logctx.WithLogger(ctx, logger)

	logger.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "shutting down worker")

			return nil
		case <-d.wake:
			d.drain(ctx)
		}
	}
}

// Idle reports whether the worker has no active chapter.
func (d *Downloader) Idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.idle
}

func (d *Downloader) drain(ctx context.Context) {
	for ctx.Err() == nil {
		id, ok := d.next()
		if !ok {
			d.setIdle()

			// A Cancel that saw the worker busy after the last sweep left its
			// deletions for us.
			if d.hasPending() {
				d.Sweep(ctx)
			}

			return
		}

		d.telemetry.InstrumentChapter(ctx, func(ctx context.Context) string {
			return d.process(ctx, id)
		})

		d.mu.Lock()
		d.active = nil
		d.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		d.report(ctx, Event{Type: EventIdle})
		d.Sweep(ctx)
		d.refresh(ctx)
	}
}

// next pops the queue head and marks it as the active chapter.
func (d *Downloader) next() (chapter.ID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return chapter.ID{}, false
	}

	id := d.queue[0]
	d.queue = d.queue[1:]
	d.active = &id
	d.idle = false

	return id, true
}

func (d *Downloader) setIdle() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.active = nil
	d.idle = true
}

func (d *Downloader) hasPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.cancelled) > 0 || len(d.pendingArchives) > 0 || len(d.pendingFolders) > 0
}

func (d *Downloader) signal() {
	d.mu.Lock()
	ready := d.ready
	d.mu.Unlock()

	if !ready {
		return
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Downloader) halted(id chapter.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, paused := d.paused[id]
	_, cancelled := d.cancelled[id]

	return paused || cancelled
}

func (d *Downloader) isCancelled(id chapter.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.cancelled[id]

	return ok
}

func (d *Downloader) report(ctx context.Context, e Event) {
	if d.reporter == nil {
		return
	}

	e.Time = d.now()
	d.reporter.Report(ctx, e)
}
