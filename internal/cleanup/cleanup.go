package cleanup

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/italolelis/chapter_downloader/internal/logctx"
)

// Sweeper deletes cancelled chapters and their artifacts.
type Sweeper interface {
	Sweep(ctx context.Context)
}

// Scheduler runs a Sweeper on a cron schedule, in addition to the sweeps the worker
// runs whenever it goes idle.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler parses schedule (standard five-field cron or descriptors such as "@every 30m").
// Overlapping runs are skipped.
func NewScheduler(ctx context.Context, schedule string, sweeper Sweeper) (*Scheduler, error) {
	logger := logctx.LoggerFromContext(ctx).With("component", "cleanup")

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc(schedule, func() {
		logger.DebugContext(ctx, "scheduled sweep starting")
		sweeper.Sweep(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	return &Scheduler{cron: c}, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for a running
// sweep to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	s.cron.Start()

	logger.InfoContext(ctx, "cleanup scheduler started")

	<-ctx.Done()

	<-s.cron.Stop().Done()

	logger.InfoContext(ctx, "cleanup scheduler stopped")

	return nil
}
