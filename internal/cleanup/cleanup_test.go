package cleanup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	n atomic.Int32
}

func (s *countingSweeper) Sweep(context.Context) { s.n.Add(1) }

func TestNewSchedulerRejectsInvalidSchedule(t *testing.T) {
	_, err := NewScheduler(context.Background(), "every now and then", &countingSweeper{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cleanup schedule")
}

func TestSchedulerRunsSweeps(t *testing.T) {
	sweeper := &countingSweeper{}

	ctx, cancel := context.WithCancel(context.Background())

	s, err := NewScheduler(ctx, "@every 1s", sweeper)
	require.NoError(t, err)

	done := make(chan error, 1)

	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return sweeper.n.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
