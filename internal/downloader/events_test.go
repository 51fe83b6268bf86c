package downloader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_FansOut(t *testing.T) {
	b := NewBroadcaster()

	first, unsubFirst := b.Subscribe(4)
	second, unsubSecond := b.Subscribe(4)

	defer unsubSecond()

	b.Report(context.Background(), Event{Type: EventIdle})

	assert.Equal(t, EventIdle, (<-first).Type)
	assert.Equal(t, EventIdle, (<-second).Type)

	unsubFirst()
	unsubFirst()

	_, open := <-first
	assert.False(t, open)

	b.Report(context.Background(), Event{Type: EventCompleted, ChapterID: "s||c||1"})
	assert.Equal(t, "s||c||1", (<-second).ChapterID)
}

func TestBroadcaster_DropsForSlowSubscribers(t *testing.T) {
	b := NewBroadcaster()

	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Report(context.Background(), Event{Type: EventProgress, Progress: 0.5})
	b.Report(context.Background(), Event{Type: EventProgress, Progress: 1})

	e := <-ch
	assert.InDelta(t, 0.5, e.Progress, 1e-9)

	select {
	case extra := <-ch:
		require.Failf(t, "unexpected event", "%+v", extra)
	default:
	}
}

func TestReporterFunc(t *testing.T) {
	var got Event

	r := ReporterFunc(func(_ context.Context, e Event) { got = e })
	r.Report(context.Background(), Event{Type: EventHalted})

	assert.Equal(t, EventHalted, got.Type)
}
