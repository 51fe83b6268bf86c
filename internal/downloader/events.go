package downloader

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventProgress  EventType = "progress"
	EventIdle      EventType = "idle"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventHalted    EventType = "halted"
)

type Phase string

const (
	PhaseFetchingImages Phase = "fetching_images"
	PhaseDownloading    Phase = "downloading"
	PhaseFinalizing     Phase = "finalizing"
)

// Event is a state change published by the worker. Progress is only meaningful for
// PhaseDownloading and ranges over [0, 1].
type Event struct {
	Type      EventType `json:"type"`
	ChapterID string    `json:"chapter_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Phase     Phase     `json:"phase,omitempty"`
	Progress  float64   `json:"progress,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Reporter receives worker events. Implementations must not block.
type Reporter interface {
	Report(ctx context.Context, e Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, e Event)

func (f ReporterFunc) Report(ctx context.Context, e Event) { f(ctx, e) }

// Broadcaster fans events out to any number of subscribers. Slow subscribers miss
// events instead of stalling the worker.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

func (b *Broadcaster) Report(_ context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber with the given buffer. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()

			close(ch)
		})
	}
}
