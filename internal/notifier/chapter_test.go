package notifier

import (
	"context"
	"sync"
	"testing"

	"github.com/italolelis/chapter_downloader/internal/downloader"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Notify(_ context.Context, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.msgs = append(r.msgs, content)

	return nil
}

func TestMessage(t *testing.T) {
	msg, ok := Message(downloader.Event{Type: downloader.EventCompleted, Title: "Foo (5)"})
	assert.True(t, ok)
	assert.Equal(t, "✅ Chapter downloaded: Foo (5)", msg)

	msg, ok = Message(downloader.Event{Type: downloader.EventFailed, ChapterID: "s/c/1", Error: "boom"})
	assert.True(t, ok)
	assert.Equal(t, "❌ Chapter failed: s/c/1: boom", msg)

	_, ok = Message(downloader.Event{Type: downloader.EventProgress})
	assert.False(t, ok)
}

func TestForward(t *testing.T) {
	events := make(chan downloader.Event, 3)
	events <- downloader.Event{Type: downloader.EventProgress, Title: "a"}
	events <- downloader.Event{Type: downloader.EventCompleted, Title: "a"}
	events <- downloader.Event{Type: downloader.EventIdle}
	close(events)

	r := &recorder{}
	Forward(context.Background(), events, r)

	assert.Equal(t, []string{"✅ Chapter downloaded: a"}, r.msgs)
}
