package notifier

import (
	"context"
	"fmt"

	"github.com/italolelis/chapter_downloader/internal/downloader"
	"github.com/italolelis/chapter_downloader/internal/logctx"
)

// Message renders a worker event as a chat message. Only terminal outcomes produce one.
func Message(e downloader.Event) (string, bool) {
	name := e.Title
	if name == "" {
		name = e.ChapterID
	}

	switch e.Type {
	case downloader.EventCompleted:
		return fmt.Sprintf("✅ Chapter downloaded: %s", name), true
	case downloader.EventFailed:
		return fmt.Sprintf("❌ Chapter failed: %s: %s", name, e.Error), true
	default:
		return "", false
	}
}

// Forward sends a message for every terminal event until events is closed or ctx is done.
func Forward(ctx context.Context, events <-chan downloader.Event, n Notifier) {
	logger := logctx.LoggerFromContext(ctx).With("component", "notifier")

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}

			msg, ok := Message(e)
			if !ok {
				continue
			}

			if err := n.Notify(ctx, msg); err != nil {
				logger.WarnContext(ctx, "failed to send notification", "chapter_id", e.ChapterID, "err", err)
			}
		}
	}
}
