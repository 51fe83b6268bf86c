package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/italolelis/chapter_downloader/internal/downloader"
	"github.com/italolelis/chapter_downloader/internal/logctx"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
)

// EventSource is implemented by downloader.Broadcaster.
type EventSource interface {
	Subscribe(buffer int) (<-chan downloader.Event, func())
}

type EventHandler struct {
	source EventSource
}

func NewEventHandler(source EventSource) *EventHandler {
	return &EventHandler{source: source}
}

// HandleEvents upgrades the connection and streams worker events as JSON messages
// until the client goes away or the server shuts down.
func (h *EventHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	// The server write timeout would otherwise cut long-lived streams.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug("failed to clear write deadline", "err", err)
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Error("failed to accept websocket", "err", err)

		return
	}
	defer conn.CloseNow()

	events, unsubscribe := h.source.Subscribe(eventBuffer)
	defer unsubscribe()

	// Incoming messages are ignored; the returned context ends when the peer closes.
	ctx := conn.CloseRead(r.Context())

	logger.Debug("event subscriber connected")

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")

			return
		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")

				return
			}

			if err := writeEvent(ctx, conn, e); err != nil {
				logger.Debug("event subscriber gone", "err", err)

				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e downloader.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, e)
}
