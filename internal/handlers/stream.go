package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"lyrix/internal/queue"
)

// StreamHandler pushes job snapshots over a WebSocket connection until the
// job reaches a terminal state. The store watch drives the stream; there is
// no polling loop.
type StreamHandler struct {
	store  queue.Store
	logger zerolog.Logger
}

// NewStreamHandler creates the progress stream handler.
func NewStreamHandler(store queue.Store, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{store: store, logger: logger}
}

// Handle serves one watch stream. The watch is cancelled as soon as the
// client goes away, so an abandoned stream costs nothing.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()
	id := c.Params("id")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the read pump exists only to notice the client closing
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	updates, err := h.store.Watch(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		_ = c.WriteJSON(notFoundStatus(id))
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("job", id).Msg("watch failed")
		return
	}

	for job := range updates {
		if err := c.WriteJSON(statusFromJob(&job)); err != nil {
			return
		}
		if job.Terminal() {
			return
		}
	}
}
