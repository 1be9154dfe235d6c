package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"lyrix/internal/queue"
	"lyrix/internal/types"
)

// StatusHandler serves point-in-time job snapshots.
type StatusHandler struct {
	store  queue.Store
	logger zerolog.Logger
}

// NewStatusHandler creates the status handler.
func NewStatusHandler(store queue.Store, logger zerolog.Logger) *StatusHandler {
	return &StatusHandler{store: store, logger: logger}
}

// Handle returns the current snapshot. Unknown or expired ids are a normal
// outcome: state not_found with HTTP 200, so pollers have a single path.
func (h *StatusHandler) Handle(c *fiber.Ctx) error {
	id := c.Params("id")
	job, err := h.store.Get(c.Context(), id)
	if errors.Is(err, queue.ErrNotFound) {
		return c.JSON(notFoundStatus(id))
	}
	if err != nil {
		h.logger.Error().Err(err).Str("job", id).Msg("status lookup failed")
		return errorReply(c, fiber.StatusServiceUnavailable, types.CodeInternal, "job store is unavailable")
	}
	return c.JSON(statusFromJob(job))
}
