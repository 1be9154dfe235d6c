package handlers

import (
	"errors"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"lyrix/internal/storage"
	"lyrix/internal/types"
)

// ArchiveHandler serves the durable record of completed extractions.
type ArchiveHandler struct {
	archive *storage.Archive
	logger  zerolog.Logger
}

// NewArchiveHandler creates the archive handler.
func NewArchiveHandler(archive *storage.Archive, logger zerolog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archive: archive, logger: logger}
}

// List returns the most recent archived extractions.
func (h *ArchiveHandler) List(c *fiber.Ctx) error {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return errorReply(c, fiber.StatusBadRequest, types.CodeInvalidInput, "invalid limit value")
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	entries, err := h.archive.List(limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("archive list failed")
		return errorReply(c, fiber.StatusInternalServerError, types.CodeInternal, "failed to list archive")
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	return c.JSON(entries)
}

// Text returns the stored lyrics text for an archived extraction.
func (h *ArchiveHandler) Text(c *fiber.Ctx) error {
	entry, err := h.archive.Get(c.Params("id"))
	if errors.Is(err, storage.ErrNotArchived) {
		return errorReply(c, fiber.StatusNotFound, types.CodeNotFound, "extraction not found")
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("archive lookup failed")
		return errorReply(c, fiber.StatusInternalServerError, types.CodeInternal, "failed to read archive")
	}

	content, err := os.ReadFile(entry.LocalPath)
	if err != nil {
		return errorReply(c, fiber.StatusNotFound, types.CodeNotFound, "lyrics file is no longer available")
	}
	return c.SendString(string(content))
}
