package handlers

import (
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lyrix/internal/metrics"
	"lyrix/internal/queue"
	"lyrix/internal/staging"
	"lyrix/internal/types"
)

// SubmitHandler accepts multipart audio uploads and enqueues jobs.
type SubmitHandler struct {
	store  queue.Store
	stager *staging.Stager
	logger zerolog.Logger
}

// NewSubmitHandler creates the upload handler.
func NewSubmitHandler(store queue.Store, stager *staging.Stager, logger zerolog.Logger) *SubmitHandler {
	return &SubmitHandler{store: store, stager: stager, logger: logger}
}

// Handle validates the upload synchronously, stages it, and returns the
// job id immediately. All processing happens asynchronously.
func (h *SubmitHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return errorReply(c, fiber.StatusBadRequest, types.CodeInvalidInput, "no file uploaded")
	}

	opts, err := parseOptions(c.FormValue("language_hint"), c.FormValue("timestamps"), c.FormValue("diarize"))
	if err != nil {
		return errorReply(c, fiber.StatusBadRequest, types.CodeInvalidInput, err.Error())
	}

	// cheap checks first so oversized or misnamed uploads are never read
	if err := h.stager.Validate(file.Filename, file.Size); err != nil {
		return replyValidation(c, err)
	}

	src, err := file.Open()
	if err != nil {
		return errorReply(c, fiber.StatusInternalServerError, types.CodeInternal, "failed to read upload")
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return errorReply(c, fiber.StatusInternalServerError, types.CodeInternal, "failed to read upload")
	}

	return h.enqueue(c, file.Filename, data, opts)
}

// enqueue stages the bytes and creates the job. Shared with the URL intake.
func (h *SubmitHandler) enqueue(c *fiber.Ctx, filename string, data []byte, opts types.Options) error {
	jobID := uuid.New().String()

	path, err := h.stager.Stage(jobID, filename, data)
	if err != nil {
		return replyValidation(c, err)
	}

	job := queue.NewJob(jobID, filename, path, opts)
	if err := h.store.Enqueue(c.Context(), job); err != nil {
		h.stager.Cleanup(jobID)
		if errors.Is(err, queue.ErrQueueFull) {
			return errorReply(c, fiber.StatusServiceUnavailable, "queue_unavailable", "queue is full, retry later")
		}
		h.logger.Error().Err(err).Msg("enqueue failed")
		return errorReply(c, fiber.StatusServiceUnavailable, "queue_unavailable", "queue is unavailable, retry later")
	}

	metrics.RecordSubmitted()
	h.logger.Info().Str("job", jobID).Str("file", filename).Msg("job enqueued")

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id": jobID,
		"state":  types.StateQueued,
	})
}

func parseOptions(languageHint, timestamps, diarize string) (types.Options, error) {
	opts := types.Options{
		LanguageHint: languageHint,
		Timestamps:   timestamps,
	}
	if opts.LanguageHint == "" {
		opts.LanguageHint = "auto"
	}
	if opts.Timestamps == "" {
		opts.Timestamps = types.TimestampsNone
	}
	if opts.Timestamps != types.TimestampsNone && opts.Timestamps != types.TimestampsWord {
		return opts, errors.New("timestamps must be \"none\" or \"word\"")
	}
	if opts.LanguageHint != "auto" && len(opts.LanguageHint) != 2 {
		return opts, errors.New("language_hint must be \"auto\" or an ISO-639-1 code")
	}
	if diarize != "" {
		b, err := strconv.ParseBool(diarize)
		if err != nil {
			return opts, errors.New("diarize must be a boolean")
		}
		opts.Diarize = b // accepted but not implemented
	}
	return opts, nil
}

func replyValidation(c *fiber.Ctx, err error) error {
	var verr *staging.ValidationError
	if errors.As(err, &verr) {
		status := fiber.StatusBadRequest
		if verr.Code == types.CodeFileTooLarge {
			status = fiber.StatusRequestEntityTooLarge
		}
		return errorReply(c, status, verr.Code, verr.Message)
	}
	return errorReply(c, fiber.StatusInternalServerError, types.CodeInternal, err.Error())
}
