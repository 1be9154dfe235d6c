package handlers

import (
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"lyrix/internal/queue"
	"lyrix/internal/staging"
	"lyrix/internal/types"
)

// RemoteHandler ingests audio from a public URL instead of a direct upload.
type RemoteHandler struct {
	submit   *SubmitHandler
	maxBytes int64
	client   *http.Client
	logger   zerolog.Logger
}

// NewRemoteHandler creates the URL intake handler. The download client has
// a hard timeout so a stalled upstream cannot pin the request.
func NewRemoteHandler(store queue.Store, stager *staging.Stager, maxSizeMB int, logger zerolog.Logger) *RemoteHandler {
	return &RemoteHandler{
		submit:   NewSubmitHandler(store, stager, logger),
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
	}
}

type remoteRequest struct {
	URL          string `json:"url"`
	Name         string `json:"name"`
	LanguageHint string `json:"language_hint"`
	Timestamps   string `json:"timestamps"`
	Diarize      string `json:"diarize"`
}

// Handle downloads the audio at the given URL and enqueues it through the
// same validation path as a direct upload.
func (h *RemoteHandler) Handle(c *fiber.Ctx) error {
	var req remoteRequest
	if err := c.BodyParser(&req); err != nil {
		return errorReply(c, fiber.StatusBadRequest, types.CodeInvalidInput, "invalid request body")
	}
	if req.URL == "" {
		return errorReply(c, fiber.StatusBadRequest, types.CodeInvalidInput, "url is required")
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return errorReply(c, fiber.StatusBadRequest, types.CodeInvalidInput, "url must be http or https")
	}

	opts, err := parseOptions(req.LanguageHint, req.Timestamps, req.Diarize)
	if err != nil {
		return errorReply(c, fiber.StatusBadRequest, types.CodeInvalidInput, err.Error())
	}

	filename := req.Name
	if filename == "" {
		filename = path.Base(parsed.Path)
	}
	if !staging.SupportedFormat(filename) {
		return errorReply(c, fiber.StatusBadRequest, types.CodeInvalidInput, "url does not name a supported audio format")
	}

	resp, err := h.client.Get(req.URL)
	if err != nil {
		h.logger.Warn().Err(err).Str("url", req.URL).Msg("remote fetch failed")
		return errorReply(c, fiber.StatusBadGateway, types.CodeInvalidInput, "failed to download audio")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errorReply(c, fiber.StatusBadRequest, types.CodeInvalidInput, "audio url is not accessible")
	}

	// read one byte past the ceiling so oversized downloads are detected
	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return errorReply(c, fiber.StatusBadGateway, types.CodeInvalidInput, "failed to download audio")
	}
	if int64(len(data)) > h.maxBytes {
		return errorReply(c, fiber.StatusRequestEntityTooLarge, types.CodeFileTooLarge, "downloaded audio exceeds the size ceiling")
	}

	return h.submit.enqueue(c, filename, data, opts)
}
