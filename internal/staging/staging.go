// Package staging validates uploaded audio and manages per-job temporary
// workspaces. Every job owns exactly one workspace directory which is
// removed recursively on every exit path.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lyrix/internal/types"
)

var supportedExtensions = []string{
	".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm", ".aac", ".wma",
}

// ValidationError is returned for uploads rejected before a job exists.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Stager writes validated uploads into job-scoped workspaces.
type Stager struct {
	tempRoot string
	maxBytes int64
	logger   zerolog.Logger
}

// NewStager creates a stager rooted at tempRoot with the given size ceiling.
func NewStager(tempRoot string, maxSizeMB int, logger zerolog.Logger) (*Stager, error) {
	if err := os.MkdirAll(tempRoot, 0755); err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}
	return &Stager{
		tempRoot: tempRoot,
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
		logger:   logger,
	}, nil
}

// SupportedFormat checks the claimed filename against the supported set.
func SupportedFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, s := range supportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Validate rejects empty, oversized, or unsupported uploads. It runs
// synchronously at submission so malformed requests never occupy the queue.
func (s *Stager) Validate(filename string, size int64) error {
	if size == 0 {
		return &ValidationError{
			Code:    types.CodeInvalidInput,
			Message: "empty upload",
		}
	}
	if !SupportedFormat(filename) {
		return &ValidationError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("unsupported audio format %q", filepath.Ext(filename)),
		}
	}
	if size > s.maxBytes {
		return &ValidationError{
			Code:    types.CodeFileTooLarge,
			Message: fmt.Sprintf("file too large (max %dMB)", s.maxBytes/(1024*1024)),
		}
	}
	return nil
}

// Stage validates the upload and writes it into a fresh workspace for jobID.
// On any failure the workspace is removed before returning.
func (s *Stager) Stage(jobID, filename string, data []byte) (string, error) {
	if err := s.Validate(filename, int64(len(data))); err != nil {
		return "", err
	}

	dir := s.WorkspaceDir(jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}

	path := filepath.Join(dir, "input"+strings.ToLower(filepath.Ext(filename)))
	if err := os.WriteFile(path, data, 0644); err != nil {
		s.Cleanup(jobID)
		return "", fmt.Errorf("write staged audio: %w", err)
	}
	return path, nil
}

// WorkspaceDir returns the workspace path owned by jobID.
func (s *Stager) WorkspaceDir(jobID string) string {
	return filepath.Join(s.tempRoot, "job_"+jobID)
}

// Cleanup removes the whole workspace for jobID.
func (s *Stager) Cleanup(jobID string) {
	dir := s.WorkspaceDir(jobID)
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn().Err(err).Str("dir", dir).Msg("workspace cleanup failed")
	}
}

// SweepOrphans removes job workspaces older than maxAge. Run at startup so
// workspaces left behind by a crash do not accumulate.
func (s *Stager) SweepOrphans(maxAge time.Duration) {
	entries, err := os.ReadDir(s.tempRoot)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "job_") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.tempRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn().Err(err).Str("dir", path).Msg("orphan sweep failed")
		} else {
			s.logger.Info().Str("dir", path).Msg("removed orphaned workspace")
		}
	}
}
