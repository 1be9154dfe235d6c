// Package cleanup runs the periodic retention sweeps: aged temp files and
// expired archive rows.
package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"lyrix/internal/storage"
)

// Scheduler deletes aged temporary files and purges expired archive rows
// on a fixed interval.
type Scheduler struct {
	tempDir    string
	interval   time.Duration
	tempMaxAge time.Duration
	archiveTTL time.Duration
	archive    *storage.Archive
	logger     zerolog.Logger
	stop       chan struct{}
}

// NewScheduler creates a scheduler. archive may be nil.
func NewScheduler(tempDir string, interval, tempMaxAge, archiveTTL time.Duration, archive *storage.Archive, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		tempDir:    tempDir,
		interval:   interval,
		tempMaxAge: tempMaxAge,
		archiveTTL: archiveTTL,
		archive:    archive,
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

// Start runs an immediate sweep and then sweeps on every interval tick.
func (s *Scheduler) Start() {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				ticker.Stop()
				return
			}
		}
	}()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("temp_max_age", s.tempMaxAge).
		Msg("cleanup scheduler started")
}

// Stop halts the periodic sweeps.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) sweep() {
	s.cleanTempFiles()

	if s.archive != nil && s.archiveTTL > 0 {
		cutoff := time.Now().UTC().Add(-s.archiveTTL)
		if n, err := s.archive.Purge(cutoff); err != nil {
			s.logger.Warn().Err(err).Msg("archive purge failed")
		} else if n > 0 {
			s.logger.Info().Int64("rows", n).Msg("purged expired archive rows")
		}
	}
}

// cleanTempFiles removes anything under the temp root older than the max
// age. Active job workspaces are younger than that by construction.
func (s *Scheduler) cleanTempFiles() {
	cutoff := time.Now().Add(-s.tempMaxAge)
	var deleted int

	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.tempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to delete temp entry")
		} else {
			deleted++
		}
	}
	if deleted > 0 {
		s.logger.Info().Int("entries", deleted).Msg("temp cleanup complete")
	}
}
