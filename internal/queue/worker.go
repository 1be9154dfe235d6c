package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lyrix/internal/audio"
	"lyrix/internal/lyrics"
	"lyrix/internal/metrics"
	"lyrix/internal/staging"
	"lyrix/internal/storage"
	"lyrix/internal/transcription"
	"lyrix/internal/types"
)

// stageProgress maps each stage to the progress value reported when the
// pipeline enters it. Values only ever increase along the stage order.
var stageProgress = map[string]int{
	types.StageValidated:      5,
	types.StagePreprocessed:   20,
	types.StageSeparating:     25,
	types.StageSeparated:      45,
	types.StageTranscribing:   50,
	types.StageTranscribed:    85,
	types.StagePostprocessing: 90,
	types.StageDone:           100,
}

// PipelineConfig carries the processing options shared by all workers.
type PipelineConfig struct {
	Preprocess bool
	HighPass   bool
	Loudnorm   bool
	Separation bool
	Format     lyrics.Config
	JobTimeout time.Duration
}

// WorkerPool runs the extraction pipeline for claimed jobs. Workers share
// nothing but the store; each job's workspace belongs to exactly one worker.
type WorkerPool struct {
	store       Store
	count       int
	cfg         PipelineConfig
	stager      *staging.Stager
	normalizer  *audio.Normalizer
	isolator    audio.Isolator
	transcriber transcription.Transcriber
	local       *storage.LocalStorage
	archive     *storage.Archive
	drive       *storage.DriveClient
	logger      zerolog.Logger
	wg          sync.WaitGroup
}

// NewWorkerPool wires a pool of count workers over the given store.
// local, archive and drive are optional artifact sinks.
func NewWorkerPool(
	store Store,
	count int,
	cfg PipelineConfig,
	stager *staging.Stager,
	normalizer *audio.Normalizer,
	isolator audio.Isolator,
	transcriber transcription.Transcriber,
	local *storage.LocalStorage,
	archive *storage.Archive,
	drive *storage.DriveClient,
	logger zerolog.Logger,
) *WorkerPool {
	return &WorkerPool{
		store:       store,
		count:       count,
		cfg:         cfg,
		stager:      stager,
		normalizer:  normalizer,
		isolator:    isolator,
		transcriber: transcriber,
		local:       local,
		archive:     archive,
		drive:       drive,
		logger:      logger,
	}
}

// Start launches the workers. They stop when ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.logger.Info().Int("workers", wp.count).Msg("starting worker pool")
	for i := 0; i < wp.count; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Wait blocks until all workers have exited.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log := wp.logger.With().Int("worker", id).Logger()
	log.Info().Msg("worker started")

	for {
		job, err := wp.store.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("worker stopping")
				return
			}
			log.Error().Err(err).Msg("claim failed")
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("job", job.ID).
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("panic while processing job")
					wp.failJob(job, types.CodeInternal, fmt.Sprintf("worker panic: %v", r))
					wp.stager.Cleanup(job.ID)
				}
			}()
			wp.process(ctx, log, job)
		}()

		if depth, err := wp.store.Depth(ctx); err == nil {
			metrics.SetQueueDepth(depth)
		}
	}
}

// process runs the full pipeline for one job. Stages execute in strict
// order; a stage failure records a structured error and aborts the rest.
func (wp *WorkerPool) process(parent context.Context, log zerolog.Logger, job *Job) {
	ctx, cancel := context.WithTimeout(parent, wp.cfg.JobTimeout)
	defer cancel()
	defer wp.stager.Cleanup(job.ID)

	log.Info().Str("job", job.ID).Str("file", job.Filename).Msg("processing job")
	started := time.Now()

	job.State = types.StateRunning
	wp.setStage(job, types.StageValidated)

	audioPath := job.AudioPath

	if wp.cfg.Preprocess {
		stageStart := time.Now()
		normalized, err := wp.normalizer.Normalize(ctx, audioPath, audio.NormalizeOptions{
			HighPass: wp.cfg.HighPass,
			Loudnorm: wp.cfg.Loudnorm,
		})
		if err != nil {
			wp.failStage(ctx, job, types.CodePreprocessingFailed, "audio normalization failed", err)
			return
		}
		audioPath = normalized
		metrics.RecordStage("normalize", time.Since(stageStart))
	}
	wp.setStage(job, types.StagePreprocessed)

	if wp.cfg.Separation {
		audioPath = wp.separate(ctx, log, job, audioPath)
		if job.Terminal() {
			return
		}
	}

	wp.setStage(job, types.StageTranscribing)
	stageStart := time.Now()
	transcript, err := wp.transcriber.Transcribe(ctx, audioPath, job.Options.LanguageHint)
	if err != nil {
		wp.failStage(ctx, job, types.CodeExtractionFailed, "transcription failed", err)
		return
	}
	metrics.RecordStage("transcribe", time.Since(stageStart))
	wp.setStage(job, types.StageTranscribed)

	wp.setStage(job, types.StagePostprocessing)
	out := lyrics.Format(transcript.Segments, wp.cfg.Format)

	result := &types.Result{
		Lyrics:        out.Lyrics,
		RawTranscript: transcript.Text,
	}
	if job.Options.Timestamps == types.TimestampsWord {
		result.Words = out.Words
	}

	job.Meta.DurationSeconds = transcript.Duration
	job.Meta.Language = transcript.Language
	if job.Meta.Language == "" {
		job.Meta.Language = lyrics.DetectLanguage(out.Lyrics)
	}
	job.Meta.ProcessedAt = time.Now().UTC()

	wp.saveArtifacts(log, job, result)

	job.Result = result
	job.Error = nil
	job.State = types.StateDone
	wp.setStage(job, types.StageDone)

	metrics.RecordCompleted()
	log.Info().
		Str("job", job.ID).
		Dur("took", time.Since(started)).
		Float64("audio_seconds", transcript.Duration).
		Str("language", job.Meta.Language).
		Msg("job completed")
}

// separate runs the optional vocal isolation stage. Unavailability or a
// failed run degrades to the normalized audio instead of failing the job;
// only a pipeline timeout is fatal here.
func (wp *WorkerPool) separate(ctx context.Context, log zerolog.Logger, job *Job, audioPath string) string {
	if wp.isolator == nil || !wp.isolator.Available() {
		log.Warn().Str("job", job.ID).Msg("vocal isolation unavailable, continuing on full mix")
		return audioPath
	}

	wp.setStage(job, types.StageSeparating)
	stageStart := time.Now()
	vocals, err := wp.isolator.Isolate(ctx, audioPath)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			wp.failStage(ctx, job, types.CodeTimeout, "vocal isolation timed out", err)
			return audioPath
		}
		log.Warn().Err(err).Str("job", job.ID).Msg("vocal isolation failed, continuing on full mix")
		wp.setStage(job, types.StageSeparated)
		return audioPath
	}
	metrics.RecordStage("separate", time.Since(stageStart))
	job.Meta.SeparationUsed = true
	wp.setStage(job, types.StageSeparated)
	return vocals
}

// saveArtifacts persists the finished lyrics to the optional sinks. Sink
// failures are logged, not fatal: the authoritative result lives in the
// job store.
func (wp *WorkerPool) saveArtifacts(log zerolog.Logger, job *Job, result *types.Result) {
	var localPath string
	if wp.local != nil {
		path, err := wp.local.SaveLyrics(job.ID, job.Filename, result, job.Meta)
		if err != nil {
			log.Warn().Err(err).Str("job", job.ID).Msg("local artifact save failed")
		} else {
			localPath = path
		}
	}

	var driveURL string
	if wp.drive != nil {
		for attempt := 1; attempt <= 3; attempt++ {
			url, err := wp.drive.Upload(job.ID, job.Filename, result, job.Meta)
			if err == nil {
				driveURL = url
				break
			}
			log.Warn().Err(err).Int("attempt", attempt).Str("job", job.ID).Msg("drive upload failed")
			if attempt < 3 {
				time.Sleep(time.Duration(attempt*attempt) * time.Second)
			}
		}
	}

	if wp.archive != nil && localPath != "" {
		err := wp.archive.Save(storage.Entry{
			JobID:     job.ID,
			Filename:  job.Filename,
			Language:  job.Meta.Language,
			Duration:  job.Meta.DurationSeconds,
			WordCount: len(strings.Fields(result.Lyrics)),
			LocalPath: localPath,
			DriveURL:  driveURL,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			log.Warn().Err(err).Str("job", job.ID).Msg("archive save failed")
		}
	}
}

// setStage advances the stage marker and its progress value, keeping both
// monotone, and writes the snapshot through the store.
func (wp *WorkerPool) setStage(job *Job, stage string) {
	job.Stage = stage
	if p, ok := stageProgress[stage]; ok && p > job.Progress {
		job.Progress = p
	}
	// final updates must land even when the job context is already dead
	if err := wp.store.Update(context.Background(), job); err != nil {
		wp.logger.Error().Err(err).Str("job", job.ID).Msg("store update failed")
	}
}

// failStage records a structured terminal error on the job. A deadline on
// the job context overrides the stage's own code with timeout.
func (wp *WorkerPool) failStage(ctx context.Context, job *Job, code, msg string, cause error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = types.CodeTimeout
		msg = fmt.Sprintf("job exceeded processing timeout of %s", wp.cfg.JobTimeout)
	} else if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	wp.failJob(job, code, msg)
}

func (wp *WorkerPool) failJob(job *Job, code, msg string) {
	job.State = types.StateError
	job.Stage = types.StageError
	job.Result = nil
	job.Error = &types.JobError{Code: code, Message: msg}
	if err := wp.store.Update(context.Background(), job); err != nil {
		wp.logger.Error().Err(err).Str("job", job.ID).Msg("store update failed")
	}
	metrics.RecordFailed(code)
	wp.logger.Error().Str("job", job.ID).Str("code", code).Msg(msg)
}
