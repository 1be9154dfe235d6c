package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"lyrix/internal/audio"
	"lyrix/internal/cleanup"
	"lyrix/internal/config"
	"lyrix/internal/handlers"
	"lyrix/internal/logging"
	"lyrix/internal/lyrics"
	"lyrix/internal/metrics"
	"lyrix/internal/queue"
	"lyrix/internal/staging"
	"lyrix/internal/storage"
	"lyrix/internal/transcription"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	logger.Info().Str("config", configPath).Msg("starting lyrix")

	stager, err := staging.NewStager(cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB, logging.Component(logger, "staging"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize staging")
	}
	stager.SweepOrphans(time.Duration(cfg.Retention.TempMaxAgeHours) * time.Hour)

	retention := time.Duration(cfg.Retention.ResultTTLMinutes) * time.Minute

	var store queue.Store
	if cfg.Redis.URL != "" {
		store, err = queue.NewRedisStore(context.Background(), cfg.Redis.URL, retention)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		logger.Info().Msg("using redis job store")
	} else {
		store = queue.NewMemoryStore(100, retention)
		logger.Info().Msg("using in-memory job store")
	}
	defer store.Close()

	transcriber := transcription.NewWhisperTranscriber(
		cfg.Whisper.Model,
		cfg.Whisper.Device,
		cfg.Whisper.Precision,
		cfg.Whisper.Threads,
		logging.Component(logger, "whisper"),
	)

	var isolator audio.Isolator
	if cfg.Separation.Enabled {
		isolator = audio.NewDemucsIsolator(cfg.Whisper.Device)
	}

	localStorage := storage.NewLocalStorage(cfg.Storage.OutputDir)

	archive, err := storage.NewArchive(cfg.Storage.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open archive database")
	}
	defer archive.Close()

	// Drive export is optional; missing credentials mean local-only.
	var driveClient *storage.DriveClient
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err == nil {
		driveClient, err = storage.NewDriveClient(
			context.Background(),
			cfg.GoogleDrive.CredentialsFile,
			cfg.GoogleDrive.TokenFile,
			cfg.GoogleDrive.FolderName,
		)
		if err != nil {
			logger.Warn().Err(err).Msg("google drive unavailable, saving locally only")
			driveClient = nil
		} else {
			logger.Info().Msg("google drive export enabled")
		}
	}

	pool := queue.NewWorkerPool(
		store,
		cfg.Workers.Count,
		queue.PipelineConfig{
			Preprocess: cfg.Preprocess.Enabled,
			HighPass:   cfg.Preprocess.HighPass,
			Loudnorm:   cfg.Preprocess.Loudnorm,
			Separation: cfg.Separation.Enabled,
			Format: lyrics.Config{
				MaxLineChars:      cfg.Format.MaxLineChars,
				LineGapSeconds:    cfg.Format.LineGapSeconds,
				StanzaGapSeconds:  cfg.Format.StanzaGapSeconds,
				UppercaseBreak:    cfg.Format.UppercaseBreak,
				UppercaseMinChars: cfg.Format.UppercaseMinChars,
				UppercaseMinWords: cfg.Format.UppercaseMinWords,
				RepeatThreshold:   cfg.Format.RepeatThreshold,
			},
			JobTimeout: time.Duration(cfg.Limits.JobTimeoutSeconds) * time.Second,
		},
		stager,
		audio.NewNormalizer(),
		isolator,
		transcriber,
		localStorage,
		archive,
		driveClient,
		logging.Component(logger, "worker"),
	)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	pool.Start(workerCtx)

	scheduler := cleanup.NewScheduler(
		cfg.Storage.TempDir,
		time.Duration(cfg.Retention.CleanupIntervalMinutes)*time.Minute,
		time.Duration(cfg.Retention.TempMaxAgeHours)*time.Hour,
		time.Duration(cfg.Retention.ArchiveTTLDays)*24*time.Hour,
		archive,
		logging.Component(logger, "cleanup"),
	)
	scheduler.Start()
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit: (cfg.Limits.MaxFileSizeMB + 1) * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	httpLogger := logging.Component(logger, "http")
	submitHandler := handlers.NewSubmitHandler(store, stager, httpLogger)
	remoteHandler := handlers.NewRemoteHandler(store, stager, cfg.Limits.MaxFileSizeMB, httpLogger)
	statusHandler := handlers.NewStatusHandler(store, httpLogger)
	streamHandler := handlers.NewStreamHandler(store, httpLogger)
	archiveHandler := handlers.NewArchiveHandler(archive, httpLogger)

	app.Post("/v1/extract", submitHandler.Handle)
	app.Post("/v1/extract/url", remoteHandler.Handle)
	app.Get("/v1/extract/:id", statusHandler.Handle)
	app.Get("/ws/extract/:id", websocket.New(streamHandler.Handle))
	app.Get("/v1/archive", archiveHandler.List)
	app.Get("/v1/archive/:id/text", archiveHandler.Text)

	app.Get("/health", func(c *fiber.Ctx) error {
		depth, err := store.Depth(c.Context())
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		metrics.SetQueueDepth(depth)
		return c.JSON(fiber.Map{
			"status":      "healthy",
			"queue_depth": depth,
		})
	})

	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/plain; version=0.0.4")
		return c.SendString(metrics.Render())
	})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		logger.Info().Msg("shutting down gracefully")
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info().Str("addr", addr).Msg("server listening")
	if err := app.Listen(addr); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}

	stopWorkers()
	pool.Wait()
}
