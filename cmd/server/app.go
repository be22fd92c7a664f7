package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/reelsong/reelsong-api/internal/config"
	"github.com/reelsong/reelsong-api/internal/extraction"
	"github.com/reelsong/reelsong-api/internal/platform/postgres"
	"github.com/reelsong/reelsong-api/internal/platform/redcache"
	"github.com/reelsong/reelsong-api/internal/recognition"
	"github.com/reelsong/reelsong-api/internal/service"
	"github.com/reelsong/reelsong-api/internal/task"
)

// application holds the wired dependency graph for the server.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	cache  *redcache.Cache

	taskRunner  *task.TaskRunner
	songService *service.SongService
}

// newApplication wires stores, collaborators, the pipeline and the service
// layer, and starts the task runner workers.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	if cfg.Cache.Enabled {
		cache, err := redcache.New(ctx, cfg.Cache, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.cache = cache
		logger.Info("Redis cache connected")
	}

	songStore := postgres.NewPostgresSongStore(db, logger)
	taskStore := postgres.NewPostgresTaskStore(db, logger)

	extractor := extraction.NewYtDlpExtractor(cfg.Extraction, logger)
	recognizer := recognition.NewShazamClient(cfg.Recognition, logger)

	// A nil *redcache.Cache must stay a nil interface, not a typed nil.
	var resultCache task.ResultCache
	var hotCache service.HotCache
	if app.cache != nil {
		resultCache = app.cache
		hotCache = app.cache
	}

	factory := task.NewIdentifyTaskFactory(
		cfg.Extraction.ClipSeconds,
		extractor,
		recognizer,
		songStore,
		taskStore,
		resultCache,
		logger,
	)

	app.taskRunner = task.NewTaskRunner(taskStore, factory, task.TaskRunnerConfig{
		WorkerCount: cfg.Task.WorkerCount,
		QueueSize:   cfg.Task.QueueSize,
		Retry: task.RetryPolicy{
			MaxAttempts: cfg.Task.MaxAttempts,
			Delay:       cfg.Task.RetryDelay(),
		},
		StuckTaskAge: cfg.Task.StuckTaskAge(),
	}, logger)
	if err := app.taskRunner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}

	app.songService = service.NewSongService(
		songStore,
		taskStore,
		factory,
		app.taskRunner,
		hotCache,
		logger,
	)

	return app, nil
}

// cleanup releases application resources in reverse dependency order.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.Error("Failed to close redis connection", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Failed to close database connection", "error", err)
		}
	}
}
