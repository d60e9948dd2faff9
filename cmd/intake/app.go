package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/lector/internal/api"
	"github.com/phrazzld/lector/internal/config"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/embedding"
	"github.com/phrazzld/lector/internal/platform/objectstore"
	"github.com/phrazzld/lector/internal/platform/postgres"
	"github.com/phrazzld/lector/internal/platform/progress"
	"github.com/phrazzld/lector/internal/platform/rabbitmq"
	"github.com/phrazzld/lector/internal/service"
	"github.com/phrazzld/lector/internal/task"
)

// apiPrefix is where the intake routes are mounted.
const apiPrefix = "/api"

// application holds the intake process's dependencies.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	publisher *rabbitmq.Publisher
	progress  *progress.Tracker
	intake    api.IntakeConfig
}

// newApplication wires stores, the task producer, the status resolver and
// the services behind the HTTP routes.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{config: cfg, logger: logger, db: db}

	// Stores
	documents := postgres.NewPostgresDocumentStore(db, logger)
	chunks := postgres.NewPostgresChunkStore(db, logger)
	artifacts := postgres.NewPostgresArtifactStore(db, logger)
	tasks := postgres.NewPostgresTaskStore(db, logger)

	blobs, err := objectstore.New(cfg.Blob, logger)
	if err != nil {
		return nil, err
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	var tracker task.ProgressTracker = task.NoopProgress{}
	if cfg.Redis.URL != "" {
		app.progress, err = progress.Connect(ctx, cfg.Redis.URL, cfg.Redis.ProgressTTL, logger)
		if err != nil {
			return nil, err
		}
		tracker = app.progress
	}

	embedder, err := embedding.New(ctx, cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}

	// Tasks
	app.publisher = rabbitmq.NewPublisher(rabbitmq.NewDialer(cfg.Broker.URL, "lector-intake", logger), logger)
	producer, err := task.NewProducer(app.publisher, task.Routes{
		domain.TaskKindDocument: cfg.Broker.DocumentQueue,
		domain.TaskKindSpeech:   cfg.Broker.SpeechQueue,
	}, logger)
	if err != nil {
		return nil, err
	}
	resolver, err := task.NewResolver(artifacts, tasks, tracker, logger)
	if err != nil {
		return nil, err
	}

	// Services
	documentService, err := service.NewDocumentService(db, documents, chunks, blobs, producer, logger)
	if err != nil {
		return nil, err
	}
	searchService, err := service.NewSearchService(chunks, embedder, logger)
	if err != nil {
		return nil, err
	}
	speechService, err := service.NewSpeechService(documents, producer, logger)
	if err != nil {
		return nil, err
	}
	audioService, err := service.NewAudioService(resolver, blobs, logger)
	if err != nil {
		return nil, err
	}

	app.intake = api.IntakeConfig{
		Documents: documentService,
		Search:    searchService,
		Speech:    speechService,
		Audio:     audioService,
		Status:    resolver,
	}

	logger.Info("application initialized")
	return app, nil
}

// routes mounts the intake API under apiPrefix and the health endpoints at
// the root.
func routes(intake api.IntakeConfig, health api.HealthConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Mount(apiPrefix, api.NewIntakeRouter(intake, logger))
	r.Mount("/", api.NewHealthRouter(health, logger))
	return r
}

// Run serves HTTP until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(app.config.Intake.Port),
		Handler:           routes(app.intake, app.healthConfig(), app.logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       app.config.Intake.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("starting intake listener", slog.Int("port", app.config.Intake.Port))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("intake listener: %w", err)
	case <-ctx.Done():
	}

	app.logger.Info("shutting down intake listener")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Intake.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down intake listener: %w", err)
	}
	return nil
}

func (app *application) healthConfig() api.HealthConfig {
	checks := map[string]api.Check{
		"database": app.db.PingContext,
	}
	if app.progress != nil {
		checks["progress"] = app.progress.Ping
	}
	return api.HealthConfig{Checks: checks}
}

// cleanup releases connections held by the application.
func (app *application) cleanup() {
	if app.publisher != nil {
		if err := app.publisher.Close(); err != nil {
			app.logger.Error("error closing publisher", slog.String("error", err.Error()))
		}
	}
	if app.progress != nil {
		if err := app.progress.Close(); err != nil {
			app.logger.Error("error closing progress tracker", slog.String("error", err.Error()))
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}
	app.logger.Info("intake shutdown completed")
}
