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

	"github.com/phrazzld/lector/internal/api"
	"github.com/phrazzld/lector/internal/chunker"
	"github.com/phrazzld/lector/internal/config"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/embedding"
	"github.com/phrazzld/lector/internal/platform/objectstore"
	"github.com/phrazzld/lector/internal/platform/openai"
	"github.com/phrazzld/lector/internal/platform/pdf"
	"github.com/phrazzld/lector/internal/platform/postgres"
	"github.com/phrazzld/lector/internal/platform/progress"
	"github.com/phrazzld/lector/internal/platform/rabbitmq"
	"github.com/phrazzld/lector/internal/task"
	"golang.org/x/sync/errgroup"
)

// application holds the worker's dependencies.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	progress  *progress.Tracker
	consumers []*task.Consumer
}

// newApplication wires stores, collaborators, handlers and one consumer per queue.
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
	} else {
		logger.Info("progress tracking disabled")
	}

	// Collaborators
	textChunker, err := newChunker(cfg.Chunking)
	if err != nil {
		return nil, err
	}
	embedder, err := embedding.New(ctx, cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	synth, err := openai.NewSynthesizer(cfg.Speech, logger)
	if err != nil {
		return nil, err
	}

	// Handlers
	recorder, err := task.NewRecorder(tasks, documents, artifacts, logger)
	if err != nil {
		return nil, err
	}
	documentHandler, err := task.NewDocumentHandler(documents, chunks, blobs, pdf.NewExtractor(logger),
		textChunker, embedder, tracker, logger)
	if err != nil {
		return nil, err
	}
	speechHandler, err := task.NewSpeechHandler(documents, blobs, synth, logger)
	if err != nil {
		return nil, err
	}

	// Consumers
	dialer := rabbitmq.NewDialer(cfg.Broker.URL, "lector-worker", logger)
	for _, q := range []struct {
		name    string
		kind    domain.TaskKind
		handler task.Handler
	}{
		{cfg.Broker.DocumentQueue, domain.TaskKindDocument, documentHandler},
		{cfg.Broker.SpeechQueue, domain.TaskKindSpeech, speechHandler},
	} {
		consumer, err := task.NewConsumer(consumerConfig(cfg.Worker, q.name), dialer, recorder,
			map[domain.TaskKind]task.Handler{q.kind: q.handler}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer for %s: %w", q.name, err)
		}
		app.consumers = append(app.consumers, consumer)
	}

	logger.Info("application initialized", slog.Int("consumers", len(app.consumers)))
	return app, nil
}

// Run runs every consumer and the health listener until ctx is cancelled
// or a consumer fails fatally.
func (app *application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, c := range app.consumers {
		g.Go(func() error {
			if err := c.Run(ctx); err != nil {
				return fmt.Errorf("consumer %s: %w", c.Queue(), err)
			}
			return nil
		})
	}

	if app.config.Worker.HealthPort > 0 {
		server := &http.Server{
			Addr:              ":" + strconv.Itoa(app.config.Worker.HealthPort),
			Handler:           api.NewHealthRouter(app.healthConfig(), app.logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			app.logger.Info("starting health listener", slog.Int("port", app.config.Worker.HealthPort))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, domain.ErrBrokerUnreachable) {
		app.logger.Error("giving up on broker", slog.String("error", err.Error()))
	}
	return err
}

func (app *application) healthConfig() api.HealthConfig {
	checks := map[string]api.Check{
		"database": app.db.PingContext,
	}
	for _, c := range app.consumers {
		checks["consumer:"+c.Queue()] = func(context.Context) error {
			if s := c.State(); s != task.StateConnected {
				return fmt.Errorf("consumer is %s", s)
			}
			return nil
		}
	}
	if app.progress != nil {
		checks["progress"] = app.progress.Ping
	}

	return api.HealthConfig{
		Checks: checks,
		Stats: func() any {
			stats := make(map[string]task.ConsumerStats, len(app.consumers))
			for _, c := range app.consumers {
				stats[c.Queue()] = c.Stats()
			}
			return stats
		},
	}
}

// cleanup releases connections held by the application.
func (app *application) cleanup() {
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
	app.logger.Info("worker shutdown completed")
}

func consumerConfig(cfg config.WorkerConfig, queueName string) task.ConsumerConfig {
	cc := task.DefaultConsumerConfig(queueName)
	cc.Prefetch = cfg.Prefetch
	cc.ConnectAttempts = cfg.RetryCount
	cc.RetryDelay = cfg.RetryDelay
	cc.PollInterval = cfg.PollInterval
	cc.ShutdownTimeout = cfg.ShutdownTimeout
	return cc
}

func newChunker(cfg config.ChunkingConfig) (*chunker.Chunker, error) {
	var splitter chunker.SentenceSplitter = chunker.RuleSplitter{}
	if cfg.Splitter == "english" {
		english, err := chunker.NewEnglishSplitter()
		if err != nil {
			return nil, err
		}
		splitter = english
	}
	return chunker.New(cfg.MaxChars, cfg.OverlapChars, splitter)
}
