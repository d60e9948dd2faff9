// Command worker consumes document and speech tasks from the broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/joho/godotenv"
	"github.com/phrazzld/lector/internal/config"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/platform/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("worker exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string) error {
	// A missing .env file is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Worker.LogLevel)
	log.Info("worker configuration loaded",
		slog.String("log_level", cfg.Worker.LogLevel),
		slog.Int("prefetch", cfg.Worker.Prefetch),
		slog.String("document_queue", cfg.Broker.DocumentQueue),
		slog.String("speech_queue", cfg.Broker.SpeechQueue),
		slog.String("embedding_provider", cfg.Embedding.Provider))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, cfg, log, db)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer app.cleanup()

	return app.Run(ctx)
}
