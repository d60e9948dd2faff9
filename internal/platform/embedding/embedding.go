// Package embedding selects the embedding provider named in configuration.
package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/lector/internal/config"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/gemini"
	"github.com/phrazzld/lector/internal/platform/openai"
	"github.com/phrazzld/lector/internal/task"
)

// New returns the embedder for cfg.Provider. An empty provider selects the
// OpenAI-compatible client.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *slog.Logger) (task.Embedder, error) {
	switch cfg.Provider {
	case "gemini":
		e, err := gemini.NewEmbedder(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "openai", "":
		e, err := openai.NewEmbedder(cfg, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrValidation, cfg.Provider)
	}
}
