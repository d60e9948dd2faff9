package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/lector/internal/config"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/task"
	openai "github.com/sashabaranov/go-openai"
)

// Embedder implements task.Embedder with the embeddings endpoint.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	logger     *slog.Logger
}

var _ task.Embedder = (*Embedder)(nil)

// NewEmbedder creates an Embedder from the embedding configuration.
func NewEmbedder(cfg config.EmbeddingConfig, logger *slog.Logger) (*Embedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is required", domain.ErrValidation)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Embedder{
		client:     newClient(cfg.APIKey, cfg.BaseURL),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		logger:     logger.With(slog.String("component", "openai_embedder")),
	}, nil
}

// Dimensions implements task.Embedder.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Embed implements task.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", domain.ErrValidation)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      e.model,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, mapError("failed to create embedding", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("failed to create embedding: empty response")
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), e.dimensions)
	}

	e.logger.Debug("created embedding",
		slog.Int("chars", len(text)),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens))
	return vec, nil
}
