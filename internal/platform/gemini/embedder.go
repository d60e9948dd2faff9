package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/lector/internal/config"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/task"
	"google.golang.org/genai"
)

// ErrDimensionMismatch is returned when the API returns a vector of the wrong size.
var ErrDimensionMismatch = errors.New("embedding has unexpected dimensions")

// retrievalTaskType marks the embedded text as a document for later retrieval.
const retrievalTaskType = "RETRIEVAL_DOCUMENT"

// Embedder implements task.Embedder using the Gemini embedding API.
type Embedder struct {
	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the embedding model to use
	model string

	dimensions int
	logger     *slog.Logger
}

var _ task.Embedder = (*Embedder)(nil)

// NewEmbedder creates an Embedder with the provided configuration.
//
// Parameters:
//   - ctx: Context for client initialization
//   - cfg: Embedding configuration with API key, model and dimensions
//   - logger: A structured logger for operation logging
//
// Returns:
//   - A properly initialized Embedder or an error wrapping domain.ErrValidation
//     if the configuration is incomplete
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, logger *slog.Logger) (*Embedder, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", domain.ErrValidation)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", domain.ErrValidation)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive", domain.ErrValidation)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", domain.ErrValidation, err)
	}

	return &Embedder{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		logger:     logger.With(slog.String("component", "gemini_embedder")),
	}, nil
}

// Dimensions implements task.Embedder.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Embed implements task.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", domain.ErrValidation)
	}

	dims := int32(e.dimensions)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             retrievalTaskType,
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("failed to create embedding: empty response")
	}

	vec := resp.Embeddings[0].Values
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), e.dimensions)
	}

	e.logger.DebugContext(ctx, "created embedding", slog.Int("chars", len(text)))
	return vec, nil
}

// mapError wraps client errors, except rate limiting, in domain.ErrValidation.
func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
			return fmt.Errorf("failed to create embedding: %w: %w", domain.ErrValidation, err)
		}
	}
	return fmt.Errorf("failed to create embedding: %w", err)
}
