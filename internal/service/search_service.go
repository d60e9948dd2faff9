package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/store"
	"github.com/phrazzld/lector/internal/task"
)

// MaxSearchResults bounds the number of chunks a single search returns.
const MaxSearchResults = 50

// SearchService finds the stored chunks closest to a free-text query.
type SearchService struct {
	chunks   store.ChunkStore
	embedder task.Embedder
	logger   *slog.Logger
}

// NewSearchService creates a SearchService.
func NewSearchService(chunks store.ChunkStore, embedder task.Embedder, logger *slog.Logger) (*SearchService, error) {
	switch {
	case chunks == nil:
		return nil, NewServiceError("create_service", "chunk store cannot be nil", task.ErrNilStore)
	case embedder == nil:
		return nil, NewServiceError("create_service", "embedder cannot be nil", task.ErrNilEmbedder)
	case logger == nil:
		return nil, NewServiceError("create_service", "logger cannot be nil", task.ErrNilLogger)
	}
	return &SearchService{
		chunks:   chunks,
		embedder: embedder,
		logger:   logger.With(slog.String("component", "search_service")),
	}, nil
}

// Search embeds query and returns up to k of ownerID's chunks ordered by
// distance, nearest first. A non-empty documentIDs restricts the search
// to those documents.
func (s *SearchService) Search(
	ctx context.Context,
	ownerID uuid.UUID,
	query string,
	documentIDs []uuid.UUID,
	k int,
) ([]domain.ChunkMatch, error) {
	query = strings.TrimSpace(query)
	switch {
	case ownerID == uuid.Nil:
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrInvalidID)
	case query == "":
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyContent)
	case k < 1 || k > MaxSearchResults:
		return nil, fmt.Errorf("%w: k must be between 1 and %d", domain.ErrValidation, MaxSearchResults)
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, NewServiceError("search_chunks", "failed to embed query", err)
	}
	if len(vector) != s.embedder.Dimensions() {
		return nil, NewServiceError("search_chunks", "embedder returned the wrong dimensions",
			fmt.Errorf("%w: got %d values, want %d", domain.ErrProcessingFailure, len(vector), s.embedder.Dimensions()))
	}

	matches, err := s.chunks.Search(ctx, ownerID, documentIDs, vector, k)
	if err != nil {
		return nil, NewServiceError("search_chunks", "failed to search chunks", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("searched chunks",
		slog.String("owner_id", ownerID.String()),
		slog.Int("documents", len(documentIDs)),
		slog.Int("matches", len(matches)))
	return matches, nil
}
