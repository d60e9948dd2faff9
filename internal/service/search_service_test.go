package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/mocks"
	"github.com/phrazzld/lector/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axisEmbedder maps each known text onto a fixed 3-dimensional vector.
func axisEmbedder(vectors map[string][]float32) *mocks.Embedder {
	return &mocks.Embedder{
		Dims: 3,
		EmbedFn: func(ctx context.Context, text string) ([]float32, error) {
			if v, ok := vectors[text]; ok {
				return v, nil
			}
			return []float32{0, 0, 1}, nil
		},
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	vectors := map[string][]float32{
		"cats":   {1, 0, 0},
		"dogs":   {0, 1, 0},
		"kitten": {0.9, 0.1, 0},
	}

	setup := func(t *testing.T) (*fixture, *service.SearchService, *domain.Document, *domain.Document) {
		t.Helper()
		f := newFixture(t)
		embedder := axisEmbedder(vectors)

		store := func(owner uuid.UUID, name string, texts ...string) *domain.Document {
			doc, err := domain.NewDocument(owner, name)
			require.NoError(t, err)
			require.NoError(t, f.documents.Create(ctx, doc))
			embeddings := make([][]float32, len(texts))
			for i, text := range texts {
				embeddings[i] = vectors[text]
			}
			chunks, err := domain.NewChunks(doc.ID, texts, embeddings, 3)
			require.NoError(t, err)
			require.NoError(t, f.chunks.ReplaceForDocument(ctx, doc.ID, chunks))
			return doc
		}
		notes := store(alice, "notes.pdf", "cats", "dogs")
		paper := store(alice, "paper.pdf", "kitten")
		store(bob, "bob.pdf", "cats")

		svc, err := service.NewSearchService(f.chunks, embedder, testLogger())
		require.NoError(t, err)
		return f, svc, notes, paper
	}

	t.Run("nearest of the owner's chunks first", func(t *testing.T) {
		_, svc, notes, paper := setup(t)

		matches, err := svc.Search(ctx, alice, "  cats ", nil, 10)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, notes.ID, matches[0].DocumentID)
		assert.Equal(t, "cats", matches[0].Text)
		assert.InDelta(t, 0, matches[0].Distance, 1e-6)
		assert.Equal(t, paper.ID, matches[1].DocumentID)
		assert.Equal(t, "dogs", matches[2].Text)
		for _, m := range matches {
			assert.Contains(t, []uuid.UUID{notes.ID, paper.ID}, m.DocumentID)
		}
	})

	t.Run("limited to k", func(t *testing.T) {
		_, svc, _, _ := setup(t)

		matches, err := svc.Search(ctx, alice, "cats", nil, 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "cats", matches[0].Text)
	})

	t.Run("restricted to documents", func(t *testing.T) {
		_, svc, _, paper := setup(t)

		matches, err := svc.Search(ctx, alice, "cats", []uuid.UUID{paper.ID}, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "kitten", matches[0].Text)
	})

	t.Run("another owner's documents match nothing", func(t *testing.T) {
		_, svc, notes, _ := setup(t)

		matches, err := svc.Search(ctx, bob, "cats", []uuid.UUID{notes.ID}, 10)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, svc, _, _ := setup(t)

		tests := []struct {
			name  string
			owner uuid.UUID
			query string
			k     int
		}{
			{"nil owner", uuid.Nil, "cats", 5},
			{"blank query", alice, " \t", 5},
			{"zero k", alice, "cats", 0},
			{"k too large", alice, "cats", service.MaxSearchResults + 1},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.Search(ctx, tt.owner, tt.query, nil, tt.k)
				assert.ErrorIs(t, err, domain.ErrValidation)
			})
		}
	})

	t.Run("embedding failure", func(t *testing.T) {
		f := newFixture(t)
		embedder := &mocks.Embedder{Dims: 3, EmbedFn: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("rate limited")
		}}
		svc, err := service.NewSearchService(f.chunks, embedder, testLogger())
		require.NoError(t, err)

		_, err = svc.Search(ctx, alice, "cats", nil, 5)
		var svcErr *service.ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "search_chunks", svcErr.Operation)
		assert.ErrorContains(t, err, "rate limited")
	})

	t.Run("wrong embedding dimensions", func(t *testing.T) {
		f := newFixture(t)
		embedder := &mocks.Embedder{Dims: 3, EmbedFn: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1}, nil
		}}
		svc, err := service.NewSearchService(f.chunks, embedder, testLogger())
		require.NoError(t, err)

		_, err = svc.Search(ctx, alice, "cats", nil, 5)
		assert.ErrorIs(t, err, domain.ErrProcessingFailure)
	})

	t.Run("store failure", func(t *testing.T) {
		f, svc, _, _ := setup(t)
		f.chunks.Err = errors.New("connection reset")

		_, err := svc.Search(ctx, alice, "cats", nil, 5)
		assert.ErrorContains(t, err, "connection reset")
	})
}

func TestNewSearchServiceRequiresDependencies(t *testing.T) {
	f := newFixture(t)
	embedder := &mocks.Embedder{Dims: 3}

	_, err := service.NewSearchService(nil, embedder, testLogger())
	assert.Error(t, err)
	_, err = service.NewSearchService(f.chunks, nil, testLogger())
	assert.Error(t, err)
	_, err = service.NewSearchService(f.chunks, embedder, nil)
	assert.Error(t, err)
}
