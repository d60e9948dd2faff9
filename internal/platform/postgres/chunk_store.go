package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/store"
)

// PostgresChunkStore implements store.ChunkStore with embeddings stored in
// a pgvector column.
type PostgresChunkStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresChunkStore creates a PostgresChunkStore. It needs a *sql.DB
// rather than a store.DBTX because replacing a chunk set runs in its own
// transaction.
func NewPostgresChunkStore(db *sql.DB, logger *slog.Logger) *PostgresChunkStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresChunkStore{
		db:     db,
		logger: logger.With(slog.String("component", "chunk_store")),
	}
}

var _ store.ChunkStore = (*PostgresChunkStore)(nil)

// ReplaceForDocument implements store.ChunkStore.ReplaceForDocument
func (s *PostgresChunkStore) ReplaceForDocument(ctx context.Context, documentID uuid.UUID, chunks []domain.Chunk) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for i := range chunks {
		if chunks[i].DocumentID != documentID || chunks[i].ChunkIndex != i {
			return fmt.Errorf("%w: chunk %d does not belong at index %d of document %s",
				store.ErrInvalidEntity, chunks[i].ChunkIndex, i, documentID)
		}
	}

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", MapError(err))
		}

		if len(chunks) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (document_id, chunk_index, text, embedding, char_length, total_chunks, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare chunk insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, c := range chunks {
			_, err := stmt.ExecContext(ctx,
				c.DocumentID,
				c.ChunkIndex,
				c.Text,
				pgvector.NewVector(c.Embedding),
				c.CharLength,
				c.TotalChunks,
				c.CreatedAt,
			)
			if err != nil {
				if IsForeignKeyViolation(err) {
					return store.ErrDocumentNotFound
				}
				return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, MapError(err))
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to replace document chunks",
			slog.String("error", err.Error()),
			slog.String("document_id", documentID.String()))
		if store.IsNotFoundError(err) {
			return err
		}
		return store.NewStoreError("chunk", "replace", "failed to replace chunk set", err)
	}

	log.Debug("replaced document chunks",
		slog.String("document_id", documentID.String()),
		slog.Int("count", len(chunks)))
	return nil
}

// ListByDocument implements store.ChunkStore.ListByDocument
func (s *PostgresChunkStore) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.Chunk, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, chunk_index, text, embedding, char_length, total_chunks, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`, documentID)
	if err != nil {
		log.Error("failed to query chunks",
			slog.String("error", err.Error()),
			slog.String("document_id", documentID.String()))
		return nil, store.NewStoreError("chunk", "list", "failed to query chunks", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	chunks := []domain.Chunk{}
	for rows.Next() {
		var c domain.Chunk
		var embedding pgvector.Vector
		if err := rows.Scan(
			&c.DocumentID,
			&c.ChunkIndex,
			&c.Text,
			&embedding,
			&c.CharLength,
			&c.TotalChunks,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		c.Embedding = embedding.Slice()
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunk rows: %w", err)
	}

	return chunks, nil
}

// Search implements store.ChunkStore.Search using pgvector cosine distance.
func (s *PostgresChunkStore) Search(
	ctx context.Context,
	ownerID uuid.UUID,
	documentIDs []uuid.UUID,
	vector []float32,
	k int,
) ([]domain.ChunkMatch, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if k <= 0 {
		return []domain.ChunkMatch{}, nil
	}

	var query strings.Builder
	query.WriteString(`
		SELECT c.document_id, c.chunk_index, c.text, c.embedding, c.char_length, c.total_chunks, c.created_at,
			c.embedding <=> $1 AS distance
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.owner_id = $2 AND vector_dims(c.embedding) = $3`)
	args := []any{pgvector.NewVector(vector), ownerID, len(vector)}

	if len(documentIDs) > 0 {
		placeholders := make([]string, len(documentIDs))
		for i, id := range documentIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query.WriteString(" AND c.document_id IN (" + strings.Join(placeholders, ", ") + ")")
	}

	args = append(args, k)
	fmt.Fprintf(&query, `
		ORDER BY distance ASC, c.document_id, c.chunk_index
		LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		log.Error("failed to search chunks",
			slog.String("error", err.Error()),
			slog.String("owner_id", ownerID.String()))
		return nil, store.NewStoreError("chunk", "search", "failed to query nearest chunks", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	matches := []domain.ChunkMatch{}
	for rows.Next() {
		var m domain.ChunkMatch
		var embedding pgvector.Vector
		if err := rows.Scan(
			&m.DocumentID,
			&m.ChunkIndex,
			&m.Text,
			&embedding,
			&m.CharLength,
			&m.TotalChunks,
			&m.CreatedAt,
			&m.Distance,
		); err != nil {
			return nil, store.NewStoreError("chunk", "search", "failed to scan chunk row", err)
		}
		m.Embedding = embedding.Slice()
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("chunk", "search", "error iterating chunk rows", err)
	}

	log.Debug("searched chunks",
		slog.String("owner_id", ownerID.String()),
		slog.Int("documents", len(documentIDs)),
		slog.Int("matches", len(matches)))
	return matches, nil
}
