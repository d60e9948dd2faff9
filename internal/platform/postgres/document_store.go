package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/store"
)

// PostgresDocumentStore implements the store.DocumentStore interface
// using a PostgreSQL database as the storage backend.
type PostgresDocumentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresDocumentStore creates a new PostgreSQL implementation of the DocumentStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresDocumentStore(db store.DBTX, logger *slog.Logger) *PostgresDocumentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresDocumentStore{
		db:     db,
		logger: logger.With(slog.String("component", "document_store")),
	}
}

// Ensure PostgresDocumentStore implements store.DocumentStore interface
var _ store.DocumentStore = (*PostgresDocumentStore)(nil)

// Create implements store.DocumentStore.Create
func (s *PostgresDocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := doc.Validate(); err != nil {
		log.Warn("document validation failed during create",
			slog.String("error", err.Error()),
			slog.String("document_id", doc.ID.String()))
		return err
	}

	query := `
		INSERT INTO documents (id, owner_id, filename, blob_id, raw_text, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.OwnerID,
		doc.Filename,
		doc.BlobID,
		doc.RawText,
		doc.Status,
		doc.ErrorMessage,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("document already exists", slog.String("document_id", doc.ID.String()))
			return store.NewStoreError("document", "create", "duplicate document id", MapError(err))
		}
		log.Error("failed to create document",
			slog.String("error", err.Error()),
			slog.String("document_id", doc.ID.String()))
		return store.NewStoreError("document", "create", "failed to insert document", MapError(err))
	}

	log.Debug("document created",
		slog.String("document_id", doc.ID.String()),
		slog.String("owner_id", doc.OwnerID.String()))
	return nil
}

// GetByID implements store.DocumentStore.GetByID
// Documents owned by someone else are reported as not found.
func (s *PostgresDocumentStore) GetByID(ctx context.Context, id, ownerID uuid.UUID) (*domain.Document, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, owner_id, filename, blob_id, raw_text, status, error_message, created_at, updated_at
		FROM documents
		WHERE id = $1 AND owner_id = $2
	`

	var doc domain.Document
	var status string
	err := s.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Filename,
		&doc.BlobID,
		&doc.RawText,
		&status,
		&doc.ErrorMessage,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("document not found", slog.String("document_id", id.String()))
			return nil, store.ErrDocumentNotFound
		}
		log.Error("failed to get document",
			slog.String("error", err.Error()),
			slog.String("document_id", id.String()))
		return nil, store.NewStoreError("document", "get", "failed to query document", MapError(err))
	}

	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

// ListByOwner implements store.DocumentStore.ListByOwner
func (s *PostgresDocumentStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Document, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, filename, blob_id, raw_text, status, error_message, created_at, updated_at
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC, id
	`, ownerID)
	if err != nil {
		log.Error("failed to list documents",
			slog.String("error", err.Error()),
			slog.String("owner_id", ownerID.String()))
		return nil, store.NewStoreError("document", "list", "failed to query documents", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	docs := []domain.Document{}
	for rows.Next() {
		var doc domain.Document
		var status string
		if err := rows.Scan(
			&doc.ID,
			&doc.OwnerID,
			&doc.Filename,
			&doc.BlobID,
			&doc.RawText,
			&status,
			&doc.ErrorMessage,
			&doc.CreatedAt,
			&doc.UpdatedAt,
		); err != nil {
			return nil, store.NewStoreError("document", "list", "failed to scan document row", err)
		}
		doc.Status = domain.DocumentStatus(status)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("document", "list", "error iterating document rows", err)
	}
	return docs, nil
}

// SetBlobID implements store.DocumentStore.SetBlobID
func (s *PostgresDocumentStore) SetBlobID(ctx context.Context, id, ownerID uuid.UUID, blobID string) error {
	return s.update(ctx, id, "blob_id", `
		UPDATE documents SET blob_id = $1, updated_at = $2 WHERE id = $3 AND owner_id = $4
	`, blobID, time.Now().UTC(), id, ownerID)
}

// SetRawText implements store.DocumentStore.SetRawText
func (s *PostgresDocumentStore) SetRawText(ctx context.Context, id, ownerID uuid.UUID, text string) error {
	return s.update(ctx, id, "raw_text", `
		UPDATE documents SET raw_text = $1, updated_at = $2 WHERE id = $3 AND owner_id = $4
	`, text, time.Now().UTC(), id, ownerID)
}

// UpdateStatus implements store.DocumentStore.UpdateStatus
func (s *PostgresDocumentStore) UpdateStatus(
	ctx context.Context,
	id, ownerID uuid.UUID,
	status domain.DocumentStatus,
	errorMsg string,
) error {
	// Error text is kept only for failures.
	doc := domain.Document{ID: id}
	if err := doc.UpdateStatus(status, errorMsg); err != nil {
		return err
	}

	return s.update(ctx, id, "status", `
		UPDATE documents SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4 AND owner_id = $5
	`, doc.Status, doc.ErrorMessage, doc.UpdatedAt, id, ownerID)
}

func (s *PostgresDocumentStore) update(ctx context.Context, id uuid.UUID, field, query string, args ...any) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update document",
			slog.String("error", err.Error()),
			slog.String("field", field),
			slog.String("document_id", id.String()))
		return store.NewStoreError("document", "update", "failed to set "+field, MapError(err))
	}

	if err := CheckRowsAffected(result, store.ErrDocumentNotFound); err != nil {
		log.Debug("document update matched no rows",
			slog.String("field", field),
			slog.String("document_id", id.String()))
		return err
	}
	return nil
}

// WithTx implements store.DocumentStore.WithTx
func (s *PostgresDocumentStore) WithTx(tx *sql.Tx) store.DocumentStore {
	return &PostgresDocumentStore{
		db:     tx,
		logger: s.logger,
	}
}
