package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Upsert implements store.TaskStore.Upsert
func (s *PostgresTaskStore) Upsert(ctx context.Context, record *domain.TaskRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := record.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (task_id, owner_id, kind, document_id, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (task_id) DO UPDATE
		SET status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
		WHERE tasks.owner_id = EXCLUDED.owner_id
	`

	var documentID uuid.NullUUID
	if record.DocumentID != nil {
		documentID = uuid.NullUUID{UUID: *record.DocumentID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, query,
		record.TaskID,
		record.OwnerID,
		record.Kind,
		documentID,
		record.Status,
		record.ErrorMessage,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to upsert task record",
			slog.String("error", err.Error()),
			slog.String("task_id", record.TaskID.String()),
			slog.String("status", string(record.Status)))
		return store.NewStoreError("task", "upsert", "failed to upsert task record", MapError(err))
	}

	// A conflicting row owned by someone else is left untouched.
	if err := CheckRowsAffected(result, store.ErrTaskNotFound); err != nil {
		log.Warn("task record belongs to another owner",
			slog.String("task_id", record.TaskID.String()))
		return err
	}
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.TaskRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT task_id, owner_id, kind, document_id, status, error_message, created_at, updated_at
		FROM tasks
		WHERE task_id = $1 AND owner_id = $2
	`

	var r domain.TaskRecord
	var kind, status string
	var documentID uuid.NullUUID
	err := s.db.QueryRowContext(ctx, query, taskID, ownerID).Scan(
		&r.TaskID,
		&r.OwnerID,
		&kind,
		&documentID,
		&status,
		&r.ErrorMessage,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task record",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, store.NewStoreError("task", "get", "failed to query task record", MapError(err))
	}

	r.Kind = domain.TaskKind(kind)
	r.Status = domain.TaskStatus(status)
	if documentID.Valid {
		id := documentID.UUID
		r.DocumentID = &id
	}
	return &r, nil
}
