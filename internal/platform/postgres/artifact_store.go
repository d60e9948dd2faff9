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

// PostgresArtifactStore implements store.ArtifactStore.
type PostgresArtifactStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresArtifactStore creates a PostgresArtifactStore.
func NewPostgresArtifactStore(db store.DBTX, logger *slog.Logger) *PostgresArtifactStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresArtifactStore{
		db:     db,
		logger: logger.With(slog.String("component", "artifact_store")),
	}
}

var _ store.ArtifactStore = (*PostgresArtifactStore)(nil)

// createArtifactQuery inserts an artifact unless its task already has one and
// returns whichever row is stored for the task. The outer SELECT does not see
// the row inserted by the CTE, so at most one branch yields a row; none does
// when the task's artifact belongs to another owner.
const createArtifactQuery = `
	WITH inserted AS (
		INSERT INTO artifacts (id, task_id, owner_id, kind, ref, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_id) DO NOTHING
		RETURNING id, task_id, owner_id, kind, ref, content_type, created_at
	)
	SELECT id, task_id, owner_id, kind, ref, content_type, created_at FROM inserted
	UNION ALL
	SELECT id, task_id, owner_id, kind, ref, content_type, created_at FROM artifacts WHERE task_id = $2 AND owner_id = $3
	LIMIT 1
`

// Create implements store.ArtifactStore.Create
func (s *PostgresArtifactStore) Create(ctx context.Context, artifact *domain.Artifact) (*domain.Artifact, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := artifact.Validate(); err != nil {
		return nil, err
	}

	stored, err := scanArtifact(s.db.QueryRowContext(ctx, createArtifactQuery,
		artifact.ID,
		artifact.TaskID,
		artifact.OwnerID,
		artifact.Kind,
		artifact.Ref,
		artifact.ContentType,
		artifact.CreatedAt,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("artifact belongs to another owner",
				slog.String("task_id", artifact.TaskID.String()))
			return nil, store.NewStoreError("artifact", "create", "task belongs to another owner", store.ErrDuplicate)
		}
		log.Error("failed to create artifact",
			slog.String("error", err.Error()),
			slog.String("task_id", artifact.TaskID.String()))
		return nil, store.NewStoreError("artifact", "create", "failed to insert artifact", MapError(err))
	}

	if stored.ID != artifact.ID {
		log.Info("artifact already exists for task",
			slog.String("task_id", artifact.TaskID.String()),
			slog.String("artifact_id", stored.ID.String()))
	}
	return stored, nil
}

// GetByTaskID implements store.ArtifactStore.GetByTaskID
func (s *PostgresArtifactStore) GetByTaskID(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.Artifact, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	artifact, err := scanArtifact(s.db.QueryRowContext(ctx, `
		SELECT id, task_id, owner_id, kind, ref, content_type, created_at
		FROM artifacts
		WHERE task_id = $1 AND owner_id = $2
	`, taskID, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrArtifactNotFound
		}
		log.Error("failed to get artifact",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, store.NewStoreError("artifact", "get", "failed to query artifact", MapError(err))
	}
	return artifact, nil
}

func scanArtifact(row *sql.Row) (*domain.Artifact, error) {
	var a domain.Artifact
	var kind string
	if err := row.Scan(&a.ID, &a.TaskID, &a.OwnerID, &kind, &a.Ref, &a.ContentType, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Kind = domain.TaskKind(kind)
	return &a, nil
}
