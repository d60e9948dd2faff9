package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/redact"
	"github.com/phrazzld/lector/internal/store"
)

// Recorder persists the outcome of task processing: task records, document
// status and artifacts.
type Recorder struct {
	tasks     store.TaskStore
	documents store.DocumentStore
	artifacts store.ArtifactStore
	logger    *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(
	tasks store.TaskStore,
	documents store.DocumentStore,
	artifacts store.ArtifactStore,
	logger *slog.Logger,
) (*Recorder, error) {
	if tasks == nil || documents == nil || artifacts == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &Recorder{
		tasks:     tasks,
		documents: documents,
		artifacts: artifacts,
		logger:    logger.With(slog.String("component", "task_recorder")),
	}, nil
}

// Completed returns the artifact of a task that has already been completed,
// which happens when a message is redelivered after its result was stored.
func (r *Recorder) Completed(ctx context.Context, env *Envelope) (*domain.Artifact, bool, error) {
	artifact, err := r.artifacts.GetByTaskID(ctx, env.TaskID, env.OwnerID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to look up artifact: %w", err)
	}
	return artifact, true, nil
}

// Processing marks the task as being processed.
func (r *Recorder) Processing(ctx context.Context, env *Envelope) error {
	return r.upsert(ctx, env, domain.TaskStatusProcessing, "")
}

// Complete stores the artifact and marks the task, and the document it
// processed, as completed. The artifact write is the commit point: once it
// succeeds the task is completed whatever happens to the status updates.
func (r *Recorder) Complete(ctx context.Context, env *Envelope, artifact *domain.Artifact) (*domain.Artifact, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	if artifact == nil {
		return nil, fmt.Errorf("%w: handler returned no artifact", domain.ErrProcessingFailure)
	}
	if artifact.TaskID != env.TaskID || artifact.OwnerID != env.OwnerID {
		return nil, fmt.Errorf("%w: artifact does not belong to task", domain.ErrProcessingFailure)
	}

	stored, err := r.artifacts.Create(ctx, artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	if docID, ok := env.DocumentID(); ok {
		if err := r.documents.UpdateStatus(ctx, docID, env.OwnerID, domain.DocumentStatusCompleted, ""); err != nil {
			log.Error("failed to mark document completed",
				slog.String("document_id", docID.String()),
				slog.String("error", err.Error()))
		}
	}
	if err := r.upsert(ctx, env, domain.TaskStatusCompleted, ""); err != nil {
		log.Error("failed to mark task completed", slog.String("error", err.Error()))
	}

	return stored, nil
}

// Fail marks the task, and the document it processed, as failed with the
// text of cause. Credentials and queries are redacted from the stored text.
func (r *Recorder) Fail(ctx context.Context, env *Envelope, cause error) error {
	msg := redact.Error(cause)

	var errs []error
	if docID, ok := env.DocumentID(); ok {
		err := r.documents.UpdateStatus(ctx, docID, env.OwnerID, domain.DocumentStatusFailed, msg)
		// A document the task owner does not own is left alone.
		if err != nil && !store.IsNotFoundError(err) {
			errs = append(errs, fmt.Errorf("failed to mark document failed: %w", err))
		}
	}
	if err := r.upsert(ctx, env, domain.TaskStatusFailed, msg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Recorder) upsert(ctx context.Context, env *Envelope, status domain.TaskStatus, errMsg string) error {
	now := time.Now().UTC()
	record := &domain.TaskRecord{
		TaskID:       env.TaskID,
		OwnerID:      env.OwnerID,
		Kind:         env.Kind,
		Status:       status,
		ErrorMessage: errMsg,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if docID, ok := env.DocumentID(); ok {
		record.DocumentID = &docID
	}
	if err := r.tasks.Upsert(ctx, record); err != nil {
		return fmt.Errorf("failed to record task as %s: %w", status, err)
	}
	return nil
}
