package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/store"
)

// Status is what a client sees when polling a task.
type Status struct {
	TaskID      uuid.UUID         `json:"task_id"`
	Status      domain.TaskStatus `json:"status"`
	Kind        domain.TaskKind   `json:"kind,omitempty"`
	ArtifactID  *uuid.UUID        `json:"artifact_id,omitempty"`
	Ref         string            `json:"ref,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Error       string            `json:"error,omitempty"`
	Progress    *Progress         `json:"progress,omitempty"`
}

// Resolver reports task status from persisted state. The existence of an
// artifact is the only signal for completion; queue position is never
// available, so queued and running tasks both report processing.
type Resolver struct {
	artifacts store.ArtifactStore
	tasks     store.TaskStore
	progress  ProgressTracker
	logger    *slog.Logger
}

// NewResolver creates a Resolver. A nil progress tracker disables progress.
func NewResolver(artifacts store.ArtifactStore, tasks store.TaskStore, progress ProgressTracker, logger *slog.Logger) (*Resolver, error) {
	if artifacts == nil || tasks == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if progress == nil {
		progress = NoopProgress{}
	}
	return &Resolver{
		artifacts: artifacts,
		tasks:     tasks,
		progress:  progress,
		logger:    logger.With(slog.String("component", "status_resolver")),
	}, nil
}

// GetStatus resolves the status of taskID for ownerID. Every lookup is scoped
// to the owner, so a task belonging to someone else is indistinguishable
// from a task that does not exist: both report processing.
func (r *Resolver) GetStatus(ctx context.Context, taskID, ownerID uuid.UUID) (*Status, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)
	status := &Status{TaskID: taskID, Status: domain.TaskStatusProcessing}

	if taskID == uuid.Nil || ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: task and owner ids are required", domain.ErrValidation)
	}

	// 1. Artifact present: completed
	artifact, err := r.artifacts.GetByTaskID(ctx, taskID, ownerID)
	switch {
	case err == nil:
		id := artifact.ID
		status.Status = domain.TaskStatusCompleted
		status.Kind = artifact.Kind
		status.ArtifactID = &id
		status.Ref = artifact.Ref
		status.ContentType = artifact.ContentType
		return status, nil
	case !store.IsNotFoundError(err):
		return nil, fmt.Errorf("failed to look up artifact: %w", err)
	}

	// 2. Failed record: failed
	record, err := r.tasks.GetByID(ctx, taskID, ownerID)
	switch {
	case store.IsNotFoundError(err):
		return status, nil
	case err != nil:
		return nil, fmt.Errorf("failed to look up task record: %w", err)
	}

	status.Kind = record.Kind
	if record.Status == domain.TaskStatusFailed {
		status.Status = domain.TaskStatusFailed
		status.Error = record.ErrorMessage
		return status, nil
	}

	// 3. Otherwise processing, with progress when known
	progress, ok, err := r.progress.Get(ctx, taskID)
	if err != nil {
		log.Debug("failed to read task progress", slog.String("error", err.Error()))
	} else if ok {
		status.Progress = progress
	}

	return status, nil
}
