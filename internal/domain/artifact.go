package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Artifact is the terminal result of a successfully processed task. At most
// one exists per task id and its existence is what makes the task completed.
//
// Ref points at the result: the document id for document tasks, the audio
// blob id for speech tasks.
type Artifact struct {
	ID          uuid.UUID `json:"artifact_id"`
	TaskID      uuid.UUID `json:"task_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Kind        TaskKind  `json:"kind"`
	Ref         string    `json:"ref"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewArtifact creates an Artifact for the given task.
func NewArtifact(taskID, ownerID uuid.UUID, kind TaskKind, ref, contentType string) (*Artifact, error) {
	a := &Artifact{
		ID:          uuid.New(),
		TaskID:      taskID,
		OwnerID:     ownerID,
		Kind:        kind,
		Ref:         ref,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks if the Artifact has valid data.
func (a *Artifact) Validate() error {
	if a.ID == uuid.Nil || a.TaskID == uuid.Nil || a.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidID)
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidKind, a.Kind)
	}
	if a.Ref == "" {
		return fmt.Errorf("%w: artifact ref cannot be empty", ErrValidation)
	}
	return nil
}
