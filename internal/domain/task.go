package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskKind discriminates the job family of a queued task.
type TaskKind string

// Supported task kinds
const (
	TaskKindDocument TaskKind = "document"
	TaskKindSpeech   TaskKind = "speech"
)

// Valid reports whether k is a known task kind.
func (k TaskKind) Valid() bool {
	return k == TaskKindDocument || k == TaskKindSpeech
}

// TaskStatus is the status reported for a submitted task.
type TaskStatus string

// Possible task status values. TaskStatusQueued is never observable through
// the status resolver: queued and processing both surface as processing.
const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transitions are possible from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskRecord is the consumer-side bookkeeping row for a task. It is upserted
// as the task moves through processing and records the failure text.
type TaskRecord struct {
	TaskID       uuid.UUID  `json:"task_id"`
	OwnerID      uuid.UUID  `json:"owner_id"`
	Kind         TaskKind   `json:"kind"`
	DocumentID   *uuid.UUID `json:"document_id,omitempty"`
	Status       TaskStatus `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Validate checks if the TaskRecord has valid data.
func (r *TaskRecord) Validate() error {
	if r.TaskID == uuid.Nil || r.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidID)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidKind, r.Kind)
	}
	switch r.Status {
	case TaskStatusQueued, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
	default:
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidStatus, r.Status)
	}
	return nil
}
