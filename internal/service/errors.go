package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/store"
	"github.com/phrazzld/lector/internal/task"
)

var (
	// ErrNotReady indicates that a task has not produced its result yet.
	ErrNotReady = errors.New("task result not ready")

	// ErrTaskFailed indicates that a task finished without a result.
	ErrTaskFailed = errors.New("task failed")
)

// TaskSubmitter enqueues task payloads. It is satisfied by *task.Producer.
type TaskSubmitter interface {
	Submit(ctx context.Context, ownerID uuid.UUID, payload task.Payload) (uuid.UUID, error)
}

// StatusResolver reports task status. It is satisfied by *task.Resolver.
type StatusResolver interface {
	GetStatus(ctx context.Context, taskID, ownerID uuid.UUID) (*task.Status, error)
}

// ServiceError wraps unexpected errors with the failing operation.
type ServiceError struct {
	// Operation is the operation that failed (e.g. "upload_document")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err with operation context. Errors callers are
// expected to branch on are returned unchanged.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	for _, sentinel := range []error{
		domain.ErrValidation,
		domain.ErrQueueUnavailable,
		store.ErrNotFound,
		ErrNotReady,
		ErrTaskFailed,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
