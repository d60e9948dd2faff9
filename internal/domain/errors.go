package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when input or a domain entity fails validation.
	// It is surfaced synchronously to the submitting caller and is usually
	// wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrQueueUnavailable is returned when a task could not be published to the
	// work queue. The task id is not valid and the caller must resubmit.
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrTransportFailure marks a lost broker connection during consumption.
	// It is recovered locally by reconnecting and never reaches callers.
	ErrTransportFailure = errors.New("transport failure")

	// ErrBrokerUnreachable is returned when the consumer exhausts its
	// connection attempts. It is fatal for the worker process.
	ErrBrokerUnreachable = errors.New("broker unreachable")

	// ErrProcessingFailure wraps handler-level errors such as a corrupt PDF,
	// an embedding failure or a synthesis failure. These are terminal.
	ErrProcessingFailure = errors.New("processing failed")

	// ErrInvalidID is returned when an ID is malformed or nil.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidStatus is returned when a status value is not recognised.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidKind is returned for an unknown task kind.
	ErrInvalidKind = errors.New("invalid task kind")
)
