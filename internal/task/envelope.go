package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
)

// Payload is the kind-specific body of an Envelope. It is implemented only by
// DocumentPayload and SpeechPayload.
type Payload interface {
	Kind() domain.TaskKind
	Validate() error
}

// DocumentPayload asks the worker to extract, chunk and embed a stored PDF.
type DocumentPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
	BlobID     string    `json:"blob_id"`
}

// Kind implements Payload.
func (DocumentPayload) Kind() domain.TaskKind { return domain.TaskKindDocument }

// Validate implements Payload.
func (p DocumentPayload) Validate() error {
	if p.DocumentID == uuid.Nil {
		return fmt.Errorf("%w: document_id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(p.BlobID) == "" {
		return fmt.Errorf("%w: blob_id is required", domain.ErrValidation)
	}
	return nil
}

// SpeechPayload asks the worker to synthesize audio from either inline text
// or the extracted text of one of the owner's documents.
type SpeechPayload struct {
	Text       string     `json:"text,omitempty"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
	// Voice overrides the configured default voice.
	Voice string `json:"voice,omitempty"`
}

// Kind implements Payload.
func (SpeechPayload) Kind() domain.TaskKind { return domain.TaskKindSpeech }

// Validate implements Payload.
func (p SpeechPayload) Validate() error {
	hasText := strings.TrimSpace(p.Text) != ""
	hasDoc := p.DocumentID != nil && *p.DocumentID != uuid.Nil

	switch {
	case hasText && hasDoc:
		return fmt.Errorf("%w: speech payload takes either text or document_id, not both", domain.ErrValidation)
	case !hasText && !hasDoc:
		return fmt.Errorf("%w: speech payload requires text or document_id", domain.ErrValidation)
	}
	return nil
}

// Envelope is the message exchanged between producers and consumers.
// TaskID is the correlation and idempotency key for the whole pipeline.
type Envelope struct {
	TaskID    uuid.UUID
	OwnerID   uuid.UUID
	Kind      domain.TaskKind
	Payload   Payload
	Timestamp time.Time
}

// wireEnvelope is the JSON form of an Envelope.
type wireEnvelope struct {
	TaskID    uuid.UUID       `json:"task_id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Kind      domain.TaskKind `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope builds and validates an envelope with a fresh task id.
func NewEnvelope(ownerID uuid.UUID, payload Payload) (*Envelope, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}
	env := &Envelope{
		TaskID:    uuid.New(),
		OwnerID:   ownerID,
		Kind:      payload.Kind(),
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// Validate checks the envelope header and its payload.
func (e *Envelope) Validate() error {
	if e.TaskID == uuid.Nil {
		return fmt.Errorf("%w: task_id is required", domain.ErrValidation)
	}
	if e.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: owner_id is required", domain.ErrValidation)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrInvalidKind, e.Kind)
	}
	if e.Payload == nil {
		return fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}
	if e.Payload.Kind() != e.Kind {
		return fmt.Errorf("%w: %s payload in %s envelope", domain.ErrValidation, e.Payload.Kind(), e.Kind)
	}
	return e.Payload.Validate()
}

// Document returns the payload of a document envelope.
func (e *Envelope) Document() (DocumentPayload, bool) {
	p, ok := e.Payload.(DocumentPayload)
	return p, ok
}

// Speech returns the payload of a speech envelope.
func (e *Envelope) Speech() (SpeechPayload, bool) {
	p, ok := e.Payload.(SpeechPayload)
	return p, ok
}

// DocumentID returns the document a task processes, if any. Speech tasks that
// read a document's text do not process it and return false.
func (e *Envelope) DocumentID() (uuid.UUID, bool) {
	if p, ok := e.Document(); ok {
		return p.DocumentID, true
	}
	return uuid.Nil, false
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Kind, err)
	}
	return json.Marshal(wireEnvelope{
		TaskID:    e.TaskID,
		OwnerID:   e.OwnerID,
		Kind:      e.Kind,
		Payload:   payload,
		Timestamp: e.Timestamp,
	})
}

// DecodeEnvelope parses a message body and validates it for its kind.
// Every error wraps domain.ErrValidation.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %w", domain.ErrValidation, err)
	}
	if len(wire.Payload) == 0 || string(wire.Payload) == "null" {
		return nil, fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}

	env := &Envelope{
		TaskID:    wire.TaskID,
		OwnerID:   wire.OwnerID,
		Kind:      wire.Kind,
		Timestamp: wire.Timestamp,
	}

	switch wire.Kind {
	case domain.TaskKindDocument:
		var p DocumentPayload
		if err := decodePayload(wire.Payload, &p); err != nil {
			return nil, err
		}
		env.Payload = p
	case domain.TaskKindSpeech:
		var p SpeechPayload
		if err := decodePayload(wire.Payload, &p); err != nil {
			return nil, err
		}
		env.Payload = p
	default:
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrInvalidKind, wire.Kind)
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

func decodePayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed payload: %w", domain.ErrValidation, err)
	}
	return nil
}
