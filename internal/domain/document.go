package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus represents the processing state of a document
type DocumentStatus string

// Possible document status values
const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Validation errors for Document
var (
	ErrEmptyDocumentID      = errors.New("document ID cannot be empty")
	ErrEmptyDocumentOwnerID = errors.New("document owner ID cannot be empty")
	ErrEmptyDocumentBlobID  = errors.New("document blob ID cannot be empty")
	ErrEmptyFilename        = errors.New("document filename cannot be empty")
)

// Document is an uploaded PDF owned by a user. The pipeline populates its
// RawText and moves it from processing to completed or failed.
type Document struct {
	ID           uuid.UUID      `json:"id"`
	OwnerID      uuid.UUID      `json:"owner_id"`
	Filename     string         `json:"filename"`
	BlobID       string         `json:"blob_id"`
	RawText      string         `json:"raw_text"`
	Status       DocumentStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewDocument creates a Document in the processing state. The blob id is
// assigned separately once the file has been stored.
func NewDocument(ownerID uuid.UUID, filename string) (*Document, error) {
	now := time.Now().UTC()
	doc := &Document{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Filename:  filename,
		Status:    DocumentStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return doc, nil
}

// Validate checks if the Document has valid data.
func (d *Document) Validate() error {
	if d.ID == uuid.Nil {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyDocumentID)
	}
	if d.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyDocumentOwnerID)
	}
	if d.Filename == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyFilename)
	}
	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidStatus, d.Status)
	}
	return nil
}

// UpdateStatus moves the document to status, recording errMsg for failures.
func (d *Document) UpdateStatus(status DocumentStatus, errMsg string) error {
	if !isValidDocumentStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	d.Status = status
	d.ErrorMessage = ""
	if status == DocumentStatusFailed {
		d.ErrorMessage = errMsg
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func isValidDocumentStatus(status DocumentStatus) bool {
	switch status {
	case DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed:
		return true
	default:
		return false
	}
}
