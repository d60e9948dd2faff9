package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
)

// DocumentStore defines the interface for document metadata persistence.
// Version: 1.0
type DocumentStore interface {
	// Create saves a new document.
	Create(ctx context.Context, doc *domain.Document) error

	// GetByID retrieves a document scoped to its owner.
	// Returns ErrDocumentNotFound if it does not exist or has another owner.
	GetByID(ctx context.Context, id, ownerID uuid.UUID) (*domain.Document, error)

	// ListByOwner returns the documents of ownerID, newest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Document, error)

	// SetBlobID records where the uploaded file was stored.
	// Every write is scoped to the owner: a document owned by someone else
	// is reported as ErrDocumentNotFound and left untouched.
	SetBlobID(ctx context.Context, id, ownerID uuid.UUID, blobID string) error

	// SetRawText stores the text extracted from the document.
	SetRawText(ctx context.Context, id, ownerID uuid.UUID, text string) error

	// UpdateStatus sets the document status and error text.
	// Returns ErrDocumentNotFound if the document does not exist for ownerID.
	UpdateStatus(ctx context.Context, id, ownerID uuid.UUID, status domain.DocumentStatus, errorMsg string) error

	// WithTx returns a DocumentStore bound to the provided transaction.
	WithTx(tx *sql.Tx) DocumentStore
}

// ChunkStore defines the interface for chunk persistence.
// Version: 1.0
type ChunkStore interface {
	// ReplaceForDocument atomically deletes any chunks stored for documentID
	// and inserts chunks in their place. Re-running it with the same input
	// leaves exactly one copy of each chunk.
	ReplaceForDocument(ctx context.Context, documentID uuid.UUID, chunks []domain.Chunk) error

	// ListByDocument returns the chunks of a document ordered by chunk index.
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.Chunk, error)

	// Search returns the k chunks closest to vector among the documents of
	// ownerID, nearest first. A non-empty documentIDs restricts the search
	// to those documents; ids owned by someone else match nothing.
	Search(ctx context.Context, ownerID uuid.UUID, documentIDs []uuid.UUID, vector []float32, k int) ([]domain.ChunkMatch, error)
}

// ArtifactStore defines the interface for task result persistence.
// Version: 1.0
type ArtifactStore interface {
	// Create stores an artifact. Creating a second artifact for the same task
	// id is a no-op returning the existing artifact.
	Create(ctx context.Context, artifact *domain.Artifact) (*domain.Artifact, error)

	// GetByTaskID returns the artifact for taskID scoped to ownerID.
	// Returns ErrArtifactNotFound if none exists for that owner.
	GetByTaskID(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.Artifact, error)
}

// TaskStore defines the interface for consumer-side task records.
// Version: 1.0
type TaskStore interface {
	// Upsert inserts the record or updates status and error text of an
	// existing record with the same task id.
	Upsert(ctx context.Context, record *domain.TaskRecord) error

	// GetByID returns the record for taskID scoped to ownerID.
	// Returns ErrTaskNotFound if none exists for that owner.
	GetByID(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.TaskRecord, error)
}
