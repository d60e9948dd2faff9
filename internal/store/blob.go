package store

import "context"

// Metadata keys attached to stored blobs.
const (
	BlobMetaTaskID     = "task-id"
	BlobMetaOwnerID    = "owner-id"
	BlobMetaDocumentID = "document-id"
	BlobMetaKind       = "kind"
)

// BlobStore stores opaque byte payloads by id.
// Version: 1.0
type BlobStore interface {
	// Put stores data with the given content type and metadata and returns
	// the generated blob id.
	Put(ctx context.Context, data []byte, contentType string, metadata map[string]string) (string, error)

	// Get returns the payload stored under id.
	// Returns ErrBlobNotFound if no such blob exists.
	Get(ctx context.Context, id string) ([]byte, error)
}
