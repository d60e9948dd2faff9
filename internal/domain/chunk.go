package domain

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Chunk is one overlapping window of a document's text together with its
// embedding. Chunks are immutable; reprocessing a document replaces its
// whole chunk set.
type Chunk struct {
	DocumentID  uuid.UUID `json:"document_id"`
	ChunkIndex  int       `json:"chunk_index"`
	Text        string    `json:"text"`
	Embedding   []float32 `json:"embedding"`
	CharLength  int       `json:"char_length"`
	TotalChunks int       `json:"total_chunks"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewChunks builds the chunk set for a document from the ordered chunk texts
// and their embeddings. Indices are assigned densely from zero and every
// embedding must have exactly dims elements.
func NewChunks(documentID uuid.UUID, texts []string, embeddings [][]float32, dims int) ([]Chunk, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrEmptyDocumentID)
	}
	if len(texts) != len(embeddings) {
		return nil, fmt.Errorf("%w: %d chunk texts but %d embeddings",
			ErrValidation, len(texts), len(embeddings))
	}

	now := time.Now().UTC()
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		if len(embeddings[i]) != dims {
			return nil, fmt.Errorf("%w: chunk %d embedding has %d dimensions, want %d",
				ErrValidation, i, len(embeddings[i]), dims)
		}
		chunks[i] = Chunk{
			DocumentID:  documentID,
			ChunkIndex:  i,
			Text:        text,
			Embedding:   embeddings[i],
			CharLength:  utf8.RuneCountInString(text),
			TotalChunks: len(texts),
			CreatedAt:   now,
		}
	}
	return chunks, nil
}

// ChunkMatch is a chunk returned by a similarity search. Distance is the
// cosine distance between the chunk embedding and the query vector; smaller
// is closer.
type ChunkMatch struct {
	Chunk
	Distance float64 `json:"distance"`
}
