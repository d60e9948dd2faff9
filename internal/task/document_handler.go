package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/store"
)

// DocumentHandler extracts, chunks and embeds uploaded documents.
type DocumentHandler struct {
	documents store.DocumentStore
	chunks    store.ChunkStore
	blobs     store.BlobStore
	extractor TextExtractor
	chunker   TextChunker
	embedder  Embedder
	progress  ProgressTracker
	logger    *slog.Logger
}

// NewDocumentHandler creates a DocumentHandler. A nil progress tracker
// disables progress reporting.
func NewDocumentHandler(
	documents store.DocumentStore,
	chunks store.ChunkStore,
	blobs store.BlobStore,
	extractor TextExtractor,
	chunker TextChunker,
	embedder Embedder,
	progress ProgressTracker,
	logger *slog.Logger,
) (*DocumentHandler, error) {
	if documents == nil || chunks == nil {
		return nil, ErrNilStore
	}
	if blobs == nil {
		return nil, ErrNilBlobStore
	}
	if extractor == nil {
		return nil, ErrNilExtractor
	}
	if chunker == nil {
		return nil, ErrNilChunker
	}
	if embedder == nil {
		return nil, ErrNilEmbedder
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if progress == nil {
		progress = NoopProgress{}
	}

	return &DocumentHandler{
		documents: documents,
		chunks:    chunks,
		blobs:     blobs,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		progress:  progress,
		logger:    logger.With(slog.String("component", "document_handler")),
	}, nil
}

// Handle implements Handler. Either the complete chunk set of the document
// is stored or none of it is.
func (h *DocumentHandler) Handle(ctx context.Context, env *Envelope) (*domain.Artifact, error) {
	log := logger.FromContextOrDefault(ctx, h.logger)

	payload, ok := env.Document()
	if !ok {
		return nil, fmt.Errorf("%w: %s envelope sent to document handler", domain.ErrProcessingFailure, env.Kind)
	}

	// 1. Load the document, scoped to the task owner
	doc, err := h.documents.GetByID(ctx, payload.DocumentID, env.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	// 2. Fetch and extract the file recorded on the document. A message
	// naming any other blob is rejected.
	if doc.BlobID == "" {
		return nil, fmt.Errorf("%w: document %s has no stored file", domain.ErrProcessingFailure, doc.ID)
	}
	if payload.BlobID != doc.BlobID {
		return nil, fmt.Errorf("%w: blob %q does not belong to document %s",
			domain.ErrProcessingFailure, payload.BlobID, doc.ID)
	}
	data, err := h.blobs.Get(ctx, doc.BlobID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document file: %w", err)
	}

	text, err := h.extractor.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}
	log.Info("extracted document text",
		slog.String("document_id", doc.ID.String()),
		slog.Int("bytes", len(data)),
		slog.Int("text_length", len(text)))

	if err := h.documents.SetRawText(ctx, doc.ID, env.OwnerID, text); err != nil {
		return nil, fmt.Errorf("failed to store extracted text: %w", err)
	}

	// 3. Chunk
	texts := h.chunker.Chunk(text)
	if len(texts) == 0 {
		return nil, ErrEmptyDocument
	}

	// 4. Embed every chunk before anything is written
	if err := h.progress.Start(ctx, env.TaskID, len(texts)); err != nil {
		log.Warn("failed to record progress", slog.String("error", err.Error()))
	}

	dims := h.embedder.Dimensions()
	vectors := make([][]float32, len(texts))
	for i, chunkText := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("embedding interrupted: %w", err)
		}

		vec, err := h.embedder.Embed(ctx, chunkText)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %d of %d: %w", i, len(texts), err)
		}
		if len(vec) != dims {
			return nil, fmt.Errorf("%w: chunk %d embedding has %d dimensions, want %d",
				domain.ErrProcessingFailure, i, len(vec), dims)
		}
		vectors[i] = vec

		if err := h.progress.Advance(ctx, env.TaskID, i+1); err != nil {
			log.Debug("failed to record progress", slog.String("error", err.Error()))
		}
	}

	chunks, err := domain.NewChunks(doc.ID, texts, vectors, dims)
	if err != nil {
		return nil, fmt.Errorf("failed to build chunks: %w", err)
	}

	// 5. Replace any chunks left by an earlier run
	if err := h.chunks.ReplaceForDocument(ctx, doc.ID, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	log.Info("document processed",
		slog.String("document_id", doc.ID.String()),
		slog.Int("chunks", len(chunks)))

	return domain.NewArtifact(env.TaskID, env.OwnerID, domain.TaskKindDocument, doc.ID.String(), "")
}
