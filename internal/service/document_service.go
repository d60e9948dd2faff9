package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/store"
	"github.com/phrazzld/lector/internal/task"
)

// MaxUploadBytes bounds the size of an uploaded document.
const MaxUploadBytes = 50 << 20

var pdfMagic = []byte("%PDF-")

// Upload is the result of accepting a document.
type Upload struct {
	Document *domain.Document `json:"document"`
	TaskID   uuid.UUID        `json:"task_id"`
}

// DocumentService accepts PDF uploads and exposes their chunks.
type DocumentService struct {
	db        store.TxBeginner
	documents store.DocumentStore
	chunks    store.ChunkStore
	blobs     store.BlobStore
	tasks     TaskSubmitter
	logger    *slog.Logger
}

// NewDocumentService creates a DocumentService.
// It returns an error if any of the required dependencies are nil.
func NewDocumentService(
	db store.TxBeginner,
	documents store.DocumentStore,
	chunks store.ChunkStore,
	blobs store.BlobStore,
	tasks TaskSubmitter,
	logger *slog.Logger,
) (*DocumentService, error) {
	switch {
	case db == nil:
		return nil, NewServiceError("create_service", "database cannot be nil", task.ErrNilStore)
	case documents == nil || chunks == nil:
		return nil, NewServiceError("create_service", "stores cannot be nil", task.ErrNilStore)
	case blobs == nil:
		return nil, NewServiceError("create_service", "blob store cannot be nil", task.ErrNilBlobStore)
	case tasks == nil:
		return nil, NewServiceError("create_service", "task submitter cannot be nil", task.ErrNilPublisher)
	case logger == nil:
		return nil, NewServiceError("create_service", "logger cannot be nil", task.ErrNilLogger)
	}

	return &DocumentService{
		db:        db,
		documents: documents,
		chunks:    chunks,
		blobs:     blobs,
		tasks:     tasks,
		logger:    logger.With(slog.String("component", "document_service")),
	}, nil
}

// Upload stores a PDF for ownerID and enqueues it for chunking and
// embedding. The document stays in the processing state until the worker
// finishes; if the enqueue fails it is marked failed and the error wraps
// domain.ErrQueueUnavailable.
func (s *DocumentService) Upload(ctx context.Context, ownerID uuid.UUID, filename string, data []byte) (*Upload, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := validateUpload(ownerID, filename, data); err != nil {
		return nil, err
	}

	doc, err := domain.NewDocument(ownerID, filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	// The row and its blob id become visible together or not at all.
	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		documents := s.documents.WithTx(tx)
		if err := documents.Create(ctx, doc); err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		blobID, err := s.blobs.Put(ctx, data, "application/pdf", map[string]string{
			store.BlobMetaOwnerID:    ownerID.String(),
			store.BlobMetaDocumentID: doc.ID.String(),
			store.BlobMetaKind:       string(domain.TaskKindDocument),
		})
		if err != nil {
			return fmt.Errorf("failed to store file: %w", err)
		}
		if err := documents.SetBlobID(ctx, doc.ID, ownerID, blobID); err != nil {
			return fmt.Errorf("failed to record blob id: %w", err)
		}
		doc.BlobID = blobID
		return nil
	})
	if err != nil {
		log.Error("failed to store document",
			slog.String("document_id", doc.ID.String()),
			slog.String("error", err.Error()))
		return nil, NewServiceError("upload_document", "failed to store document", err)
	}

	taskID, err := s.tasks.Submit(ctx, ownerID, task.DocumentPayload{DocumentID: doc.ID, BlobID: doc.BlobID})
	if err != nil {
		s.markFailed(ctx, doc, "failed to enqueue document")
		return nil, NewServiceError("upload_document", "failed to enqueue document", err)
	}

	log.Info("document accepted",
		slog.String("document_id", doc.ID.String()),
		slog.String("task_id", taskID.String()),
		slog.Int("bytes", len(data)))

	return &Upload{Document: doc, TaskID: taskID}, nil
}

// List returns ownerID's documents, newest first.
func (s *DocumentService) List(ctx context.Context, ownerID uuid.UUID) ([]domain.Document, error) {
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrInvalidID)
	}
	docs, err := s.documents.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, NewServiceError("list_documents", "failed to list documents", err)
	}
	return docs, nil
}

// Chunks returns the chunks of one of ownerID's documents in index order.
func (s *DocumentService) Chunks(ctx context.Context, ownerID, documentID uuid.UUID) ([]domain.Chunk, error) {
	if _, err := s.documents.GetByID(ctx, documentID, ownerID); err != nil {
		return nil, NewServiceError("list_chunks", "failed to load document", err)
	}
	chunks, err := s.chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, NewServiceError("list_chunks", "failed to list chunks", err)
	}
	return chunks, nil
}

func (s *DocumentService) markFailed(ctx context.Context, doc *domain.Document, reason string) {
	if err := s.documents.UpdateStatus(ctx, doc.ID, doc.OwnerID, domain.DocumentStatusFailed, reason); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to mark document failed",
			slog.String("document_id", doc.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	_ = doc.UpdateStatus(domain.DocumentStatusFailed, reason)
}

func validateUpload(ownerID uuid.UUID, filename string, data []byte) error {
	switch {
	case ownerID == uuid.Nil:
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrInvalidID)
	case !strings.EqualFold(filepath.Ext(filename), ".pdf"):
		return fmt.Errorf("%w: only .pdf files are accepted", domain.ErrValidation)
	case len(data) == 0:
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyContent)
	case len(data) > MaxUploadBytes:
		return fmt.Errorf("%w: file exceeds %d bytes", domain.ErrValidation, MaxUploadBytes)
	case !bytes.HasPrefix(data, pdfMagic):
		return fmt.Errorf("%w: file is not a PDF", domain.ErrValidation)
	}
	return nil
}
