package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/store"
	"github.com/phrazzld/lector/internal/task"
)

// SpeechService accepts text-to-speech requests.
type SpeechService struct {
	documents store.DocumentStore
	tasks     TaskSubmitter
	logger    *slog.Logger
}

// NewSpeechService creates a SpeechService.
func NewSpeechService(documents store.DocumentStore, tasks TaskSubmitter, logger *slog.Logger) (*SpeechService, error) {
	switch {
	case documents == nil:
		return nil, NewServiceError("create_service", "document store cannot be nil", task.ErrNilStore)
	case tasks == nil:
		return nil, NewServiceError("create_service", "task submitter cannot be nil", task.ErrNilPublisher)
	case logger == nil:
		return nil, NewServiceError("create_service", "logger cannot be nil", task.ErrNilLogger)
	}
	return &SpeechService{
		documents: documents,
		tasks:     tasks,
		logger:    logger.With(slog.String("component", "speech_service")),
	}, nil
}

// Submit enqueues speech synthesis of either text or the extracted text of
// documentID, which must belong to ownerID. voice may be empty.
func (s *SpeechService) Submit(ctx context.Context, ownerID uuid.UUID, text string, documentID *uuid.UUID, voice string) (uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	payload := task.SpeechPayload{Text: text, DocumentID: documentID, Voice: voice}
	if err := payload.Validate(); err != nil {
		return uuid.Nil, err
	}

	if documentID != nil {
		doc, err := s.documents.GetByID(ctx, *documentID, ownerID)
		if err != nil {
			return uuid.Nil, NewServiceError("submit_speech", "failed to load document", err)
		}
		if strings.TrimSpace(doc.RawText) == "" {
			return uuid.Nil, fmt.Errorf("%w: document %s has no extracted text yet", domain.ErrValidation, doc.ID)
		}
	}

	taskID, err := s.tasks.Submit(ctx, ownerID, payload)
	if err != nil {
		return uuid.Nil, NewServiceError("submit_speech", "failed to enqueue speech", err)
	}

	log.Info("speech request accepted", slog.String("task_id", taskID.String()))
	return taskID, nil
}
