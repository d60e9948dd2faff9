package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/store"
	"github.com/phrazzld/lector/internal/task"
)

// AudioService serves the audio produced by completed speech tasks.
type AudioService struct {
	status StatusResolver
	blobs  store.BlobStore
	logger *slog.Logger
}

// NewAudioService creates an AudioService.
func NewAudioService(status StatusResolver, blobs store.BlobStore, logger *slog.Logger) (*AudioService, error) {
	switch {
	case status == nil:
		return nil, NewServiceError("create_service", "status resolver cannot be nil", task.ErrNilStore)
	case blobs == nil:
		return nil, NewServiceError("create_service", "blob store cannot be nil", task.ErrNilBlobStore)
	case logger == nil:
		return nil, NewServiceError("create_service", "logger cannot be nil", task.ErrNilLogger)
	}
	return &AudioService{
		status: status,
		blobs:  blobs,
		logger: logger.With(slog.String("component", "audio_service")),
	}, nil
}

// Fetch returns the synthesized audio of a completed speech task.
// Processing tasks, including unknown and foreign ones, yield ErrNotReady;
// failed tasks yield ErrTaskFailed.
func (s *AudioService) Fetch(ctx context.Context, ownerID, taskID uuid.UUID) (*task.Audio, error) {
	st, err := s.status.GetStatus(ctx, taskID, ownerID)
	if err != nil {
		return nil, NewServiceError("fetch_audio", "failed to resolve status", err)
	}

	switch st.Status {
	case domain.TaskStatusCompleted:
	case domain.TaskStatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrTaskFailed, st.Error)
	default:
		return nil, ErrNotReady
	}
	if st.Kind != domain.TaskKindSpeech {
		return nil, fmt.Errorf("%w: task %s is a %s task", domain.ErrValidation, taskID, st.Kind)
	}

	data, err := s.blobs.Get(ctx, st.Ref)
	if err != nil {
		return nil, NewServiceError("fetch_audio", "failed to read audio", err)
	}

	contentType := st.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &task.Audio{Data: data, ContentType: contentType}, nil
}
