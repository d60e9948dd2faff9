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

// SpeechHandler synthesizes audio from inline text or from a document's
// extracted text and stores it as a blob.
type SpeechHandler struct {
	documents store.DocumentStore
	blobs     store.BlobStore
	synth     Synthesizer
	logger    *slog.Logger
}

// NewSpeechHandler creates a SpeechHandler.
func NewSpeechHandler(
	documents store.DocumentStore,
	blobs store.BlobStore,
	synth Synthesizer,
	logger *slog.Logger,
) (*SpeechHandler, error) {
	if documents == nil {
		return nil, ErrNilStore
	}
	if blobs == nil {
		return nil, ErrNilBlobStore
	}
	if synth == nil {
		return nil, ErrNilSynth
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	return &SpeechHandler{
		documents: documents,
		blobs:     blobs,
		synth:     synth,
		logger:    logger.With(slog.String("component", "speech_handler")),
	}, nil
}

// Handle implements Handler.
func (h *SpeechHandler) Handle(ctx context.Context, env *Envelope) (*domain.Artifact, error) {
	log := logger.FromContextOrDefault(ctx, h.logger)

	payload, ok := env.Speech()
	if !ok {
		return nil, fmt.Errorf("%w: %s envelope sent to speech handler", domain.ErrProcessingFailure, env.Kind)
	}

	// 1. Resolve the text
	text := payload.Text
	metadata := map[string]string{
		store.BlobMetaTaskID:  env.TaskID.String(),
		store.BlobMetaOwnerID: env.OwnerID.String(),
		store.BlobMetaKind:    string(domain.TaskKindSpeech),
	}
	if payload.DocumentID != nil {
		doc, err := h.documents.GetByID(ctx, *payload.DocumentID, env.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load document: %w", err)
		}
		if strings.TrimSpace(doc.RawText) == "" {
			return nil, fmt.Errorf("%w: document %s", ErrEmptyDocument, doc.ID)
		}
		text = doc.RawText
		metadata[store.BlobMetaDocumentID] = doc.ID.String()
	}

	// 2. Synthesize
	log.Info("synthesizing speech", slog.Int("text_length", len(text)))
	audio, err := h.synth.Synthesize(ctx, text, SpeechOptions{Voice: payload.Voice})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	if audio == nil || len(audio.Data) == 0 {
		return nil, fmt.Errorf("%w: synthesizer returned no audio", domain.ErrProcessingFailure)
	}

	// 3. Store the audio
	blobID, err := h.blobs.Put(ctx, audio.Data, audio.ContentType, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to store audio: %w", err)
	}

	log.Info("speech stored", slog.String("blob_id", blobID), slog.Int("bytes", len(audio.Data)))

	return domain.NewArtifact(env.TaskID, env.OwnerID, domain.TaskKindSpeech, blobID, audio.ContentType)
}
