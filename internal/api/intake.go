package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/service"
	"github.com/phrazzld/lector/internal/task"
)

// OwnerHeader carries the id of the caller. Authentication happens in front
// of this service; the header is trusted as is.
const OwnerHeader = "X-Owner-ID"

// multipartOverhead is the allowance for form fields and part headers on top
// of the file itself.
const multipartOverhead = 1 << 20

// defaultSearchResults is used when a search request does not set k.
const defaultSearchResults = 5

// DocumentIntake is the document use cases served over HTTP. It is
// satisfied by *service.DocumentService.
type DocumentIntake interface {
	Upload(ctx context.Context, ownerID uuid.UUID, filename string, data []byte) (*service.Upload, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]domain.Document, error)
	Chunks(ctx context.Context, ownerID, documentID uuid.UUID) ([]domain.Chunk, error)
}

// ChunkSearcher is satisfied by *service.SearchService.
type ChunkSearcher interface {
	Search(ctx context.Context, ownerID uuid.UUID, query string, documentIDs []uuid.UUID, k int) ([]domain.ChunkMatch, error)
}

// SpeechIntake is satisfied by *service.SpeechService.
type SpeechIntake interface {
	Submit(ctx context.Context, ownerID uuid.UUID, text string, documentID *uuid.UUID, voice string) (uuid.UUID, error)
}

// AudioFetcher is satisfied by *service.AudioService.
type AudioFetcher interface {
	Fetch(ctx context.Context, ownerID, taskID uuid.UUID) (*task.Audio, error)
}

// IntakeConfig holds the use cases behind the intake router.
type IntakeConfig struct {
	Documents DocumentIntake
	Search    ChunkSearcher
	Speech    SpeechIntake
	Audio     AudioFetcher
	Status    service.StatusResolver
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query       string      `json:"query" validate:"required"`
	DocumentIDs []uuid.UUID `json:"document_ids"`
	K           int         `json:"k" validate:"gte=0"`
}

// SearchResponse is the response of POST /search.
type SearchResponse struct {
	Matches []domain.ChunkMatch `json:"matches"`
}

// SpeechRequest is the body of POST /speech.
type SpeechRequest struct {
	Text       string     `json:"text"`
	DocumentID *uuid.UUID `json:"document_id"`
	Voice      string     `json:"voice"`
}

// TaskResponse is returned when work has been enqueued.
type TaskResponse struct {
	TaskID uuid.UUID `json:"task_id"`
}

type intakeHandler struct {
	cfg       IntakeConfig
	validator *validator.Validate
}

// NewIntakeRouter creates the router through which clients upload
// documents, request speech, search chunks and poll tasks. Every route
// requires the OwnerHeader.
func NewIntakeRouter(cfg IntakeConfig, logger *slog.Logger) http.Handler {
	h := &intakeHandler{cfg: cfg, validator: validator.New()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(NewTraceMiddleware(logger))
	r.Use(requireOwner)

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", h.uploadDocument)
		r.Get("/", h.listDocuments)
		r.Get("/{documentID}/chunks", h.listChunks)
	})
	r.Post("/search", h.search)
	r.Post("/speech", h.submitSpeech)
	r.Route("/tasks/{taskID}", func(r chi.Router) {
		r.Get("/", h.taskStatus)
		r.Get("/audio", h.taskAudio)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		RespondWithError(w, r, http.StatusNotFound, "not found")
	})
	return r
}

func (h *intakeHandler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondWithError(w, r, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		RespondWithError(w, r, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	up, err := h.cfg.Documents.Upload(r.Context(), ownerFrom(r), header.Filename, data)
	if err != nil {
		HandleAPIError(w, r, err, "upload document")
		return
	}
	RespondWithJSON(w, r, http.StatusAccepted, up)
}

func (h *intakeHandler) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.cfg.Documents.List(r.Context(), ownerFrom(r))
	if err != nil {
		HandleAPIError(w, r, err, "list documents")
		return
	}
	RespondWithJSON(w, r, http.StatusOK, docs)
}

func (h *intakeHandler) listChunks(w http.ResponseWriter, r *http.Request) {
	documentID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	chunks, err := h.cfg.Documents.Chunks(r.Context(), ownerFrom(r), documentID)
	if err != nil {
		HandleAPIError(w, r, err, "list chunks")
		return
	}
	RespondWithJSON(w, r, http.StatusOK, chunks)
}

func (h *intakeHandler) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.K == 0 {
		req.K = defaultSearchResults
	}
	matches, err := h.cfg.Search.Search(r.Context(), ownerFrom(r), req.Query, req.DocumentIDs, req.K)
	if err != nil {
		HandleAPIError(w, r, err, "search chunks")
		return
	}
	RespondWithJSON(w, r, http.StatusOK, SearchResponse{Matches: matches})
}

func (h *intakeHandler) submitSpeech(w http.ResponseWriter, r *http.Request) {
	var req SpeechRequest
	if !h.decode(w, r, &req) {
		return
	}
	taskID, err := h.cfg.Speech.Submit(r.Context(), ownerFrom(r), req.Text, req.DocumentID, req.Voice)
	if err != nil {
		HandleAPIError(w, r, err, "submit speech")
		return
	}
	RespondWithJSON(w, r, http.StatusAccepted, TaskResponse{TaskID: taskID})
}

func (h *intakeHandler) taskStatus(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(w, r, "taskID")
	if !ok {
		return
	}
	status, err := h.cfg.Status.GetStatus(r.Context(), taskID, ownerFrom(r))
	if err != nil {
		HandleAPIError(w, r, err, "get task status")
		return
	}
	RespondWithJSON(w, r, http.StatusOK, status)
}

func (h *intakeHandler) taskAudio(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(w, r, "taskID")
	if !ok {
		return
	}
	audio, err := h.cfg.Audio.Fetch(r.Context(), ownerFrom(r), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "fetch audio")
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.Data); err != nil {
		loggerFrom(r).Error("failed to write audio response", slog.String("error", err.Error()))
	}
}

func (h *intakeHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := DecodeJSON(r, v); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return false
	}
	if err := h.validator.Struct(v); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return false
	}
	return true
}
