package task

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Dependency errors returned by constructors.
var (
	ErrNilLogger     = errors.New("logger cannot be nil")
	ErrNilPublisher  = errors.New("publisher cannot be nil")
	ErrNilDialer     = errors.New("dialer cannot be nil")
	ErrNilRecorder   = errors.New("recorder cannot be nil")
	ErrNilStore      = errors.New("store cannot be nil")
	ErrNilBlobStore  = errors.New("blob store cannot be nil")
	ErrNilChunker    = errors.New("chunker cannot be nil")
	ErrNilEmbedder   = errors.New("embedder cannot be nil")
	ErrNilExtractor  = errors.New("text extractor cannot be nil")
	ErrNilSynth      = errors.New("synthesizer cannot be nil")
	ErrNoHandlers    = errors.New("at least one handler is required")
	ErrUnknownQueue  = errors.New("no queue configured for task kind")
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// Embedder turns text into a fixed-length vector. Every vector it returns
// must have Dimensions() elements.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// TextChunker splits extracted text into ordered chunks.
type TextChunker interface {
	Chunk(text string) []string
}

// TextExtractor pulls plain text out of a document file.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// SpeechOptions tunes a synthesis request. Zero values select the
// synthesizer's configured defaults.
type SpeechOptions struct {
	Voice string
}

// Audio is synthesized speech.
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts SpeechOptions) (*Audio, error)
}

// Progress is the chunk embedding progress of a document task.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// ProgressTracker records how far a running task has got. Implementations
// may drop data; progress is informational only.
type ProgressTracker interface {
	Start(ctx context.Context, taskID uuid.UUID, total int) error
	Advance(ctx context.Context, taskID uuid.UUID, done int) error
	Get(ctx context.Context, taskID uuid.UUID) (*Progress, bool, error)
}

// NoopProgress is a ProgressTracker that records nothing.
type NoopProgress struct{}

// Start implements ProgressTracker.
func (NoopProgress) Start(context.Context, uuid.UUID, int) error { return nil }

// Advance implements ProgressTracker.
func (NoopProgress) Advance(context.Context, uuid.UUID, int) error { return nil }

// Get implements ProgressTracker.
func (NoopProgress) Get(context.Context, uuid.UUID) (*Progress, bool, error) { return nil, false, nil }
