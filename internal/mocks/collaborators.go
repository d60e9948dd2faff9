package mocks

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/store"
	"github.com/phrazzld/lector/internal/task"
)

// BlobStore is an in-memory store.BlobStore.
type BlobStore struct {
	mu    sync.Mutex
	blobs map[string]Blob

	PutErr error
	GetErr error
}

// Blob is a stored payload with its attributes.
type Blob struct {
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// NewBlobStore creates an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]Blob)}
}

var _ store.BlobStore = (*BlobStore)(nil)

// Put implements store.BlobStore.
func (s *BlobStore) Put(ctx context.Context, data []byte, contentType string, metadata map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return "", s.PutErr
	}
	id := uuid.NewString()
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	s.blobs[id] = Blob{Data: append([]byte(nil), data...), ContentType: contentType, Metadata: meta}
	return id, nil
}

// Get implements store.BlobStore.
func (s *BlobStore) Get(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	b, ok := s.blobs[id]
	if !ok {
		return nil, store.ErrBlobNotFound
	}
	return append([]byte(nil), b.Data...), nil
}

// Blob returns a stored blob with its metadata.
func (s *BlobStore) Blob(id string) (Blob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[id]
	return b, ok
}

// Len returns the number of stored blobs.
func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// Embedder is a deterministic task.Embedder deriving vectors from a hash of
// the text.
type Embedder struct {
	Dims int

	// EmbedFn, when set, replaces Embed.
	EmbedFn func(ctx context.Context, text string) ([]float32, error)

	mu    sync.Mutex
	Calls []string
}

var _ task.Embedder = (*Embedder)(nil)

// Embed implements task.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.Calls = append(e.Calls, text)
	e.mu.Unlock()

	if e.EmbedFn != nil {
		return e.EmbedFn(ctx, text)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, e.Dims)
	for i := range vec {
		vec[i] = float32((seed>>(uint(i)%32))&0xff) / 255
	}
	return vec, nil
}

// Dimensions implements task.Embedder.
func (e *Embedder) Dimensions() int { return e.Dims }

// CallCount returns the number of Embed calls.
func (e *Embedder) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}

// Synthesizer is a task.Synthesizer returning fixed audio.
type Synthesizer struct {
	// SynthesizeFn, when set, replaces Synthesize.
	SynthesizeFn func(ctx context.Context, text string, opts task.SpeechOptions) (*task.Audio, error)

	mu    sync.Mutex
	Texts []string
	Opts  []task.SpeechOptions
}

var _ task.Synthesizer = (*Synthesizer)(nil)

// Synthesize implements task.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts task.SpeechOptions) (*task.Audio, error) {
	s.mu.Lock()
	s.Texts = append(s.Texts, text)
	s.Opts = append(s.Opts, opts)
	s.mu.Unlock()

	if s.SynthesizeFn != nil {
		return s.SynthesizeFn(ctx, text, opts)
	}
	return &task.Audio{Data: []byte("ID3" + text), ContentType: "audio/mpeg"}, nil
}

// CallCount returns the number of Synthesize calls.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Texts)
}

// Extractor is a task.TextExtractor that treats the file as plain text.
type Extractor struct {
	// ExtractFn, when set, replaces Extract.
	ExtractFn func(ctx context.Context, data []byte) (string, error)
}

var _ task.TextExtractor = (*Extractor)(nil)

// Extract implements task.TextExtractor.
func (e *Extractor) Extract(ctx context.Context, data []byte) (string, error) {
	if e.ExtractFn != nil {
		return e.ExtractFn(ctx, data)
	}
	return string(data), nil
}

// Progress is an in-memory task.ProgressTracker.
type Progress struct {
	mu    sync.Mutex
	state map[uuid.UUID]task.Progress
	Err   error
}

// NewProgress creates an empty Progress tracker.
func NewProgress() *Progress {
	return &Progress{state: make(map[uuid.UUID]task.Progress)}
}

var _ task.ProgressTracker = (*Progress)(nil)

// Start implements task.ProgressTracker.
func (p *Progress) Start(ctx context.Context, taskID uuid.UUID, total int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.state[taskID] = task.Progress{Total: total}
	return nil
}

// Advance implements task.ProgressTracker.
func (p *Progress) Advance(ctx context.Context, taskID uuid.UUID, done int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	cur, ok := p.state[taskID]
	if !ok {
		return fmt.Errorf("no progress started for task %s", taskID)
	}
	cur.Done = done
	p.state[taskID] = cur
	return nil
}

// Get implements task.ProgressTracker.
func (p *Progress) Get(ctx context.Context, taskID uuid.UUID) (*task.Progress, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, false, p.Err
	}
	cur, ok := p.state[taskID]
	if !ok {
		return nil, false, nil
	}
	return &cur, true, nil
}
