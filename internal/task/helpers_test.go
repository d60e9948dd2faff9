package task_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/mocks"
	"github.com/phrazzld/lector/internal/task"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// sentenceChunker yields one chunk per period-terminated sentence.
type sentenceChunker struct{}

func (sentenceChunker) Chunk(text string) []string {
	var out []string
	for _, part := range strings.SplitAfter(text, ".") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// fixture wires the in-memory collaborators used across task tests.
type fixture struct {
	broker    *mocks.Broker
	documents *mocks.DocumentStore
	chunks    *mocks.ChunkStore
	artifacts *mocks.ArtifactStore
	tasks     *mocks.TaskStore
	blobs     *mocks.BlobStore
	embedder  *mocks.Embedder
	synth     *mocks.Synthesizer
	extractor *mocks.Extractor
	progress  *mocks.Progress

	recorder *task.Recorder
	producer *task.Producer
	resolver *task.Resolver
}

const (
	documentQueue = "pdf_queue"
	speechQueue   = "tts_queue"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		broker:    mocks.NewBroker(),
		documents: mocks.NewDocumentStore(),
		chunks:    mocks.NewChunkStore(),
		artifacts: mocks.NewArtifactStore(),
		tasks:     mocks.NewTaskStore(),
		blobs:     mocks.NewBlobStore(),
		embedder:  &mocks.Embedder{Dims: 8},
		synth:     &mocks.Synthesizer{},
		extractor: &mocks.Extractor{},
		progress:  mocks.NewProgress(),
	}

	var err error
	f.recorder, err = task.NewRecorder(f.tasks, f.documents, f.artifacts, testLogger())
	require.NoError(t, err)

	f.producer, err = task.NewProducer(f.broker, task.Routes{
		domain.TaskKindDocument: documentQueue,
		domain.TaskKindSpeech:   speechQueue,
	}, testLogger())
	require.NoError(t, err)

	f.resolver, err = task.NewResolver(f.artifacts, f.tasks, f.progress, testLogger())
	require.NoError(t, err)

	return f
}

func (f *fixture) documentHandler(t *testing.T) *task.DocumentHandler {
	t.Helper()
	h, err := task.NewDocumentHandler(f.documents, f.chunks, f.blobs, f.extractor,
		sentenceChunker{}, f.embedder, f.progress, testLogger())
	require.NoError(t, err)
	return h
}

func (f *fixture) speechHandler(t *testing.T) *task.SpeechHandler {
	t.Helper()
	h, err := task.NewSpeechHandler(f.documents, f.blobs, f.synth, testLogger())
	require.NoError(t, err)
	return h
}

// uploadDocument stores a document with text as its file content, the way
// the upload service would.
func (f *fixture) uploadDocument(t *testing.T, ownerID uuid.UUID, text string) *domain.Document {
	t.Helper()
	doc, err := domain.NewDocument(ownerID, "paper.pdf")
	require.NoError(t, err)
	blobID, err := f.blobs.Put(context.Background(), []byte(text), "application/pdf", nil)
	require.NoError(t, err)
	doc.BlobID = blobID
	require.NoError(t, f.documents.Create(context.Background(), doc))
	return doc
}
