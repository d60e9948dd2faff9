package service_test

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/mocks"
	"github.com/phrazzld/lector/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	documentQueue = "pdf_queue"
	speechQueue   = "tts_queue"
)

var samplePDF = []byte("%PDF-1.4\n%test document\n")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	db        *sql.DB
	sql       sqlmock.Sqlmock
	broker    *mocks.Broker
	documents *mocks.DocumentStore
	chunks    *mocks.ChunkStore
	artifacts *mocks.ArtifactStore
	tasks     *mocks.TaskStore
	blobs     *mocks.BlobStore
	producer  *task.Producer
	resolver  *task.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		broker:    mocks.NewBroker(),
		documents: mocks.NewDocumentStore(),
		chunks:    mocks.NewChunkStore(),
		artifacts: mocks.NewArtifactStore(),
		tasks:     mocks.NewTaskStore(),
		blobs:     mocks.NewBlobStore(),
	}
	f.chunks.Documents = f.documents

	var err error
	f.db, f.sql, err = sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = f.db.Close()
		assert.NoError(t, f.sql.ExpectationsWereMet())
	})

	f.producer, err = task.NewProducer(f.broker, task.Routes{
		domain.TaskKindDocument: documentQueue,
		domain.TaskKindSpeech:   speechQueue,
	}, testLogger())
	require.NoError(t, err)

	f.resolver, err = task.NewResolver(f.artifacts, f.tasks, nil, testLogger())
	require.NoError(t, err)
	return f
}

// published decodes the envelopes published to name.
func (f *fixture) published(t *testing.T, name string) []*task.Envelope {
	t.Helper()
	var out []*task.Envelope
	for _, msg := range f.broker.Published[name] {
		env, err := task.DecodeEnvelope(msg.Body)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}
