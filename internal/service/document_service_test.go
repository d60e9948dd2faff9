package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/service"
	"github.com/phrazzld/lector/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDocumentService(t *testing.T, f *fixture) *service.DocumentService {
	t.Helper()
	svc, err := service.NewDocumentService(f.db, f.documents, f.chunks, f.blobs, f.producer, testLogger())
	require.NoError(t, err)
	return svc
}

func TestNewDocumentServiceRequiresDependencies(t *testing.T) {
	f := newFixture(t)

	_, err := service.NewDocumentService(nil, f.documents, f.chunks, f.blobs, f.producer, testLogger())
	assert.Error(t, err)
	_, err = service.NewDocumentService(f.db, nil, f.chunks, f.blobs, f.producer, testLogger())
	assert.Error(t, err)
	_, err = service.NewDocumentService(f.db, f.documents, f.chunks, nil, f.producer, testLogger())
	assert.Error(t, err)
	_, err = service.NewDocumentService(f.db, f.documents, f.chunks, f.blobs, nil, testLogger())
	assert.Error(t, err)
	_, err = service.NewDocumentService(f.db, f.documents, f.chunks, f.blobs, f.producer, nil)
	assert.Error(t, err)
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()

	t.Run("stores the file and enqueues a document task", func(t *testing.T) {
		f := newFixture(t)
		f.sql.ExpectBegin()
		f.sql.ExpectCommit()
		svc := newDocumentService(t, f)

		up, err := svc.Upload(ctx, ownerID, "notes/lecture.PDF", samplePDF)
		require.NoError(t, err)
		require.NotNil(t, up.Document)
		assert.NotEqual(t, uuid.Nil, up.TaskID)
		assert.Equal(t, "lecture.PDF", up.Document.Filename)
		assert.Equal(t, domain.DocumentStatusProcessing, up.Document.Status)

		stored, ok := f.documents.Get(up.Document.ID)
		require.True(t, ok)
		assert.Equal(t, ownerID, stored.OwnerID)
		assert.Equal(t, up.Document.BlobID, stored.BlobID)

		blob, ok := f.blobs.Blob(stored.BlobID)
		require.True(t, ok)
		assert.Equal(t, samplePDF, blob.Data)
		assert.Equal(t, "application/pdf", blob.ContentType)
		assert.Equal(t, ownerID.String(), blob.Metadata[store.BlobMetaOwnerID])
		assert.Equal(t, up.Document.ID.String(), blob.Metadata[store.BlobMetaDocumentID])

		envs := f.published(t, documentQueue)
		require.Len(t, envs, 1)
		assert.Equal(t, up.TaskID, envs[0].TaskID)
		assert.Equal(t, ownerID, envs[0].OwnerID)
		payload, ok := envs[0].Document()
		require.True(t, ok)
		assert.Equal(t, up.Document.ID, payload.DocumentID)
		assert.Equal(t, stored.BlobID, payload.BlobID)
	})

	t.Run("rejects invalid input before storing anything", func(t *testing.T) {
		tests := []struct {
			name     string
			owner    uuid.UUID
			filename string
			data     []byte
		}{
			{"nil owner", uuid.Nil, "a.pdf", samplePDF},
			{"wrong extension", ownerID, "a.txt", samplePDF},
			{"empty file", ownerID, "a.pdf", nil},
			{"not a pdf", ownerID, "a.pdf", []byte("hello world")},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)
				svc := newDocumentService(t, f)

				_, err := svc.Upload(ctx, tt.owner, tt.filename, tt.data)
				assert.ErrorIs(t, err, domain.ErrValidation)
				assert.Zero(t, f.blobs.Len())
				assert.Empty(t, f.broker.Published[documentQueue])
			})
		}
	})

	t.Run("marks the document failed when the queue is down", func(t *testing.T) {
		f := newFixture(t)
		f.sql.ExpectBegin()
		f.sql.ExpectCommit()
		f.broker.PublishErr = errors.New("connection refused")
		svc := newDocumentService(t, f)

		up, err := svc.Upload(ctx, ownerID, "a.pdf", samplePDF)
		assert.ErrorIs(t, err, domain.ErrQueueUnavailable)
		assert.Nil(t, up)
		assert.Equal(t, 1, f.blobs.Len())

		docs, err := f.documents.ListByOwner(ctx, ownerID)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, domain.DocumentStatusFailed, docs[0].Status)
		assert.Equal(t, "failed to enqueue document", docs[0].ErrorMessage)
	})

	t.Run("rolls back when the document cannot be created", func(t *testing.T) {
		f := newFixture(t)
		f.sql.ExpectBegin()
		f.sql.ExpectRollback()
		f.documents.Err = errors.New("connection reset")
		svc := newDocumentService(t, f)

		_, err := svc.Upload(ctx, ownerID, "a.pdf", samplePDF)
		require.Error(t, err)
		assert.ErrorContains(t, err, "connection reset")
		assert.Zero(t, f.blobs.Len())
		assert.Empty(t, f.broker.Published[documentQueue])
	})

	t.Run("rolls back when the blob store fails", func(t *testing.T) {
		f := newFixture(t)
		f.sql.ExpectBegin()
		f.sql.ExpectRollback()
		f.blobs.PutErr = errors.New("bucket gone")
		svc := newDocumentService(t, f)

		_, err := svc.Upload(ctx, ownerID, "a.pdf", samplePDF)
		require.Error(t, err)

		var svcErr *service.ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "upload_document", svcErr.Operation)
		assert.Empty(t, f.broker.Published[documentQueue])
	})
}

func TestChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newDocumentService(t, f)

	ownerID := uuid.New()
	doc, err := domain.NewDocument(ownerID, "a.pdf")
	require.NoError(t, err)
	require.NoError(t, f.documents.Create(ctx, doc))

	chunks, err := domain.NewChunks(doc.ID, []string{"first", "second"}, [][]float32{{1}, {2}}, 1)
	require.NoError(t, err)
	require.NoError(t, f.chunks.ReplaceForDocument(ctx, doc.ID, chunks))

	got, err := svc.Chunks(ctx, ownerID, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, 1, got[1].ChunkIndex)

	_, err = svc.Chunks(ctx, uuid.New(), doc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "another owner's document is not found")
}

func TestListDocuments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newDocumentService(t, f)

	alice, bob := uuid.New(), uuid.New()
	older, err := domain.NewDocument(alice, "older.pdf")
	require.NoError(t, err)
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer, err := domain.NewDocument(alice, "newer.pdf")
	require.NoError(t, err)
	theirs, err := domain.NewDocument(bob, "theirs.pdf")
	require.NoError(t, err)
	for _, doc := range []*domain.Document{older, newer, theirs} {
		require.NoError(t, f.documents.Create(ctx, doc))
	}

	docs, err := svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "newer.pdf", docs[0].Filename)
	assert.Equal(t, "older.pdf", docs[1].Filename)

	docs, err = svc.List(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = svc.List(ctx, uuid.Nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	f.documents.Err = errors.New("connection reset")
	_, err = svc.List(ctx, alice)
	var svcErr *service.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "list_documents", svcErr.Operation)
}
