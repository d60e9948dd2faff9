package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/postgres"
	"github.com/phrazzld/lector/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

var documentColumns = []string{
	"id", "owner_id", "filename", "blob_id", "raw_text", "status", "error_message", "created_at", "updated_at",
}

func TestDocumentStore(t *testing.T) {
	ctx := context.Background()

	t.Run("create", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)
		doc, err := domain.NewDocument(uuid.New(), "paper.pdf")
		require.NoError(t, err)

		mock.ExpectExec("INSERT INTO documents").
			WithArgs(doc.ID, doc.OwnerID, "paper.pdf", "", "", "processing", "", doc.CreatedAt, doc.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, s.Create(ctx, doc))
	})

	t.Run("create rejects invalid documents without a query", func(t *testing.T) {
		db, _ := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)

		err := s.Create(ctx, &domain.Document{ID: uuid.New(), Filename: "x.pdf", Status: domain.DocumentStatusProcessing})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("create maps duplicates", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)
		doc, err := domain.NewDocument(uuid.New(), "paper.pdf")
		require.NoError(t, err)

		mock.ExpectExec("INSERT INTO documents").WillReturnError(&pgconn.PgError{Code: "23505"})

		assert.ErrorIs(t, s.Create(ctx, doc), store.ErrDuplicate)
	})

	t.Run("get is scoped to the owner", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)
		id, owner := uuid.New(), uuid.New()
		now := time.Now().UTC()

		mock.ExpectQuery("FROM documents").
			WithArgs(id, owner).
			WillReturnRows(sqlmock.NewRows(documentColumns).
				AddRow(id.String(), owner.String(), "paper.pdf", "blob-1", "text", "completed", "", now, now))

		doc, err := s.GetByID(ctx, id, owner)
		require.NoError(t, err)
		assert.Equal(t, id, doc.ID)
		assert.Equal(t, "blob-1", doc.BlobID)
		assert.Equal(t, domain.DocumentStatusCompleted, doc.Status)
	})

	t.Run("get not found", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)

		mock.ExpectQuery("FROM documents").WillReturnRows(sqlmock.NewRows(documentColumns))

		_, err := s.GetByID(ctx, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	})

	t.Run("update status keeps error text only for failures", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)
		id, owner := uuid.New(), uuid.New()

		mock.ExpectExec("UPDATE documents SET status .* WHERE id = \\$4 AND owner_id = \\$5").
			WithArgs("failed", "no text", sqlmock.AnyArg(), id, owner).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE documents SET status").
			WithArgs("completed", "", sqlmock.AnyArg(), id, owner).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.UpdateStatus(ctx, id, owner, domain.DocumentStatusFailed, "no text"))
		require.NoError(t, s.UpdateStatus(ctx, id, owner, domain.DocumentStatusCompleted, "ignored"))
	})

	t.Run("update of another owner's document matches nothing", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)
		id, stranger := uuid.New(), uuid.New()

		mock.ExpectExec("UPDATE documents SET status").
			WithArgs("failed", "boom", sqlmock.AnyArg(), id, stranger).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.UpdateStatus(ctx, id, stranger, domain.DocumentStatusFailed, "boom")
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	})

	t.Run("update of a missing document", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)

		mock.ExpectExec("UPDATE documents SET raw_text").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, s.SetRawText(ctx, uuid.New(), uuid.New(), "text"), store.ErrDocumentNotFound)
	})

	t.Run("update errors carry entity context", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)

		mock.ExpectExec("UPDATE documents SET raw_text").WillReturnError(&pgconn.PgError{Code: "23514"})

		err := s.SetRawText(ctx, uuid.New(), uuid.New(), "text")
		var storeErr *store.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "document", storeErr.Entity)
		assert.Equal(t, "update", storeErr.Operation)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("invalid status", func(t *testing.T) {
		db, _ := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)
		assert.ErrorIs(t, s.UpdateStatus(ctx, uuid.New(), uuid.New(), "archived", ""), domain.ErrInvalidStatus)
	})

	t.Run("list by owner", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)
		owner := uuid.New()
		newer, older := uuid.New(), uuid.New()
		now := time.Now().UTC()

		mock.ExpectQuery("FROM documents\\s+WHERE owner_id = \\$1\\s+ORDER BY created_at DESC").
			WithArgs(owner).
			WillReturnRows(sqlmock.NewRows(documentColumns).
				AddRow(newer.String(), owner.String(), "b.pdf", "blob-b", "", "processing", "", now, now).
				AddRow(older.String(), owner.String(), "a.pdf", "blob-a", "text", "failed", "bad pdf", now.Add(-time.Hour), now))

		docs, err := s.ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, newer, docs[0].ID)
		assert.Equal(t, domain.DocumentStatusFailed, docs[1].Status)
		assert.Equal(t, "bad pdf", docs[1].ErrorMessage)
	})

	t.Run("list by owner with no documents", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)

		mock.ExpectQuery("FROM documents").WillReturnRows(sqlmock.NewRows(documentColumns))

		docs, err := s.ListByOwner(ctx, uuid.New())
		require.NoError(t, err)
		assert.NotNil(t, docs)
		assert.Empty(t, docs)
	})

	t.Run("with tx", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresDocumentStore(db, nil)
		id, owner := uuid.New(), uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE documents SET blob_id").
			WithArgs("blob-2", sqlmock.AnyArg(), id, owner).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return s.WithTx(tx).SetBlobID(ctx, id, owner, "blob-2")
		})
		assert.NoError(t, err)
	})
}

func TestChunkStore(t *testing.T) {
	ctx := context.Background()
	docID := uuid.New()
	chunks, err := domain.NewChunks(docID, []string{"one", "two"}, [][]float32{{1, 0}, {0, 1}}, 2)
	require.NoError(t, err)

	t.Run("replace deletes and inserts in one transaction", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresChunkStore(db, nil)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM chunks").WithArgs(docID).WillReturnResult(sqlmock.NewResult(0, 5))
		prep := mock.ExpectPrepare("INSERT INTO chunks")
		prep.ExpectExec().
			WithArgs(docID, 0, "one", pgvector.NewVector([]float32{1, 0}), 3, 2, chunks[0].CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().
			WithArgs(docID, 1, "two", pgvector.NewVector([]float32{0, 1}), 3, 2, chunks[1].CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, s.ReplaceForDocument(ctx, docID, chunks))
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresChunkStore(db, nil)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM chunks").WillReturnResult(sqlmock.NewResult(0, 0))
		prep := mock.ExpectPrepare("INSERT INTO chunks")
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WillReturnError(&pgconn.PgError{Code: "23514"})
		mock.ExpectRollback()

		err := s.ReplaceForDocument(ctx, docID, chunks)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		var storeErr *store.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "chunk", storeErr.Entity)
	})

	t.Run("replace for a deleted document", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresChunkStore(db, nil)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM chunks").WillReturnResult(sqlmock.NewResult(0, 0))
		prep := mock.ExpectPrepare("INSERT INTO chunks")
		prep.ExpectExec().WillReturnError(&pgconn.PgError{Code: "23503"})
		mock.ExpectRollback()

		err := s.ReplaceForDocument(ctx, docID, chunks)
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	})

	t.Run("rejects chunks out of order", func(t *testing.T) {
		db, _ := newMock(t)
		s := postgres.NewPostgresChunkStore(db, nil)

		swapped := []domain.Chunk{chunks[1], chunks[0]}
		assert.ErrorIs(t, s.ReplaceForDocument(ctx, docID, swapped), store.ErrInvalidEntity)
	})

	t.Run("list decodes embeddings", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresChunkStore(db, nil)
		now := time.Now().UTC()

		mock.ExpectQuery("FROM chunks").
			WithArgs(docID).
			WillReturnRows(sqlmock.NewRows([]string{
				"document_id", "chunk_index", "text", "embedding", "char_length", "total_chunks", "created_at",
			}).
				AddRow(docID.String(), 0, "one", "[1,0.5]", 3, 2, now).
				AddRow(docID.String(), 1, "two", "[0,1]", 3, 2, now))

		got, err := s.ListByDocument(ctx, docID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []float32{1, 0.5}, got[0].Embedding)
		assert.Equal(t, 1, got[1].ChunkIndex)
	})
}

func TestChunkStoreSearch(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	docA, docB := uuid.New(), uuid.New()
	query := []float32{1, 0}
	columns := []string{
		"document_id", "chunk_index", "text", "embedding", "char_length", "total_chunks", "created_at", "distance",
	}

	t.Run("owner scoped nearest first", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresChunkStore(db, nil)
		now := time.Now().UTC()

		mock.ExpectQuery("c.embedding <=> \\$1 AS distance(.|\\s)*WHERE d.owner_id = \\$2(.|\\s)*LIMIT \\$4").
			WithArgs(pgvector.NewVector(query), owner, 2, 3).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(docA.String(), 1, "close", "[1,0]", 5, 2, now, 0.0).
				AddRow(docB.String(), 0, "far", "[0,1]", 3, 1, now, 1.0))

		matches, err := s.Search(ctx, owner, nil, query, 3)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "close", matches[0].Text)
		assert.Equal(t, docA, matches[0].DocumentID)
		assert.Equal(t, 1, matches[0].ChunkIndex)
		assert.InDelta(t, 0.0, matches[0].Distance, 1e-9)
		assert.Equal(t, []float32{0, 1}, matches[1].Embedding)
	})

	t.Run("restricted to documents", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresChunkStore(db, nil)

		mock.ExpectQuery("c.document_id IN \\(\\$4, \\$5\\)(.|\\s)*LIMIT \\$6").
			WithArgs(pgvector.NewVector(query), owner, 2, docA, docB, 5).
			WillReturnRows(sqlmock.NewRows(columns))

		matches, err := s.Search(ctx, owner, []uuid.UUID{docA, docB}, query, 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("non-positive k queries nothing", func(t *testing.T) {
		db, _ := newMock(t)
		s := postgres.NewPostgresChunkStore(db, nil)

		matches, err := s.Search(ctx, owner, nil, query, 0)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("driver errors carry entity context", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresChunkStore(db, nil)

		mock.ExpectQuery("FROM chunks").WillReturnError(errors.New("operator does not exist"))

		_, err := s.Search(ctx, owner, nil, query, 1)
		var storeErr *store.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "search", storeErr.Operation)
	})
}

var artifactColumns = []string{"id", "task_id", "owner_id", "kind", "ref", "content_type", "created_at"}

func TestArtifactStore(t *testing.T) {
	ctx := context.Background()

	t.Run("create returns the stored artifact", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresArtifactStore(db, nil)
		a, err := domain.NewArtifact(uuid.New(), uuid.New(), domain.TaskKindSpeech, "blob", "audio/mpeg")
		require.NoError(t, err)

		mock.ExpectQuery("INSERT INTO artifacts").
			WithArgs(a.ID, a.TaskID, a.OwnerID, "speech", "blob", "audio/mpeg", a.CreatedAt).
			WillReturnRows(sqlmock.NewRows(artifactColumns).
				AddRow(a.ID.String(), a.TaskID.String(), a.OwnerID.String(), "speech", "blob", "audio/mpeg", a.CreatedAt))

		stored, err := s.Create(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, a, stored)
	})

	t.Run("second create yields the first artifact", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresArtifactStore(db, nil)
		a, err := domain.NewArtifact(uuid.New(), uuid.New(), domain.TaskKindDocument, "doc", "")
		require.NoError(t, err)
		existing := uuid.New()

		mock.ExpectQuery("ON CONFLICT \\(task_id\\) DO NOTHING").
			WillReturnRows(sqlmock.NewRows(artifactColumns).
				AddRow(existing.String(), a.TaskID.String(), a.OwnerID.String(), "document", "doc", "", a.CreatedAt))

		stored, err := s.Create(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, existing, stored.ID)
	})

	t.Run("create for another owner's task", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresArtifactStore(db, nil)
		a, err := domain.NewArtifact(uuid.New(), uuid.New(), domain.TaskKindSpeech, "blob", "")
		require.NoError(t, err)

		mock.ExpectQuery("WHERE task_id = \\$2 AND owner_id = \\$3").
			WillReturnRows(sqlmock.NewRows(artifactColumns))

		_, err = s.Create(ctx, a)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("get not found", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresArtifactStore(db, nil)
		taskID, owner := uuid.New(), uuid.New()

		mock.ExpectQuery("FROM artifacts").WithArgs(taskID, owner).WillReturnRows(sqlmock.NewRows(artifactColumns))

		_, err := s.GetByTaskID(ctx, taskID, owner)
		assert.ErrorIs(t, err, store.ErrArtifactNotFound)
	})

	t.Run("get surfaces driver errors", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresArtifactStore(db, nil)

		mock.ExpectQuery("FROM artifacts").WillReturnError(errors.New("conn reset"))

		_, err := s.GetByTaskID(ctx, uuid.New(), uuid.New())
		assert.ErrorContains(t, err, "conn reset")
		assert.NotErrorIs(t, err, store.ErrNotFound)
	})
}

func TestTaskStore(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresTaskStore(db, nil)
		now := time.Now().UTC()
		docID := uuid.New()
		r := &domain.TaskRecord{
			TaskID: uuid.New(), OwnerID: uuid.New(), Kind: domain.TaskKindDocument, DocumentID: &docID,
			Status: domain.TaskStatusFailed, ErrorMessage: "bad pdf", CreatedAt: now, UpdatedAt: now,
		}

		mock.ExpectExec("ON CONFLICT \\(task_id\\) DO UPDATE").
			WithArgs(r.TaskID, r.OwnerID, "document", docID, "failed", "bad pdf", now, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, s.Upsert(ctx, r))
	})

	t.Run("upsert leaves another owner's record alone", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresTaskStore(db, nil)
		now := time.Now().UTC()
		r := &domain.TaskRecord{
			TaskID: uuid.New(), OwnerID: uuid.New(), Kind: domain.TaskKindSpeech,
			Status: domain.TaskStatusFailed, CreatedAt: now, UpdatedAt: now,
		}

		mock.ExpectExec("WHERE tasks.owner_id = EXCLUDED.owner_id").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, s.Upsert(ctx, r), store.ErrTaskNotFound)
	})

	t.Run("upsert without document", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresTaskStore(db, nil)
		now := time.Now().UTC()
		r := &domain.TaskRecord{
			TaskID: uuid.New(), OwnerID: uuid.New(), Kind: domain.TaskKindSpeech,
			Status: domain.TaskStatusProcessing, CreatedAt: now, UpdatedAt: now,
		}

		mock.ExpectExec("INSERT INTO tasks").
			WithArgs(r.TaskID, r.OwnerID, "speech", nil, "processing", "", now, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, s.Upsert(ctx, r))
	})

	t.Run("upsert validates", func(t *testing.T) {
		db, _ := newMock(t)
		s := postgres.NewPostgresTaskStore(db, nil)
		err := s.Upsert(ctx, &domain.TaskRecord{TaskID: uuid.New(), OwnerID: uuid.New(), Kind: "video", Status: "processing"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("get", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresTaskStore(db, nil)
		taskID, owner := uuid.New(), uuid.New()
		now := time.Now().UTC()

		mock.ExpectQuery("FROM tasks").
			WithArgs(taskID, owner).
			WillReturnRows(sqlmock.NewRows([]string{
				"task_id", "owner_id", "kind", "document_id", "status", "error_message", "created_at", "updated_at",
			}).AddRow(taskID.String(), owner.String(), "speech", nil, "failed", "voice missing", now, now))

		r, err := s.GetByID(ctx, taskID, owner)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusFailed, r.Status)
		assert.Equal(t, "voice missing", r.ErrorMessage)
		assert.Nil(t, r.DocumentID)
	})

	t.Run("get not found", func(t *testing.T) {
		db, mock := newMock(t)
		s := postgres.NewPostgresTaskStore(db, nil)

		mock.ExpectQuery("FROM tasks").WillReturnError(sql.ErrNoRows)

		_, err := s.GetByID(ctx, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}
