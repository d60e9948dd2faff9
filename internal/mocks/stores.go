package mocks

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/store"
)

// DocumentStore is an in-memory store.DocumentStore. Setting Err makes
// every method fail with it.
type DocumentStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]domain.Document

	Err error
	// UpdateStatusFn, when set, replaces UpdateStatus.
	UpdateStatusFn func(ctx context.Context, id, ownerID uuid.UUID, status domain.DocumentStatus, errorMsg string) error
}

// NewDocumentStore creates an empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[uuid.UUID]domain.Document)}
}

var _ store.DocumentStore = (*DocumentStore)(nil)

// Create implements store.DocumentStore.
func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	if _, ok := s.docs[doc.ID]; ok {
		return store.ErrDuplicate
	}
	s.docs[doc.ID] = *doc
	return nil
}

// GetByID implements store.DocumentStore.
func (s *DocumentStore) GetByID(ctx context.Context, id, ownerID uuid.UUID) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	doc, ok := s.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return nil, store.ErrDocumentNotFound
	}
	return &doc, nil
}

// ListByOwner implements store.DocumentStore.
func (s *DocumentStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []domain.Document{}
	for _, doc := range s.docs {
		if doc.OwnerID == ownerID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// SetBlobID implements store.DocumentStore.
func (s *DocumentStore) SetBlobID(ctx context.Context, id, ownerID uuid.UUID, blobID string) error {
	return s.update(id, ownerID, func(d *domain.Document) { d.BlobID = blobID })
}

// SetRawText implements store.DocumentStore.
func (s *DocumentStore) SetRawText(ctx context.Context, id, ownerID uuid.UUID, text string) error {
	return s.update(id, ownerID, func(d *domain.Document) { d.RawText = text })
}

// UpdateStatus implements store.DocumentStore.
func (s *DocumentStore) UpdateStatus(
	ctx context.Context,
	id, ownerID uuid.UUID,
	status domain.DocumentStatus,
	errorMsg string,
) error {
	if s.UpdateStatusFn != nil {
		return s.UpdateStatusFn(ctx, id, ownerID, status, errorMsg)
	}
	var statusErr error
	err := s.update(id, ownerID, func(d *domain.Document) { statusErr = d.UpdateStatus(status, errorMsg) })
	if err != nil {
		return err
	}
	return statusErr
}

// WithTx implements store.DocumentStore.
func (s *DocumentStore) WithTx(tx *sql.Tx) store.DocumentStore { return s }

// Get returns a copy of a stored document regardless of owner.
func (s *DocumentStore) Get(id uuid.UUID) (domain.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	return doc, ok
}

// Put stores doc directly, bypassing validation.
func (s *DocumentStore) Put(doc domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
}

func (s *DocumentStore) update(id, ownerID uuid.UUID, fn func(d *domain.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	doc, ok := s.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return store.ErrDocumentNotFound
	}
	fn(&doc)
	doc.UpdatedAt = time.Now().UTC()
	s.docs[id] = doc
	return nil
}

// ChunkStore is an in-memory store.ChunkStore. Search resolves chunk
// ownership through Documents and matches nothing while it is unset.
type ChunkStore struct {
	mu     sync.Mutex
	chunks map[uuid.UUID][]domain.Chunk

	Documents *DocumentStore

	Err error
	// Replacements counts calls to ReplaceForDocument per document.
	Replacements map[uuid.UUID]int
}

// NewChunkStore creates an empty ChunkStore.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks:       make(map[uuid.UUID][]domain.Chunk),
		Replacements: make(map[uuid.UUID]int),
	}
}

var _ store.ChunkStore = (*ChunkStore)(nil)

// ReplaceForDocument implements store.ChunkStore.
func (s *ChunkStore) ReplaceForDocument(ctx context.Context, documentID uuid.UUID, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.chunks[documentID] = append([]domain.Chunk(nil), chunks...)
	s.Replacements[documentID]++
	return nil
}

// ListByDocument implements store.ChunkStore.
func (s *ChunkStore) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := append([]domain.Chunk(nil), s.chunks[documentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// Search implements store.ChunkStore with cosine distance.
func (s *ChunkStore) Search(
	ctx context.Context,
	ownerID uuid.UUID,
	documentIDs []uuid.UUID,
	vector []float32,
	k int,
) ([]domain.ChunkMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	wanted := make(map[uuid.UUID]bool, len(documentIDs))
	for _, id := range documentIDs {
		wanted[id] = true
	}

	out := []domain.ChunkMatch{}
	if k <= 0 || s.Documents == nil {
		return out, nil
	}
	for docID, chunks := range s.chunks {
		if len(wanted) > 0 && !wanted[docID] {
			continue
		}
		doc, ok := s.Documents.Get(docID)
		if !ok || doc.OwnerID != ownerID {
			continue
		}
		for _, c := range chunks {
			if len(c.Embedding) != len(vector) {
				continue
			}
			out = append(out, domain.ChunkMatch{Chunk: c, Distance: cosineDistance(c.Embedding, vector)})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID.String() < out[j].DocumentID.String()
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// ArtifactStore is an in-memory store.ArtifactStore with insert-once
// semantics per task id.
type ArtifactStore struct {
	mu        sync.Mutex
	artifacts map[uuid.UUID]domain.Artifact

	// CreateErr and GetErr make the respective methods fail.
	CreateErr error
	GetErr    error
	// Creates counts calls to Create.
	Creates int
}

// NewArtifactStore creates an empty ArtifactStore.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{artifacts: make(map[uuid.UUID]domain.Artifact)}
}

var _ store.ArtifactStore = (*ArtifactStore)(nil)

// Create implements store.ArtifactStore.
func (s *ArtifactStore) Create(ctx context.Context, artifact *domain.Artifact) (*domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Creates++
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	if existing, ok := s.artifacts[artifact.TaskID]; ok {
		if existing.OwnerID != artifact.OwnerID {
			return nil, store.ErrDuplicate
		}
		return &existing, nil
	}
	s.artifacts[artifact.TaskID] = *artifact
	return artifact, nil
}

// GetByTaskID implements store.ArtifactStore.
func (s *ArtifactStore) GetByTaskID(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	a, ok := s.artifacts[taskID]
	if !ok || a.OwnerID != ownerID {
		return nil, store.ErrArtifactNotFound
	}
	return &a, nil
}

// Count returns the number of stored artifacts.
func (s *ArtifactStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.artifacts)
}

// TaskStore is an in-memory store.TaskStore.
type TaskStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]domain.TaskRecord

	Err error
	// History lists every upserted status per task, in order.
	History map[uuid.UUID][]domain.TaskStatus
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		records: make(map[uuid.UUID]domain.TaskRecord),
		History: make(map[uuid.UUID][]domain.TaskStatus),
	}
}

var _ store.TaskStore = (*TaskStore)(nil)

// Upsert implements store.TaskStore.
func (s *TaskStore) Upsert(ctx context.Context, record *domain.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if err := record.Validate(); err != nil {
		return err
	}
	r := *record
	if existing, ok := s.records[record.TaskID]; ok {
		if existing.OwnerID != record.OwnerID {
			return store.ErrTaskNotFound
		}
		r.CreatedAt = existing.CreatedAt
	}
	s.records[record.TaskID] = r
	s.History[record.TaskID] = append(s.History[record.TaskID], record.Status)
	return nil
}

// GetByID implements store.TaskStore.
func (s *TaskStore) GetByID(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	r, ok := s.records[taskID]
	if !ok || r.OwnerID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	return &r, nil
}

// Statuses returns the recorded status history of a task.
func (s *TaskStore) Statuses(taskID uuid.UUID) []domain.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TaskStatus(nil), s.History[taskID]...)
}
