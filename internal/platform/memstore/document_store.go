package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/store"
)

// DocumentStore is an in-memory store.DocumentStore.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]domain.Document
}

var _ store.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates an empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[uuid.UUID]domain.Document)}
}

// Create implements store.DocumentStore.
func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("%w: document %s", store.ErrDuplicate, doc.ID)
	}
	s.docs[doc.ID] = *doc
	return nil
}

// Get implements store.DocumentStore.
func (s *DocumentStore) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, store.ErrDocumentNotFound
	}
	return &doc, nil
}

// SaveArtifact implements store.DocumentStore.
func (s *DocumentStore) SaveArtifact(
	ctx context.Context,
	id uuid.UUID,
	taskType domain.TaskType,
	value string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return store.ErrDocumentNotFound
	}
	if err := doc.SetArtifact(taskType, value); err != nil {
		return err
	}
	s.docs[id] = doc
	return nil
}
