package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
	"github.com/sehgal-vip/travel-agent/session"
)

// InMemoryStore keeps conversation documents in process memory.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string]session.Document
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string]session.Document)}
}

// Load returns a copy of the stored document.
func (s *InMemoryStore) Load(ctx context.Context, id string) (session.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, errorskg.ErrNotFound)
	}
	return doc.Clone(), nil
}

// Save merges doc into the stored document.
func (s *InMemoryStore) Save(ctx context.Context, id string, doc session.Document) error {
	if id == "" {
		return fmt.Errorf("conversation id cannot be empty: %w", errorskg.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[id]
	if !ok {
		cur = session.Document{}
		s.docs[id] = cur
	}
	cur.Merge(doc)
	return nil
}

// Delete removes a document. Unknown ids are ignored.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

// List returns all ids in sorted order.
func (s *InMemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Exists reports whether id is stored.
func (s *InMemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[id]
	return ok, nil
}

// Count returns the number of stored conversations.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
