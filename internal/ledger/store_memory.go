package ledger

import (
	"context"
	"sync"

	"quorumgate/pkg/platform/sentinel"
)

// InMemoryStore keeps the ledger in process memory. Used in tests and in dev
// mode when no Postgres URL is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*Transaction
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, tx *Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.entries))
	stored := tx.Clone()
	stored.ID = id
	s.entries = append(s.entries, stored)
	return id, nil
}

func (s *InMemoryStore) Get(_ context.Context, id int64) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= int64(len(s.entries)) {
		return nil, sentinel.ErrNotFound
	}
	return s.entries[id].Clone(), nil
}

func (s *InMemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

func (s *InMemoryStore) Update(_ context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID < 0 || tx.ID >= int64(len(s.entries)) {
		return sentinel.ErrNotFound
	}
	s.entries[tx.ID] = tx.Clone()
	return nil
}
