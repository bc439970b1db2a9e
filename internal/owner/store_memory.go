package owner

import (
	"context"
	"sync"

	"quorumgate/pkg/platform/sentinel"
)

// InMemoryStore keeps the owner set in process memory. Used in tests and in
// dev mode when no Postgres URL is configured.
type InMemoryStore struct {
	mu        sync.RWMutex
	order     []string
	members   map[string]struct{}
	threshold int
	hasConfig bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{members: make(map[string]struct{})}
}

func (s *InMemoryStore) Add(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[ownerID]; ok {
		return sentinel.ErrConflict
	}
	s.members[ownerID] = struct{}{}
	s.order = append(s.order, ownerID)
	return nil
}

func (s *InMemoryStore) IsOwner(_ context.Context, ownerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[ownerID]
	return ok, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.order...), nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

func (s *InMemoryStore) Threshold(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasConfig {
		return 0, sentinel.ErrNotFound
	}
	return s.threshold, nil
}

func (s *InMemoryStore) SetThreshold(_ context.Context, threshold int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
	s.hasConfig = true
	return nil
}
