package talentmatch

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore provides an in-memory implementation of Store for testing.
type MemoryStore struct {
	mu        sync.RWMutex
	matches   map[string]Match
	scheme    ShareScheme
	hasScheme bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{matches: make(map[string]Match)}
}

func (s *MemoryStore) GetMatch(ctx context.Context, key string) (Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[key]
	if !ok {
		return Match{}, fmt.Errorf("match not found: %s", key)
	}
	return m, nil
}

func (s *MemoryStore) PutMatch(ctx context.Context, m Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.Key] = m
	return nil
}

func (s *MemoryStore) DeleteMatch(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, key)
	return nil
}

func (s *MemoryStore) GetScheme(ctx context.Context) (ShareScheme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasScheme {
		return ShareScheme{}, fmt.Errorf("scheme not initialized")
	}
	return s.scheme, nil
}

func (s *MemoryStore) SaveScheme(ctx context.Context, scheme ShareScheme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheme = scheme
	s.hasScheme = true
	return nil
}
