package coursetoken

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore provides an in-memory implementation of Store for testing.
type MemoryStore struct {
	mu         sync.RWMutex
	collection Collection
	hasColl    bool
	tokens     map[uint64]Token
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[uint64]Token)}
}

func (s *MemoryStore) LoadCollection(ctx context.Context) (Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasColl {
		return Collection{}, fmt.Errorf("collection not initialized")
	}
	return s.collection, nil
}

func (s *MemoryStore) SaveCollection(ctx context.Context, c Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection = c
	s.hasColl = true
	return nil
}

func (s *MemoryStore) GetToken(ctx context.Context, tokenID uint64) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return Token{}, fmt.Errorf("token not found: %d", tokenID)
	}
	return token, nil
}

func (s *MemoryStore) PutToken(ctx context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = token
	return nil
}

func (s *MemoryStore) ListTokens(ctx context.Context) ([]Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CountByOwner(ctx context.Context, owner string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n uint64
	for _, t := range s.tokens {
		if t.Owner == owner {
			n++
		}
	}
	return n, nil
}
