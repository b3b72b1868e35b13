package marketplace

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore provides an in-memory implementation of Store for testing.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[Key]Listing
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{listings: make(map[Key]Listing)}
}

func (s *MemoryStore) GetListing(ctx context.Context, key Key) (Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	listing, ok := s.listings[key]
	if !ok {
		return Listing{}, fmt.Errorf("listing not found: %v", key)
	}
	return listing, nil
}

func (s *MemoryStore) PutListing(ctx context.Context, listing Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[listing.Key] = listing
	return nil
}

func (s *MemoryStore) DeleteListing(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listings, key)
	return nil
}

func (s *MemoryStore) ListListings(ctx context.Context) ([]Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Listing, 0, len(s.listings))
	for _, l := range s.listings {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
