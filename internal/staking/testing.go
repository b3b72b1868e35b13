package staking

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"github.com/R3E-Network/course_marketplace/internal/gt"
)

// MemoryStore provides an in-memory implementation of Store for testing.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[uint64]map[string]AccountRecord
	totals   map[uint64]*uint256.Int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uint64]map[string]AccountRecord),
		totals:   make(map[uint64]*uint256.Int),
	}
}

func (s *MemoryStore) GetAccount(ctx context.Context, tier uint64, account string) (AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.accounts[tier][account]
	if !ok {
		return AccountRecord{}, fmt.Errorf("account not found: %s", account)
	}
	return rec, nil
}

func (s *MemoryStore) PutAccount(ctx context.Context, tier uint64, rec AccountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.accounts[tier]
	if !ok {
		m = make(map[string]AccountRecord)
		s.accounts[tier] = m
	}
	m[rec.Account] = rec
	return nil
}

func (s *MemoryStore) DeleteAccount(ctx context.Context, tier uint64, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts[tier], account)
	return nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context, tier uint64) ([]AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccountRecord, 0, len(s.accounts[tier]))
	for _, rec := range s.accounts[tier] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *MemoryStore) Tiers(ctx context.Context) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint64, 0, len(s.accounts))
	for tier := range s.accounts {
		out = append(out, tier)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryStore) GetTotal(ctx context.Context, tier uint64) (gt.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total, ok := s.totals[tier]
	if !ok {
		return nil, fmt.Errorf("no total for tier %d", tier)
	}
	return total.Clone(), nil
}

func (s *MemoryStore) SaveTotal(ctx context.Context, tier uint64, total gt.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[tier] = total.Clone()
	return nil
}
