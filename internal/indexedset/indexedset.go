// Package indexedset provides a dense insertion-ordered set with O(1)
// removal by key. Removal overwrites the vacated slot with the last element
// and truncates ("swap-and-pop"), patching the moved element's recorded
// index. The marketplace listing ledger and the staking user sets share it.
package indexedset

// Set holds keys in a dense array plus a key-to-index lookup.
// The zero value is not usable; call New.
type Set[K comparable] struct {
	keys  []K
	index map[K]int
}

// New creates an empty set.
func New[K comparable]() *Set[K] {
	return &Set[K]{index: make(map[K]int)}
}

// Len returns the number of keys.
func (s *Set[K]) Len() int { return len(s.keys) }

// Contains reports whether key is present.
func (s *Set[K]) Contains(key K) bool {
	_, ok := s.index[key]
	return ok
}

// Index returns the dense-array position of key.
func (s *Set[K]) Index(key K) (int, bool) {
	i, ok := s.index[key]
	return i, ok
}

// At returns the key at position i. i must be in [0, Len).
func (s *Set[K]) At(i int) K { return s.keys[i] }

// Insert appends key if absent. Returns false if it was already present.
func (s *Set[K]) Insert(key K) bool {
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = len(s.keys)
	s.keys = append(s.keys, key)
	return true
}

// RemoveByKey removes key via swap-and-pop. It returns the key that was
// moved into the vacated slot (when one was) so callers can patch external
// records that track positions.
func (s *Set[K]) RemoveByKey(key K) (moved K, wasMoved, removed bool) {
	i, ok := s.index[key]
	if !ok {
		return moved, false, false
	}
	last := len(s.keys) - 1
	if i != last {
		moved = s.keys[last]
		s.keys[i] = moved
		s.index[moved] = i
		wasMoved = true
	}
	s.keys = s.keys[:last]
	delete(s.index, key)
	return moved, wasMoved, true
}

// Keys returns a copy of the keys in dense-array order.
func (s *Set[K]) Keys() []K {
	out := make([]K, len(s.keys))
	copy(out, s.keys)
	return out
}

// ForEachOrdered calls fn for every key in dense-array order until fn
// returns false.
func (s *Set[K]) ForEachOrdered(fn func(i int, key K) bool) {
	for i, k := range s.keys {
		if !fn(i, k) {
			return
		}
	}
}
