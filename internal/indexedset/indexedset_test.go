package indexedset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndLookup(t *testing.T) {
	s := New[string]()

	assert.True(t, s.Insert("a"))
	assert.True(t, s.Insert("b"))
	assert.False(t, s.Insert("a"), "duplicate insert must be rejected")

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"a", "b"}, s.Keys())

	i, ok := s.Index("b")
	require.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, "b", s.At(1))
}

func TestRemoveMiddleSwapsLast(t *testing.T) {
	s := New[string]()
	for _, k := range []string{"a", "b", "c", "d"} {
		s.Insert(k)
	}

	moved, wasMoved, removed := s.RemoveByKey("b")
	require.True(t, removed)
	require.True(t, wasMoved)
	assert.Equal(t, "d", moved)
	assert.Equal(t, []string{"a", "d", "c"}, s.Keys())

	i, ok := s.Index("d")
	require.True(t, ok)
	assert.Equal(t, 1, i)
	assert.False(t, s.Contains("b"))
}

func TestRemoveLastNoSwap(t *testing.T) {
	s := New[string]()
	s.Insert("a")
	s.Insert("b")

	_, wasMoved, removed := s.RemoveByKey("b")
	require.True(t, removed)
	assert.False(t, wasMoved)
	assert.Equal(t, []string{"a"}, s.Keys())

	_, _, removed = s.RemoveByKey("zzz")
	assert.False(t, removed)
}

// Every surviving key's recorded index must equal its true position after
// any sequence of inserts and removals.
func TestIndexInvariant(t *testing.T) {
	s := New[int]()
	for i := 0; i < 64; i++ {
		s.Insert(i)
	}
	// Remove every third key, front-loaded to force many swaps.
	for i := 0; i < 64; i += 3 {
		_, _, removed := s.RemoveByKey(i)
		require.True(t, removed)
	}

	s.ForEachOrdered(func(i int, key int) bool {
		idx, ok := s.Index(key)
		require.True(t, ok, fmt.Sprintf("key %d missing from lookup", key))
		assert.Equal(t, i, idx, "recorded index must match position")
		return true
	})
	assert.Equal(t, 64-22, s.Len())
}
