package bolt

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/R3E-Network/course_marketplace/internal/talentmatch"
)

var schemeKey = []byte("current")

// MatchStore persists talent matches and the global share scheme.
type MatchStore struct {
	db *bbolt.DB
}

var _ talentmatch.Store = (*MatchStore)(nil)

func (s *MatchStore) GetMatch(ctx context.Context, key string) (talentmatch.Match, error) {
	var m talentmatch.Match
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMatches).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("match not found: %s", key)
		}
		return decode(data, &m)
	})
	return m, err
}

func (s *MatchStore) PutMatch(ctx context.Context, m talentmatch.Match) error {
	data, err := encode(m)
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMatches).Put([]byte(m.Key), data)
	})
}

func (s *MatchStore) DeleteMatch(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMatches).Delete([]byte(key))
	})
}

func (s *MatchStore) GetScheme(ctx context.Context) (talentmatch.ShareScheme, error) {
	var scheme talentmatch.ShareScheme
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketScheme).Get(schemeKey)
		if data == nil {
			return fmt.Errorf("share scheme not initialized")
		}
		return decode(data, &scheme)
	})
	return scheme, err
}

func (s *MatchStore) SaveScheme(ctx context.Context, scheme talentmatch.ShareScheme) error {
	data, err := encode(scheme)
	if err != nil {
		return fmt.Errorf("encode scheme: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScheme).Put(schemeKey, data)
	})
}
