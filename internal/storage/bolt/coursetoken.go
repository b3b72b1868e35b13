package bolt

import (
	"bytes"
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/R3E-Network/course_marketplace/internal/coursetoken"
)

// CourseTokenStore persists one collection's state. Collection records are
// keyed by collection id; tokens by collection id plus a big-endian token
// id, so a prefix scan walks a collection's tokens in id order.
type CourseTokenStore struct {
	db         *bbolt.DB
	collection string
}

var _ coursetoken.Store = (*CourseTokenStore)(nil)

func (s *CourseTokenStore) LoadCollection(ctx context.Context) (coursetoken.Collection, error) {
	var c coursetoken.Collection
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCollections).Get([]byte(s.collection))
		if data == nil {
			return fmt.Errorf("collection not found: %s", s.collection)
		}
		return decode(data, &c)
	})
	return c, err
}

func (s *CourseTokenStore) SaveCollection(ctx context.Context, c coursetoken.Collection) error {
	data, err := encode(c)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCollections).Put([]byte(s.collection), data)
	})
}

func (s *CourseTokenStore) GetToken(ctx context.Context, tokenID uint64) (coursetoken.Token, error) {
	var t coursetoken.Token
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTokens).Get(s.tokenKey(tokenID))
		if data == nil {
			return fmt.Errorf("token not found: %d", tokenID)
		}
		return decode(data, &t)
	})
	return t, err
}

func (s *CourseTokenStore) PutToken(ctx context.Context, token coursetoken.Token) error {
	data, err := encode(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).Put(s.tokenKey(token.ID), data)
	})
}

func (s *CourseTokenStore) ListTokens(ctx context.Context) ([]coursetoken.Token, error) {
	var out []coursetoken.Token
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketTokens).Cursor()
		prefix := s.tokenPrefix()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var t coursetoken.Token
			if err := decode(v, &t); err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	return out, err
}

func (s *CourseTokenStore) CountByOwner(ctx context.Context, owner string) (uint64, error) {
	var n uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketTokens).Cursor()
		prefix := s.tokenPrefix()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var t coursetoken.Token
			if err := decode(v, &t); err != nil {
				return err
			}
			if t.Owner == owner {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *CourseTokenStore) tokenPrefix() []byte {
	return []byte(s.collection + "/")
}

func (s *CourseTokenStore) tokenKey(tokenID uint64) []byte {
	return append(s.tokenPrefix(), u64Key(tokenID)...)
}
