// Package bolt persists the marketplace's ledgers in a bbolt database.
package bolt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var (
	bucketCollections = []byte("collections")
	bucketTokens      = []byte("tokens")
	bucketListings    = []byte("listings")
	bucketMatches     = []byte("matches")
	bucketScheme      = []byte("scheme")
	bucketStakeAccts  = []byte("stake_accounts")
	bucketStakeTotals = []byte("stake_totals")
)

// DB wraps a bbolt database holding every component's durable state.
type DB struct {
	db *bbolt.DB
}

// Open opens or creates the database at path. The parent directory is
// created if it does not exist.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("bolt: create directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt: open db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			bucketCollections, bucketTokens, bucketListings,
			bucketMatches, bucketScheme, bucketStakeAccts, bucketStakeTotals,
		}
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: create buckets: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error { return d.db.Close() }

// CourseTokens returns a collection-scoped course token store.
func (d *DB) CourseTokens(collectionID string) *CourseTokenStore {
	return &CourseTokenStore{db: d.db, collection: collectionID}
}

// Listings returns the marketplace listing store.
func (d *DB) Listings() *ListingStore { return &ListingStore{db: d.db} }

// Matches returns the talent match store.
func (d *DB) Matches() *MatchStore { return &MatchStore{db: d.db} }

// Stakes returns the staking store.
func (d *DB) Stakes() *StakeStore { return &StakeStore{db: d.db} }

func u64Key(v uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, v)
	return k
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
