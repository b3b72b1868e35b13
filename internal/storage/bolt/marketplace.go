package bolt

import (
	"context"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/R3E-Network/course_marketplace/internal/marketplace"
)

// ListingStore persists marketplace listings keyed by collection and
// token id.
type ListingStore struct {
	db *bbolt.DB
}

var _ marketplace.Store = (*ListingStore)(nil)

func (s *ListingStore) GetListing(ctx context.Context, key marketplace.Key) (marketplace.Listing, error) {
	var l marketplace.Listing
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketListings).Get(listingKey(key))
		if data == nil {
			return fmt.Errorf("listing not found: %s/%d", key.Collection, key.TokenID)
		}
		return decode(data, &l)
	})
	return l, err
}

func (s *ListingStore) PutListing(ctx context.Context, listing marketplace.Listing) error {
	data, err := encode(listing)
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketListings).Put(listingKey(listing.Key), data)
	})
}

func (s *ListingStore) DeleteListing(ctx context.Context, key marketplace.Key) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketListings).Delete(listingKey(key))
	})
}

func (s *ListingStore) ListListings(ctx context.Context) ([]marketplace.Listing, error) {
	var out []marketplace.Listing
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketListings).ForEach(func(_, v []byte) error {
			var l marketplace.Listing
			if err := decode(v, &l); err != nil {
				return err
			}
			out = append(out, l)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func listingKey(key marketplace.Key) []byte {
	return append([]byte(key.Collection+"/"), u64Key(key.TokenID)...)
}
