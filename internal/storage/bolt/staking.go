package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"go.etcd.io/bbolt"

	"github.com/R3E-Network/course_marketplace/internal/gt"
	"github.com/R3E-Network/course_marketplace/internal/staking"
)

// StakeStore persists staking accounts keyed by big-endian tier plus
// account, and per-tier deposit totals keyed by tier alone.
type StakeStore struct {
	db *bbolt.DB
}

var _ staking.Store = (*StakeStore)(nil)

func (s *StakeStore) GetAccount(ctx context.Context, tier uint64, account string) (staking.AccountRecord, error) {
	var rec staking.AccountRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketStakeAccts).Get(stakeKey(tier, account))
		if data == nil {
			return fmt.Errorf("account not found: %s", account)
		}
		return decode(data, &rec)
	})
	return rec, err
}

func (s *StakeStore) PutAccount(ctx context.Context, tier uint64, rec staking.AccountRecord) error {
	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStakeAccts).Put(stakeKey(tier, rec.Account), data)
	})
}

func (s *StakeStore) DeleteAccount(ctx context.Context, tier uint64, account string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStakeAccts).Delete(stakeKey(tier, account))
	})
}

func (s *StakeStore) ListAccounts(ctx context.Context, tier uint64) ([]staking.AccountRecord, error) {
	var out []staking.AccountRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketStakeAccts).Cursor()
		prefix := append(u64Key(tier), '/')
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec staking.AccountRecord
			if err := decode(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *StakeStore) Tiers(ctx context.Context) ([]uint64, error) {
	var out []uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStakeTotals).ForEach(func(k, _ []byte) error {
			out = append(out, binary.BigEndian.Uint64(k))
			return nil
		})
	})
	return out, err
}

func (s *StakeStore) GetTotal(ctx context.Context, tier uint64) (gt.Amount, error) {
	var total uint256.Int
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketStakeTotals).Get(u64Key(tier))
		if data == nil {
			return fmt.Errorf("no total for tier %d", tier)
		}
		return decode(data, &total)
	})
	if err != nil {
		return nil, err
	}
	return &total, nil
}

func (s *StakeStore) SaveTotal(ctx context.Context, tier uint64, total gt.Amount) error {
	data, err := encode(total)
	if err != nil {
		return fmt.Errorf("encode total: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStakeTotals).Put(u64Key(tier), data)
	})
}

func stakeKey(tier uint64, account string) []byte {
	return append(append(u64Key(tier), '/'), account...)
}
