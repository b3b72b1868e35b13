package staking

import (
	"context"

	"github.com/R3E-Network/course_marketplace/internal/gt"
)

// Store defines the persistence interface for staking state.
type Store interface {
	GetAccount(ctx context.Context, tier uint64, account string) (AccountRecord, error)
	PutAccount(ctx context.Context, tier uint64, rec AccountRecord) error
	DeleteAccount(ctx context.Context, tier uint64, account string) error
	// ListAccounts returns a tier's accounts ordered by Index.
	ListAccounts(ctx context.Context, tier uint64) ([]AccountRecord, error)
	Tiers(ctx context.Context) ([]uint64, error)

	GetTotal(ctx context.Context, tier uint64) (gt.Amount, error)
	SaveTotal(ctx context.Context, tier uint64, total gt.Amount) error
}
