package marketplace

import (
	"context"

	"github.com/R3E-Network/course_marketplace/internal/gt"
)

// Store defines the persistence interface for listings.
type Store interface {
	GetListing(ctx context.Context, key Key) (Listing, error)
	PutListing(ctx context.Context, listing Listing) error
	DeleteListing(ctx context.Context, key Key) error
	// ListListings returns every listing ordered by Index.
	ListListings(ctx context.Context) ([]Listing, error)
}

// TokenRegistry is the token-state surface the marketplace needs from a
// collection: custody moves plus the loan and repair gates they enforce.
type TokenRegistry interface {
	OwnerOf(ctx context.Context, tokenID uint64) (string, error)
	IsLended(ctx context.Context, tokenID uint64) (bool, error)
	RepairCost(ctx context.Context, tokenID uint64) (gt.Amount, error)
	TransferByOperator(ctx context.Context, operator, from, to string, tokenID uint64) error
}
