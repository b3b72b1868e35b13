package coursetoken

import "context"

// Store defines the persistence interface for a single collection's state.
type Store interface {
	// Collection state
	LoadCollection(ctx context.Context) (Collection, error)
	SaveCollection(ctx context.Context, c Collection) error

	// Token state
	GetToken(ctx context.Context, tokenID uint64) (Token, error)
	PutToken(ctx context.Context, token Token) error
	ListTokens(ctx context.Context) ([]Token, error)
	CountByOwner(ctx context.Context, owner string) (uint64, error)
}
