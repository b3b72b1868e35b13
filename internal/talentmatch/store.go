package talentmatch

import (
	"context"

	"github.com/R3E-Network/course_marketplace/internal/coursetoken"
)

// Store defines the persistence interface for matches and the share scheme.
type Store interface {
	GetMatch(ctx context.Context, key string) (Match, error)
	PutMatch(ctx context.Context, m Match) error
	DeleteMatch(ctx context.Context, key string) error

	GetScheme(ctx context.Context) (ShareScheme, error)
	SaveScheme(ctx context.Context, s ShareScheme) error
}

// CollectionSource exposes the collection state of a registered course
// token collection; confirmation reads its teacher schedule.
type CollectionSource interface {
	Collection(ctx context.Context) (coursetoken.Collection, error)
}
