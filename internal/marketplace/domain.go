// Package marketplace maintains the ledger of active course token listings
// and executes escrowed purchase flows against the payment token.
package marketplace

import (
	"time"

	"github.com/R3E-Network/course_marketplace/internal/gt"
)

// Key identifies a listing by collection and token id. One token can be
// listed at most once.
type Key struct {
	Collection string `json:"collection"`
	TokenID    uint64 `json:"token_id"`
}

// Listing is one active sale offer. Index is the listing's position in the
// dense listing array and must always match its true position there.
type Listing struct {
	Key
	Lister    string    `json:"lister"`
	Price     gt.Amount `json:"price"`
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
