// Package staking maintains per-account, per-incentive-tier lists of
// time-locked deposits in the payment token.
package staking

import (
	"time"

	"github.com/R3E-Network/course_marketplace/internal/gt"
)

// Position is one time-locked deposit. It unlocks once DepositedAt plus
// DepositDuration has passed.
type Position struct {
	Amount          gt.Amount `json:"amount"`
	DepositDuration int64     `json:"deposit_duration"` // Seconds
	DepositedAt     time.Time `json:"deposited_at"`
}

// UnlockedAt returns the first instant the position may be withdrawn.
func (p Position) UnlockedAt() time.Time {
	return p.DepositedAt.Add(time.Duration(p.DepositDuration) * time.Second)
}

// AccountRecord is one account's open positions within a tier. Index is
// the account's position in the tier's dense user array.
type AccountRecord struct {
	Account   string     `json:"account"`
	Index     int        `json:"index"`
	Positions []Position `json:"positions"`
}
