// Package coursetoken manages per-collection course token state: ownership,
// supply limits, pricing, lending and repair flags, and the teacher share
// schedule paid out on every mint.
package coursetoken

import (
	"time"

	"github.com/R3E-Network/course_marketplace/internal/gt"
	"github.com/R3E-Network/course_marketplace/internal/revsplit"
)

// BurnAddress is the sentinel owner for burned tokens. Tokens are never
// destroyed, only parked here.
const BurnAddress = "0x000000000000000000000000000000000000dEaD"

// TeacherShare is one teacher's slice of mint revenue, in basis points.
type TeacherShare struct {
	Teacher string `json:"teacher"`
	Shares  uint64 `json:"shares"`
}

// CollectionConfig holds the operator-settable configuration of a collection.
type CollectionConfig struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Symbol          string         `json:"symbol"`
	BaseURI         string         `json:"base_uri"`
	Price           gt.Amount      `json:"price"`            // Mint price per token
	TreasuryFee     uint64         `json:"treasury_fee"`     // Basis points skimmed on secondary flows
	Treasury        string         `json:"treasury"`         // Fee and rounding-dust recipient
	SupplyLimit     uint64         `json:"supply_limit"`     // Hard cap on total mints
	TokenOrigin     uint64         `json:"token_origin"`     // First token id issued
	TransferEnabled bool           `json:"transfer_enabled"` // Owner-path transfers allowed
	AdminRepairOnly bool           `json:"admin_repair_only"`
	TeacherShares   []TeacherShare `json:"teacher_shares"`
}

// Collection is a deployed course token registry instance.
type Collection struct {
	CollectionConfig
	CurrentSupply uint64    `json:"current_supply"`
	SharesLocked  bool      `json:"shares_locked"` // Set at first mint, forbids share edits
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Token is a single course token.
type Token struct {
	ID         uint64    `json:"id"`
	Owner      string    `json:"owner"`
	URI        string    `json:"uri,omitempty"`         // Per-token override of BaseURI
	LoanID     []byte    `json:"loan_id,omitempty"`     // Non-empty means currently lent
	RepairCost gt.Amount `json:"repair_cost,omitempty"` // Non-zero means needs repair
	MintedAt   time.Time `json:"minted_at"`
}

// Lent reports whether the token is currently out on loan.
func (t Token) Lent() bool { return len(t.LoanID) > 0 }

// NeedsRepair reports whether the token carries an outstanding repair cost.
func (t Token) NeedsRepair() bool { return !gt.IsZero(t.RepairCost) }

// shareSplit converts the teacher schedule into revenue split shares.
func shareSplit(shares []TeacherShare) []revsplit.Share {
	out := make([]revsplit.Share, len(shares))
	for i, s := range shares {
		out[i] = revsplit.Share{Recipient: s.Teacher, BasisPoints: s.Shares}
	}
	return out
}

// sharesTotal sums the teacher schedule's basis points.
func sharesTotal(shares []TeacherShare) uint64 {
	var total uint64
	for _, s := range shares {
		total += s.Shares
	}
	return total
}
