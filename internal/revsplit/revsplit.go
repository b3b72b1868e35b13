// Package revsplit computes proportional revenue splits in basis points.
//
// Splits use floor integer division; whatever the floors leave behind goes
// to a designated residual recipient, so the payouts always sum to the
// input amount exactly. Recipients that resolve to the same address are
// merged into one payout and zero payouts are elided, so executing a split
// never produces a zero-value or duplicate transfer.
package revsplit

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/R3E-Network/course_marketplace/internal/gt"
)

// TotalBasisPoints is 100% expressed in basis points.
const TotalBasisPoints = 10000

var (
	// ErrShareSum is returned when a share scheme that must account for the
	// whole amount does not sum to 10000 basis points.
	ErrShareSum = errors.New("Shares do not sum to 10000")

	// ErrShareOverflow is returned when shares claim more than 100%.
	ErrShareOverflow = errors.New("shares exceed 10000 basis points")
)

// Share is one recipient's slice of a split, in basis points.
type Share struct {
	Recipient   string `json:"recipient"`
	BasisPoints uint64 `json:"basis_points"`
}

// Payout is one computed transfer.
type Payout struct {
	Recipient string
	Amount    gt.Amount
}

// Sum returns the total basis points claimed by shares.
func Sum(shares []Share) uint64 {
	var total uint64
	for _, s := range shares {
		total += s.BasisPoints
	}
	return total
}

// ValidateExact returns ErrShareSum unless shares sum to exactly 10000.
func ValidateExact(shares []Share) error {
	if Sum(shares) != TotalBasisPoints {
		return ErrShareSum
	}
	return nil
}

// Portion returns total * bp / 10000, floored.
func Portion(total gt.Amount, bp uint64) gt.Amount {
	if gt.IsZero(total) || bp == 0 {
		return uint256.NewInt(0)
	}
	scaled := new(uint256.Int).Mul(total, uint256.NewInt(bp))
	return scaled.Div(scaled, uint256.NewInt(TotalBasisPoints))
}

// Split apportions total across shares, sending the floor-division
// remainder to residual. Shares may sum to at most 10000 basis points;
// the gap below 10000 also accrues to residual. Payouts for the same
// address are merged in first-appearance order and zero payouts dropped.
func Split(total gt.Amount, shares []Share, residual string) ([]Payout, error) {
	if Sum(shares) > TotalBasisPoints {
		return nil, ErrShareOverflow
	}
	if gt.IsZero(total) {
		return nil, nil
	}

	distributed := uint256.NewInt(0)
	order := make([]string, 0, len(shares)+1)
	amounts := make(map[string]*uint256.Int, len(shares)+1)
	add := func(recipient string, amount *uint256.Int) {
		if amount.IsZero() {
			return
		}
		if prev, ok := amounts[recipient]; ok {
			amounts[recipient] = new(uint256.Int).Add(prev, amount)
			return
		}
		order = append(order, recipient)
		amounts[recipient] = amount
	}

	for _, s := range shares {
		cut := Portion(total, s.BasisPoints)
		distributed = new(uint256.Int).Add(distributed, cut)
		add(s.Recipient, cut)
	}
	add(residual, new(uint256.Int).Sub(total, distributed))

	payouts := make([]Payout, 0, len(order))
	for _, r := range order {
		payouts = append(payouts, Payout{Recipient: r, Amount: amounts[r]})
	}
	return payouts, nil
}

// Merge collapses payouts to the same recipient into one, preserving
// first-appearance order, and drops zero payouts. Used when payouts from
// several split stages settle in a single distribution.
func Merge(payouts []Payout) []Payout {
	order := make([]string, 0, len(payouts))
	amounts := make(map[string]*uint256.Int, len(payouts))
	for _, p := range payouts {
		if gt.IsZero(p.Amount) {
			continue
		}
		if prev, ok := amounts[p.Recipient]; ok {
			amounts[p.Recipient] = new(uint256.Int).Add(prev, p.Amount)
			continue
		}
		order = append(order, p.Recipient)
		amounts[p.Recipient] = p.Amount
	}
	out := make([]Payout, 0, len(order))
	for _, r := range order {
		out = append(out, Payout{Recipient: r, Amount: amounts[r]})
	}
	return out
}

// Execute runs the payouts as plain transfers out of from. Callers must
// already hold the full amount at from (escrow-pull first), which keeps the
// distribution all-or-nothing: once the pull succeeded no individual payout
// can fail for lack of funds.
func Execute(ledger gt.Ledger, from string, payouts []Payout) error {
	for _, p := range payouts {
		if err := ledger.Transfer(from, p.Recipient, p.Amount); err != nil {
			return fmt.Errorf("payout to %s: %w", p.Recipient, err)
		}
	}
	return nil
}
