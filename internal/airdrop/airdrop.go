// Package airdrop batch-distributes payment tokens from an admin's balance.
package airdrop

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/R3E-Network/course_marketplace/internal/accesscontrol"
	"github.com/R3E-Network/course_marketplace/internal/events"
	"github.com/R3E-Network/course_marketplace/internal/gt"
	"github.com/R3E-Network/course_marketplace/pkg/logger"
)

// ErrLengthMismatch is returned when recipients and amounts differ in length.
var ErrLengthMismatch = errors.New("recipients and amounts length mismatch")

// Service sends one-shot batch transfers. The whole batch is pulled from
// the caller up front, so a batch either lands in full or not at all.
type Service struct {
	addr   string
	acl    *accesscontrol.List
	ledger gt.Ledger
	events events.Sink
	log    *logger.Logger
}

// Params configures the service.
type Params struct {
	Address string
	Owner   string
	Ledger  gt.Ledger
	Events  events.Sink
	Logger  *logger.Logger
}

// New constructs the service.
func New(p Params) *Service {
	if p.Events == nil {
		p.Events = events.Discard
	}
	if p.Logger == nil {
		p.Logger = logger.NewDefault("airdrop")
	}
	return &Service{
		addr:   p.Address,
		acl:    accesscontrol.New(p.Owner),
		ledger: p.Ledger,
		events: p.Events,
		log:    p.Logger,
	}
}

// Address returns the service's own ledger account.
func (s *Service) Address() string { return s.addr }

// SetAdmin grants or revokes the admin flag. Owner-only.
func (s *Service) SetAdmin(caller, account string, enabled bool) error {
	return s.acl.SetAdmin(caller, account, enabled)
}

// Airdrop sends amounts[i] to recipients[i] for every i, funded by caller.
// Admin-only.
func (s *Service) Airdrop(ctx context.Context, caller string, recipients []string, amounts []gt.Amount) error {
	if err := s.acl.Require(caller); err != nil {
		return err
	}
	if len(recipients) != len(amounts) {
		return ErrLengthMismatch
	}

	total := uint256.NewInt(0)
	for _, a := range amounts {
		if gt.IsZero(a) {
			continue
		}
		total = new(uint256.Int).Add(total, a)
	}
	if err := s.ledger.TransferFrom(s.addr, caller, s.addr, total); err != nil {
		return fmt.Errorf("airdrop funding: %w", err)
	}
	for i, recipient := range recipients {
		if err := s.ledger.Transfer(s.addr, recipient, amounts[i]); err != nil {
			return fmt.Errorf("airdrop to %s: %w", recipient, err)
		}
	}

	s.events.Emit(events.New(events.TypeAirdropSent, "", map[string]any{
		"sender": caller,
		"count":  len(recipients),
		"total":  total.Dec(),
	}))
	s.log.WithField("count", len(recipients)).
		WithField("total", total.Dec()).
		Info("airdrop sent")
	return nil
}
