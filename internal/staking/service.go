package staking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/R3E-Network/course_marketplace/internal/events"
	"github.com/R3E-Network/course_marketplace/internal/gt"
	"github.com/R3E-Network/course_marketplace/internal/indexedset"
	"github.com/R3E-Network/course_marketplace/internal/metrics"
	"github.com/R3E-Network/course_marketplace/pkg/logger"
)

// Errors
var (
	ErrStakeOngoing = errors.New("Stake duration still ongoing")
	ErrAmountZero   = errors.New("stake amount must be greater than 0")
	ErrNoPosition   = errors.New("position does not exist")
)

// Service is the staking ledger. Deposits pull into the service's own
// account and sit there until withdrawn; withdrawal is gated purely on a
// comparison against the injected clock, never on wall-clock waiting.
type Service struct {
	addr   string
	ledger gt.Ledger
	store  Store
	events events.Sink
	log    *logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	users map[uint64]*indexedset.Set[string]
}

// Params configures the service.
type Params struct {
	Address string // Service's own ledger account, holds all deposits
	Ledger  gt.Ledger
	Store   Store
	Events  events.Sink
	Logger  *logger.Logger
	Now     func() time.Time // Defaults to time.Now
}

// New constructs the service and rebuilds the per-tier user sets from the
// store.
func New(ctx context.Context, p Params) (*Service, error) {
	if p.Events == nil {
		p.Events = events.Discard
	}
	if p.Logger == nil {
		p.Logger = logger.NewDefault("staking")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	s := &Service{
		addr:   p.Address,
		ledger: p.Ledger,
		store:  p.Store,
		events: p.Events,
		log:    p.Logger,
		now:    p.Now,
		users:  make(map[uint64]*indexedset.Set[string]),
	}
	tiers, err := p.Store.Tiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	for _, tier := range tiers {
		recs, err := p.Store.ListAccounts(ctx, tier)
		if err != nil {
			return nil, fmt.Errorf("list accounts for tier %d: %w", tier, err)
		}
		set := indexedset.New[string]()
		for _, rec := range recs {
			set.Insert(rec.Account)
		}
		s.users[tier] = set
	}
	return s, nil
}

// Address returns the service's own ledger account.
func (s *Service) Address() string { return s.addr }

// Stake deposits amount for duration seconds into tier. The amount is
// pulled from caller; callers approve the service account first.
func (s *Service) Stake(ctx context.Context, caller string, amount gt.Amount, duration int64, tier uint64) error {
	if gt.IsZero(amount) {
		return ErrAmountZero
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.TransferFrom(s.addr, caller, s.addr, amount); err != nil {
		return fmt.Errorf("stake deposit: %w", err)
	}

	rec, err := s.store.GetAccount(ctx, tier, caller)
	if err != nil {
		rec = AccountRecord{Account: caller}
	}
	rec.Positions = append(rec.Positions, Position{
		Amount:          amount.Clone(),
		DepositDuration: duration,
		DepositedAt:     s.now().UTC(),
	})

	// Store failures past this point refund the deposit and unwind any
	// partial record so no funds sit in the pool without a position.
	set := s.tierUsers(tier)
	inserted := set.Insert(caller)
	rec.Index, _ = set.Index(caller)
	if err := s.store.PutAccount(ctx, tier, rec); err != nil {
		if inserted {
			set.RemoveByKey(caller)
		}
		if rerr := s.ledger.Transfer(s.addr, caller, amount); rerr != nil {
			return fmt.Errorf("put account: %v (refund: %w)", err, rerr)
		}
		return fmt.Errorf("put account: %w", err)
	}

	total, err := s.store.GetTotal(ctx, tier)
	if err != nil {
		total = gt.Zero()
	}
	if err := s.store.SaveTotal(ctx, tier, new(uint256.Int).Add(total, amount)); err != nil {
		rec.Positions = rec.Positions[:len(rec.Positions)-1]
		var rerr error
		if len(rec.Positions) == 0 {
			rerr = s.removeAccount(ctx, tier, caller)
		} else {
			rerr = s.store.PutAccount(ctx, tier, rec)
		}
		if rerr != nil {
			return fmt.Errorf("save total: %v (unwind position: %w)", err, rerr)
		}
		if rerr := s.ledger.Transfer(s.addr, caller, amount); rerr != nil {
			return fmt.Errorf("save total: %v (refund: %w)", err, rerr)
		}
		return fmt.Errorf("save total: %w", err)
	}

	s.events.Emit(events.New(events.TypeStakedToken, "", map[string]any{
		"account":  caller,
		"tier":     tier,
		"amount":   amount.Dec(),
		"duration": duration,
	}))
	metrics.RecordStakeOp("stake")
	s.log.WithField("account", caller).
		WithField("tier", tier).
		WithField("amount", amount.Dec()).
		Info("stake deposited")
	return nil
}

// Withdraw closes the caller's position at positionIndex in tier and
// returns its amount. Fails while the position's duration is still
// running. Sibling positions keep their relative order except for the
// swap-and-pop move into the vacated slot.
func (s *Service) Withdraw(ctx context.Context, caller string, tier uint64, positionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.store.GetAccount(ctx, tier, caller)
	if err != nil {
		return ErrNoPosition
	}
	if positionIndex < 0 || positionIndex >= len(rec.Positions) {
		return ErrNoPosition
	}
	pos := rec.Positions[positionIndex]
	if s.now().Before(pos.UnlockedAt()) {
		return ErrStakeOngoing
	}

	if err := s.ledger.Transfer(s.addr, caller, pos.Amount); err != nil {
		return fmt.Errorf("stake payout: %w", err)
	}

	// Swap-and-pop within the position list.
	last := len(rec.Positions) - 1
	rec.Positions[positionIndex] = rec.Positions[last]
	rec.Positions = rec.Positions[:last]

	if len(rec.Positions) == 0 {
		if err := s.removeAccount(ctx, tier, caller); err != nil {
			return err
		}
	} else if err := s.store.PutAccount(ctx, tier, rec); err != nil {
		return fmt.Errorf("put account: %w", err)
	}

	total, err := s.store.GetTotal(ctx, tier)
	if err != nil {
		return fmt.Errorf("get total: %w", err)
	}
	if err := s.store.SaveTotal(ctx, tier, new(uint256.Int).Sub(total, pos.Amount)); err != nil {
		return fmt.Errorf("save total: %w", err)
	}

	s.events.Emit(events.New(events.TypeWithdrawToken, "", map[string]any{
		"account": caller,
		"tier":    tier,
		"amount":  pos.Amount.Dec(),
	}))
	metrics.RecordStakeOp("withdraw")
	s.log.WithField("account", caller).
		WithField("tier", tier).
		WithField("amount", pos.Amount.Dec()).
		Info("stake withdrawn")
	return nil
}

// removeAccount drops an account from a tier's user set swap-and-pop style
// and patches the moved account's persisted index.
func (s *Service) removeAccount(ctx context.Context, tier uint64, account string) error {
	if err := s.store.DeleteAccount(ctx, tier, account); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	set := s.tierUsers(tier)
	moved, wasMoved, _ := set.RemoveByKey(account)
	if !wasMoved {
		return nil
	}
	mr, err := s.store.GetAccount(ctx, tier, moved)
	if err != nil {
		return fmt.Errorf("get moved account: %w", err)
	}
	mr.Index, _ = set.Index(moved)
	if err := s.store.PutAccount(ctx, tier, mr); err != nil {
		return fmt.Errorf("patch moved account: %w", err)
	}
	return nil
}

// GetAllUser returns the accounts with at least one open position in tier,
// in insertion order.
func (s *Service) GetAllUser(tier uint64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tierUsers(tier).Keys()
}

// GetUserPosition returns an account's open positions in tier.
func (s *Service) GetUserPosition(ctx context.Context, account string, tier uint64) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.store.GetAccount(ctx, tier, account)
	if err != nil {
		return nil, nil
	}
	return append([]Position(nil), rec.Positions...), nil
}

// TotalDeposits returns the aggregate open deposits in tier.
func (s *Service) TotalDeposits(ctx context.Context, tier uint64) (gt.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, err := s.store.GetTotal(ctx, tier)
	if err != nil {
		return gt.Zero(), nil
	}
	return total.Clone(), nil
}

func (s *Service) tierUsers(tier uint64) *indexedset.Set[string] {
	set, ok := s.users[tier]
	if !ok {
		set = indexedset.New[string]()
		s.users[tier] = set
	}
	return set
}
