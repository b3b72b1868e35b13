package talentmatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/R3E-Network/course_marketplace/internal/accesscontrol"
	"github.com/R3E-Network/course_marketplace/internal/events"
	"github.com/R3E-Network/course_marketplace/internal/gt"
	"github.com/R3E-Network/course_marketplace/internal/metrics"
	"github.com/R3E-Network/course_marketplace/internal/revsplit"
	"github.com/R3E-Network/course_marketplace/pkg/logger"
)

// Errors
var (
	ErrMatchExists       = errors.New("match already exists")
	ErrMatchDataNotFound = errors.New("match data does not exists")
	ErrMatchNotFound     = errors.New("match does not exist")
)

// Service is the talent match ledger. Confirmation pulls the full amount
// from the caller into the service's own account and distributes it in one
// pass: talent, coach, and sponsor slices per the share scheme, and the
// teacher slice (plus all rounding dust) split across the target
// collection's teacher schedule.
type Service struct {
	addr     string
	treasury string
	acl      *accesscontrol.List
	ledger   gt.Ledger
	store    Store
	events   events.Sink
	log      *logger.Logger

	mu          sync.Mutex
	collections map[string]CollectionSource
}

// Params configures the service.
type Params struct {
	Address  string // Service's own ledger account, used for escrow pulls
	Owner    string
	Treasury string // Redirect target for unassignable shares
	Ledger   gt.Ledger
	Store    Store
	Events   events.Sink
	Logger   *logger.Logger
	Scheme   ShareScheme
}

// New constructs the service and persists the initial share scheme.
func New(ctx context.Context, p Params) (*Service, error) {
	if p.Events == nil {
		p.Events = events.Discard
	}
	if p.Logger == nil {
		p.Logger = logger.NewDefault("talentmatch")
	}
	if p.Scheme.Sum() != revsplit.TotalBasisPoints {
		return nil, revsplit.ErrShareSum
	}
	if err := p.Store.SaveScheme(ctx, p.Scheme); err != nil {
		return nil, fmt.Errorf("save scheme: %w", err)
	}
	return &Service{
		addr:        p.Address,
		treasury:    p.Treasury,
		acl:         accesscontrol.New(p.Owner),
		ledger:      p.Ledger,
		store:       p.Store,
		events:      p.Events,
		log:         p.Logger,
		collections: make(map[string]CollectionSource),
	}, nil
}

// Address returns the service's own ledger account.
func (s *Service) Address() string { return s.addr }

// SetAdmin grants or revokes the admin flag. Owner-only.
func (s *Service) SetAdmin(caller, account string, enabled bool) error {
	return s.acl.SetAdmin(caller, account, enabled)
}

// RegisterCollection wires a collection so matches can reference it.
func (s *Service) RegisterCollection(id string, src CollectionSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[id] = src
}

// AddTalentMatch records a new pending agreement. Admin-only; the key must
// be unused.
func (s *Service) AddTalentMatch(ctx context.Context, caller string, m Match) error {
	if err := s.acl.Require(caller); err != nil {
		return err
	}
	if _, err := s.store.GetMatch(ctx, m.Key); err == nil {
		return ErrMatchExists
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := s.store.PutMatch(ctx, m); err != nil {
		return fmt.Errorf("put match: %w", err)
	}
	s.events.Emit(events.New(events.TypeTalentMatchAdded, m.Collection, map[string]any{
		"key":     m.Key,
		"talent":  m.Talent,
		"coach":   m.Coach,
		"sponsor": m.Sponsor,
		"teacher": m.Teacher,
	}))
	s.log.WithField("key", m.Key).Info("talent match added")
	return nil
}

// UpdateTalentMatch replaces an existing agreement. Admin-only.
func (s *Service) UpdateTalentMatch(ctx context.Context, caller string, m Match) error {
	if err := s.acl.Require(caller); err != nil {
		return err
	}
	existing, err := s.store.GetMatch(ctx, m.Key)
	if err != nil {
		return ErrMatchDataNotFound
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	if err := s.store.PutMatch(ctx, m); err != nil {
		return fmt.Errorf("put match: %w", err)
	}
	s.events.Emit(events.New(events.TypeTalentMatchUpdated, m.Collection, map[string]any{
		"key": m.Key,
	}))
	s.log.WithField("key", m.Key).Info("talent match updated")
	return nil
}

// DeleteTalentMatch removes a pending agreement. Admin-only.
func (s *Service) DeleteTalentMatch(ctx context.Context, caller, key string) error {
	if err := s.acl.Require(caller); err != nil {
		return err
	}
	m, err := s.store.GetMatch(ctx, key)
	if err != nil {
		return ErrMatchDataNotFound
	}
	if err := s.store.DeleteMatch(ctx, key); err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	s.events.Emit(events.New(events.TypeTalentMatchDeleted, m.Collection, map[string]any{
		"key": key,
	}))
	s.log.WithField("key", key).Info("talent match deleted")
	return nil
}

// ConfirmTalentMatch pays out an agreement and deletes it. Admin-only;
// one-shot, a confirmed key cannot be confirmed again. The caller funds
// the payout.
func (s *Service) ConfirmTalentMatch(ctx context.Context, caller, key string, amount gt.Amount) error {
	if err := s.acl.Require(caller); err != nil {
		return err
	}
	m, err := s.store.GetMatch(ctx, key)
	if err != nil {
		return ErrMatchNotFound
	}
	scheme, err := s.store.GetScheme(ctx)
	if err != nil {
		return fmt.Errorf("get scheme: %w", err)
	}
	payouts, err := s.computePayouts(ctx, m, scheme, amount)
	if err != nil {
		metrics.RecordMatchPayout(false)
		return err
	}

	if err := s.ledger.TransferFrom(s.addr, caller, s.addr, amount); err != nil {
		metrics.RecordMatchPayout(false)
		return fmt.Errorf("confirm payment: %w", err)
	}
	if err := revsplit.Execute(s.ledger, s.addr, payouts); err != nil {
		metrics.RecordMatchPayout(false)
		return err
	}
	if err := s.store.DeleteMatch(ctx, key); err != nil {
		return fmt.Errorf("delete match: %w", err)
	}

	s.events.Emit(events.New(events.TypeTalentMatchConfirmed, m.Collection, map[string]any{
		"key":    key,
		"amount": amount.Dec(),
	}))
	metrics.RecordMatchPayout(true)
	s.log.WithField("key", key).WithField("amount", amount.Dec()).Info("talent match confirmed")
	return nil
}

// computePayouts applies the redirect rules, the top-level scheme split,
// and the nested teacher-schedule split. Redirects run before merging:
// a slice whose party is unassignable (zero coach, sponsor equal to
// talent, zero talent) goes to the treasury instead.
func (s *Service) computePayouts(ctx context.Context, m Match, scheme ShareScheme, amount gt.Amount) ([]revsplit.Payout, error) {
	talent := m.Talent
	if talent == gt.ZeroAddress {
		talent = s.treasury
	}
	coach := m.Coach
	if coach == gt.ZeroAddress {
		coach = s.treasury
	}
	sponsor := m.Sponsor
	if sponsor == gt.ZeroAddress || sponsor == m.Talent {
		sponsor = s.treasury
	}

	talentAmt := revsplit.Portion(amount, scheme.TalentShare)
	coachAmt := revsplit.Portion(amount, scheme.CoachShare)
	sponsorAmt := revsplit.Portion(amount, scheme.SponsorShare)

	// The teacher pool absorbs all top-level rounding dust.
	pool := new(uint256.Int).Sub(amount, talentAmt)
	pool.Sub(pool, coachAmt)
	pool.Sub(pool, sponsorAmt)

	s.mu.Lock()
	src := s.collections[m.Collection]
	s.mu.Unlock()
	if src == nil {
		return nil, fmt.Errorf("unknown collection %q", m.Collection)
	}
	c, err := src.Collection(ctx)
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	shares := make([]revsplit.Share, len(c.TeacherShares))
	for i, ts := range c.TeacherShares {
		shares[i] = revsplit.Share{Recipient: ts.Teacher, BasisPoints: ts.Shares}
	}
	teacherPayouts, err := revsplit.Split(pool, shares, s.treasury)
	if err != nil {
		return nil, err
	}

	payouts := []revsplit.Payout{
		{Recipient: talent, Amount: talentAmt},
		{Recipient: coach, Amount: coachAmt},
		{Recipient: sponsor, Amount: sponsorAmt},
	}
	payouts = append(payouts, teacherPayouts...)
	return revsplit.Merge(payouts), nil
}

// UpdateShareScheme replaces the global scheme. Admin-only; the components
// must sum to exactly 10000.
func (s *Service) UpdateShareScheme(ctx context.Context, caller string, scheme ShareScheme) error {
	if err := s.acl.Require(caller); err != nil {
		return err
	}
	if scheme.Sum() != revsplit.TotalBasisPoints {
		return revsplit.ErrShareSum
	}
	if err := s.store.SaveScheme(ctx, scheme); err != nil {
		return fmt.Errorf("save scheme: %w", err)
	}
	s.events.Emit(events.New(events.TypeShareSchemeUpdated, "", map[string]any{
		"talent_share":  scheme.TalentShare,
		"coach_share":   scheme.CoachShare,
		"sponsor_share": scheme.SponsorShare,
		"teacher_share": scheme.TeacherShare,
	}))
	return nil
}

// Match returns the pending agreement for key.
func (s *Service) Match(ctx context.Context, key string) (Match, error) {
	m, err := s.store.GetMatch(ctx, key)
	if err != nil {
		return Match{}, ErrMatchDataNotFound
	}
	return m, nil
}

// Scheme returns the current share scheme.
func (s *Service) Scheme(ctx context.Context) (ShareScheme, error) {
	return s.store.GetScheme(ctx)
}
