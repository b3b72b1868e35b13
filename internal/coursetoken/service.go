package coursetoken

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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
	ErrSupplyExceeded     = errors.New("Mint request exceeds supply limit")
	ErrSupplyInputTooHigh = errors.New("Input greater than supplyLimit")
	ErrSupplyBelowCurrent = errors.New("Request would decrease supply limit lower than current Supply")
	ErrTokenNotFound      = errors.New("Token does not exists")
	ErrAlreadyLent        = errors.New("Token already lended")
	ErrNeedsRepair        = errors.New("Token needs repair")
	ErrTransfersDisabled  = errors.New("Transfers have been disabled for this NFT")
	ErrTransfersEnabled   = errors.New("Transfers Enabled, use owner or approved functions")
	ErrNotTokenOwner      = errors.New("caller does not own token")
	ErrWrongOwner         = errors.New("token not owned by from address")
	ErrSharesLocked       = errors.New("teacher shares are locked")
	ErrAdminRepairOnly    = errors.New("repairs are restricted to admins")
	ErrRepairCostZero     = errors.New("repair cost must be greater than 0")
	ErrLengthMismatch     = errors.New("ids and uris length mismatch")
)

// Registry owns one collection's token state and executes its lifecycle
// operations. Revenue flows pull into the registry's own ledger account
// first, then distribute, so a distribution never half-applies for lack
// of funds.
type Registry struct {
	addr   string
	store  Store
	ledger gt.Ledger
	acl    *accesscontrol.List
	events events.Sink
	log    *logger.Logger
}

// Params configures a Registry.
type Params struct {
	Address string // Registry's own ledger account, used for escrow pulls
	Owner   string
	Store   Store
	Ledger  gt.Ledger
	Events  events.Sink
	Logger  *logger.Logger
}

// New constructs a registry over an already-initialized store.
func New(p Params) *Registry {
	if p.Events == nil {
		p.Events = events.Discard
	}
	if p.Logger == nil {
		p.Logger = logger.NewDefault("coursetoken")
	}
	return &Registry{
		addr:   p.Address,
		store:  p.Store,
		ledger: p.Ledger,
		acl:    accesscontrol.New(p.Owner),
		events: p.Events,
		log:    p.Logger,
	}
}

// Init writes the collection's initial state. Teacher shares may be
// incomplete at deploy time; they are validated again at first mint.
func (r *Registry) Init(ctx context.Context, cfg CollectionConfig) error {
	if revsplit.Sum(shareSplit(cfg.TeacherShares)) > revsplit.TotalBasisPoints {
		return revsplit.ErrShareOverflow
	}
	if cfg.Price == nil {
		cfg.Price = gt.Zero()
	}
	now := time.Now().UTC()
	c := Collection{
		CollectionConfig: cfg,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := r.store.SaveCollection(ctx, c); err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	r.log.WithField("collection", cfg.ID).WithField("symbol", cfg.Symbol).Info("collection initialized")
	return nil
}

// Address returns the registry's own ledger account.
func (r *Registry) Address() string { return r.addr }

// Owner returns the collection owner.
func (r *Registry) Owner() string { return r.acl.Owner() }

// IsAdmin reports whether account is the owner or a flagged admin.
func (r *Registry) IsAdmin(account string) bool { return r.acl.IsAdmin(account) }

// SetAdmin grants or revokes the admin flag. Owner-only.
func (r *Registry) SetAdmin(caller, account string, enabled bool) error {
	return r.acl.SetAdmin(caller, account, enabled)
}

// Mint issues quantity sequential tokens to caller, pulling
// quantity * price from caller and splitting it across the teacher
// schedule, with rounding dust going to the treasury.
func (r *Registry) Mint(ctx context.Context, caller string, quantity uint64) ([]Token, error) {
	return r.mint(ctx, caller, caller, quantity, true)
}

// MintByAdmin issues quantity tokens to recipient without payment.
func (r *Registry) MintByAdmin(ctx context.Context, caller string, quantity uint64, recipient string) ([]Token, error) {
	if err := r.acl.Require(caller); err != nil {
		return nil, err
	}
	return r.mint(ctx, caller, recipient, quantity, false)
}

func (r *Registry) mint(ctx context.Context, caller, recipient string, quantity uint64, paid bool) ([]Token, error) {
	if quantity == 0 {
		return nil, nil
	}
	c, err := r.store.LoadCollection(ctx)
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	shares := shareSplit(c.TeacherShares)
	if revsplit.Sum(shares) != revsplit.TotalBasisPoints {
		return nil, revsplit.ErrShareSum
	}
	if c.CurrentSupply+quantity > c.SupplyLimit {
		return nil, ErrSupplyExceeded
	}

	if paid {
		total := new(uint256.Int).Mul(c.Price, uint256.NewInt(quantity))
		if err := r.ledger.TransferFrom(r.addr, caller, r.addr, total); err != nil {
			return nil, fmt.Errorf("mint payment: %w", err)
		}
		payouts, err := revsplit.Split(total, shares, c.Treasury)
		if err != nil {
			return nil, err
		}
		if err := revsplit.Execute(r.ledger, r.addr, payouts); err != nil {
			return nil, err
		}
		for _, p := range payouts {
			r.events.Emit(events.New(events.TypeTeacherPaid, c.ID, map[string]any{
				"teacher": p.Recipient,
				"amount":  p.Amount.Dec(),
			}))
		}
	}

	now := time.Now().UTC()
	minted := make([]Token, 0, quantity)
	for i := uint64(0); i < quantity; i++ {
		token := Token{
			ID:       c.TokenOrigin + c.CurrentSupply + i,
			Owner:    recipient,
			MintedAt: now,
		}
		if err := r.store.PutToken(ctx, token); err != nil {
			return nil, fmt.Errorf("put token %d: %w", token.ID, err)
		}
		minted = append(minted, token)
	}
	c.CurrentSupply += quantity
	c.SharesLocked = true
	c.UpdatedAt = now
	if err := r.store.SaveCollection(ctx, c); err != nil {
		return nil, fmt.Errorf("save collection: %w", err)
	}

	r.events.Emit(events.New(events.TypeTokenMint, c.ID, map[string]any{
		"recipient": recipient,
		"quantity":  quantity,
		"first_id":  minted[0].ID,
		"paid":      paid,
	}))
	metrics.RecordTokenOp(c.ID, "mint")
	r.log.WithField("recipient", recipient).
		WithField("quantity", quantity).
		WithField("supply", c.CurrentSupply).
		Info("tokens minted")
	return minted, nil
}

// LendToken marks a token as out on loan. Admin-only.
func (r *Registry) LendToken(ctx context.Context, caller string, tokenID uint64, loanID []byte) error {
	if err := r.acl.Require(caller); err != nil {
		return err
	}
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Lent() {
		return ErrAlreadyLent
	}
	if token.NeedsRepair() {
		return ErrNeedsRepair
	}
	token.LoanID = append([]byte(nil), loanID...)
	if err := r.store.PutToken(ctx, token); err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	r.emitToken(ctx, events.TypeTokenLent, map[string]any{
		"token_id": tokenID,
		"loan_id":  string(loanID),
	})
	metrics.RecordTokenOp(r.collectionID(ctx), "lend")
	r.log.WithField("token_id", tokenID).Info("token lent")
	return nil
}

// ReturnToken clears a token's loan and records any repair cost assessed
// on return. Admin-only. A broken return also raises the broken event so
// audit consumers can distinguish wear from damage.
func (r *Registry) ReturnToken(ctx context.Context, caller string, tokenID uint64, repairCost gt.Amount, broken bool) error {
	if err := r.acl.Require(caller); err != nil {
		return err
	}
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return err
	}
	token.LoanID = nil
	if gt.IsZero(repairCost) {
		token.RepairCost = nil
	} else {
		token.RepairCost = repairCost.Clone()
	}
	if err := r.store.PutToken(ctx, token); err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	r.emitToken(ctx, events.TypeTokenReturned, map[string]any{
		"token_id":    tokenID,
		"repair_cost": amountDec(repairCost),
	})
	if broken {
		r.emitToken(ctx, events.TypeTokenBroken, map[string]any{"token_id": tokenID})
	}
	metrics.RecordTokenOp(r.collectionID(ctx), "return")
	r.log.WithField("token_id", tokenID).Info("token returned")
	return nil
}

// BreakToken records damage on a token outside the lending flow. Admin-only.
func (r *Registry) BreakToken(ctx context.Context, caller string, tokenID uint64, repairCost gt.Amount) error {
	if err := r.acl.Require(caller); err != nil {
		return err
	}
	if gt.IsZero(repairCost) {
		return ErrRepairCostZero
	}
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return err
	}
	token.RepairCost = repairCost.Clone()
	if err := r.store.PutToken(ctx, token); err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	r.emitToken(ctx, events.TypeTokenBroken, map[string]any{
		"token_id":    tokenID,
		"repair_cost": repairCost.Dec(),
	})
	metrics.RecordTokenOp(r.collectionID(ctx), "break")
	r.log.WithField("token_id", tokenID).Info("token broken")
	return nil
}

// RepairToken is the self-service paid repair path: the token's owner pays
// the outstanding repair cost, split between the treasury fee and the
// teacher schedule. Rejected when the collection is configured for
// admin-only repair.
func (r *Registry) RepairToken(ctx context.Context, caller string, tokenID uint64) error {
	c, err := r.store.LoadCollection(ctx)
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	if c.AdminRepairOnly {
		return ErrAdminRepairOnly
	}
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Owner != caller {
		return ErrNotTokenOwner
	}
	if !token.NeedsRepair() {
		return r.clearRepair(ctx, token, c.ID)
	}

	cost := token.RepairCost.Clone()
	if err := r.ledger.TransferFrom(r.addr, caller, r.addr, cost); err != nil {
		return fmt.Errorf("repair payment: %w", err)
	}
	fee := revsplit.Portion(cost, c.TreasuryFee)
	rest := new(uint256.Int).Sub(cost, fee)
	payouts, err := revsplit.Split(rest, shareSplit(c.TeacherShares), c.Treasury)
	if err != nil {
		return err
	}
	if err := r.ledger.Transfer(r.addr, c.Treasury, fee); err != nil {
		return err
	}
	if err := revsplit.Execute(r.ledger, r.addr, payouts); err != nil {
		return err
	}
	return r.clearRepair(ctx, token, c.ID)
}

// RepairTokenByAdmin zeroes a token's repair cost without payment. Admin-only.
func (r *Registry) RepairTokenByAdmin(ctx context.Context, caller string, tokenID uint64) error {
	if err := r.acl.Require(caller); err != nil {
		return err
	}
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return err
	}
	return r.clearRepair(ctx, token, r.collectionID(ctx))
}

func (r *Registry) clearRepair(ctx context.Context, token Token, collectionID string) error {
	token.RepairCost = nil
	if err := r.store.PutToken(ctx, token); err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	r.events.Emit(events.New(events.TypeTokenRepaired, collectionID, map[string]any{
		"token_id": token.ID,
	}))
	metrics.RecordTokenOp(collectionID, "repair")
	r.log.WithField("token_id", token.ID).Info("token repaired")
	return nil
}

// TransferFrom is the owner-path transfer: caller must own the token and
// the collection must have transfers enabled.
func (r *Registry) TransferFrom(ctx context.Context, caller, from, to string, tokenID uint64) error {
	c, err := r.store.LoadCollection(ctx)
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	if !c.TransferEnabled {
		return ErrTransfersDisabled
	}
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if caller != from || token.Owner != from {
		return ErrNotTokenOwner
	}
	return r.move(ctx, token, to, c.ID)
}

// AdminTransferFrom moves a token on the admin path. It is deliberately
// mutually exclusive with the owner path: once transfers are enabled the
// admin path is closed.
func (r *Registry) AdminTransferFrom(ctx context.Context, caller, from, to string, tokenID uint64) error {
	if err := r.acl.Require(caller); err != nil {
		return err
	}
	c, err := r.store.LoadCollection(ctx)
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	if c.TransferEnabled {
		return ErrTransfersEnabled
	}
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Owner != from {
		return ErrWrongOwner
	}
	if token.Lent() {
		return ErrAlreadyLent
	}
	return r.move(ctx, token, to, c.ID)
}

// TransferByOperator moves a token on behalf of a flagged-admin operator
// such as the marketplace. It ignores the transfer-enabled gate (custody
// moves must work either way) but not the loan and repair gates.
func (r *Registry) TransferByOperator(ctx context.Context, operator, from, to string, tokenID uint64) error {
	if err := r.acl.Require(operator); err != nil {
		return err
	}
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Owner != from {
		return ErrWrongOwner
	}
	if token.Lent() {
		return ErrAlreadyLent
	}
	if token.NeedsRepair() {
		return ErrNeedsRepair
	}
	return r.move(ctx, token, to, r.collectionID(ctx))
}

// BurnByAdmin parks a token at the burn address. Admin-only; burned tokens
// are never reissued.
func (r *Registry) BurnByAdmin(ctx context.Context, caller string, tokenID uint64) error {
	if err := r.acl.Require(caller); err != nil {
		return err
	}
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Lent() {
		return ErrAlreadyLent
	}
	prev := token.Owner
	token.Owner = BurnAddress
	if err := r.store.PutToken(ctx, token); err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	r.emitToken(ctx, events.TypeTokenBurned, map[string]any{
		"token_id": tokenID,
		"from":     prev,
	})
	metrics.RecordTokenOp(r.collectionID(ctx), "burn")
	r.log.WithField("token_id", tokenID).Info("token burned")
	return nil
}

func (r *Registry) move(ctx context.Context, token Token, to, collectionID string) error {
	from := token.Owner
	token.Owner = to
	if err := r.store.PutToken(ctx, token); err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	r.events.Emit(events.New(events.TypeTokenTransferred, collectionID, map[string]any{
		"token_id": token.ID,
		"from":     from,
		"to":       to,
	}))
	metrics.RecordTokenOp(collectionID, "transfer")
	r.log.WithField("token_id", token.ID).WithField("to", to).Info("token transferred")
	return nil
}

// SetPrice updates the mint price. Admin-only.
func (r *Registry) SetPrice(ctx context.Context, caller string, price gt.Amount) error {
	return r.updateCollection(ctx, caller, events.TypePriceUpdated, func(c *Collection) error {
		c.Price = price.Clone()
		return nil
	}, map[string]any{"price": amountDec(price)})
}

// SetTreasury updates the treasury account. Admin-only.
func (r *Registry) SetTreasury(ctx context.Context, caller, treasury string) error {
	return r.updateCollection(ctx, caller, "", func(c *Collection) error {
		c.Treasury = treasury
		return nil
	}, nil)
}

// SetTreasuryFee updates the treasury fee basis points. Admin-only.
func (r *Registry) SetTreasuryFee(ctx context.Context, caller string, feeBP uint64) error {
	return r.updateCollection(ctx, caller, "", func(c *Collection) error {
		if feeBP > revsplit.TotalBasisPoints {
			return revsplit.ErrShareOverflow
		}
		c.TreasuryFee = feeBP
		return nil
	}, nil)
}

// IncreaseSupplyLimit raises the supply limit by amount. Admin-only.
func (r *Registry) IncreaseSupplyLimit(ctx context.Context, caller string, amount uint64) error {
	return r.updateCollection(ctx, caller, events.TypeSupplyLimitUpdated, func(c *Collection) error {
		c.SupplyLimit += amount
		return nil
	}, map[string]any{"delta": amount})
}

// DecreaseSupplyLimit lowers the supply limit by amount. Admin-only; the
// result may not fall below the current supply.
func (r *Registry) DecreaseSupplyLimit(ctx context.Context, caller string, amount uint64) error {
	return r.updateCollection(ctx, caller, events.TypeSupplyLimitUpdated, func(c *Collection) error {
		if amount > c.SupplyLimit {
			return ErrSupplyInputTooHigh
		}
		if c.SupplyLimit-amount < c.CurrentSupply {
			return ErrSupplyBelowCurrent
		}
		c.SupplyLimit -= amount
		return nil
	}, map[string]any{"delta": amount})
}

// SetBaseURI updates the collection's base URI. Admin-only.
func (r *Registry) SetBaseURI(ctx context.Context, caller, baseURI string) error {
	return r.updateCollection(ctx, caller, "", func(c *Collection) error {
		c.BaseURI = baseURI
		return nil
	}, nil)
}

// SetTransferEnabled toggles the owner transfer path. Admin-only.
func (r *Registry) SetTransferEnabled(ctx context.Context, caller string, enabled bool) error {
	return r.updateCollection(ctx, caller, "", func(c *Collection) error {
		c.TransferEnabled = enabled
		return nil
	}, nil)
}

// SetAdminRepairOnly toggles self-service paid repair. Admin-only.
func (r *Registry) SetAdminRepairOnly(ctx context.Context, caller string, adminOnly bool) error {
	return r.updateCollection(ctx, caller, "", func(c *Collection) error {
		c.AdminRepairOnly = adminOnly
		return nil
	}, nil)
}

// AddTeacherShares appends entries to the teacher schedule. Admin-only;
// forbidden once the schedule locks at first mint.
func (r *Registry) AddTeacherShares(ctx context.Context, caller string, shares []TeacherShare) error {
	return r.updateCollection(ctx, caller, "", func(c *Collection) error {
		if c.SharesLocked {
			return ErrSharesLocked
		}
		combined := append(append([]TeacherShare(nil), c.TeacherShares...), shares...)
		if sharesTotal(combined) > revsplit.TotalBasisPoints {
			return revsplit.ErrShareOverflow
		}
		c.TeacherShares = combined
		return nil
	}, nil)
}

// SetTokenURI overrides one token's URI. Admin-only.
func (r *Registry) SetTokenURI(ctx context.Context, caller string, tokenID uint64, uri string) error {
	if err := r.acl.Require(caller); err != nil {
		return err
	}
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return err
	}
	token.URI = uri
	if err := r.store.PutToken(ctx, token); err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	return nil
}

// SetTokenURIs overrides several token URIs in one call. Admin-only.
func (r *Registry) SetTokenURIs(ctx context.Context, caller string, tokenIDs []uint64, uris []string) error {
	if err := r.acl.Require(caller); err != nil {
		return err
	}
	if len(tokenIDs) != len(uris) {
		return ErrLengthMismatch
	}
	// Verify every token exists before writing any override.
	for _, id := range tokenIDs {
		if _, err := r.getToken(ctx, id); err != nil {
			return err
		}
	}
	for i, id := range tokenIDs {
		token, err := r.getToken(ctx, id)
		if err != nil {
			return err
		}
		token.URI = uris[i]
		if err := r.store.PutToken(ctx, token); err != nil {
			return fmt.Errorf("put token %d: %w", id, err)
		}
	}
	return nil
}

// Collection returns the collection state.
func (r *Registry) Collection(ctx context.Context) (Collection, error) {
	return r.store.LoadCollection(ctx)
}

// Token returns one token's state.
func (r *Registry) Token(ctx context.Context, tokenID uint64) (Token, error) {
	return r.getToken(ctx, tokenID)
}

// TokenURI resolves a token's metadata URI: the per-token override when
// set, otherwise the numeric id, both appended to the base URI.
func (r *Registry) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	c, err := r.store.LoadCollection(ctx)
	if err != nil {
		return "", fmt.Errorf("load collection: %w", err)
	}
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return "", err
	}
	if token.URI != "" {
		return c.BaseURI + token.URI, nil
	}
	return c.BaseURI + strconv.FormatUint(tokenID, 10), nil
}

// IsLended reports whether a token is out on loan.
func (r *Registry) IsLended(ctx context.Context, tokenID uint64) (bool, error) {
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return token.Lent(), nil
}

// NeedRepair reports whether a token has an outstanding repair cost.
func (r *Registry) NeedRepair(ctx context.Context, tokenID uint64) (bool, error) {
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return token.NeedsRepair(), nil
}

// RepairCost returns a token's outstanding repair cost.
func (r *Registry) RepairCost(ctx context.Context, tokenID uint64) (gt.Amount, error) {
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.RepairCost == nil {
		return gt.Zero(), nil
	}
	return token.RepairCost.Clone(), nil
}

// OwnerOf returns a token's current owner.
func (r *Registry) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	token, err := r.getToken(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return token.Owner, nil
}

// BalanceOf returns how many tokens account owns in this collection.
func (r *Registry) BalanceOf(ctx context.Context, account string) (uint64, error) {
	return r.store.CountByOwner(ctx, account)
}

func (r *Registry) updateCollection(ctx context.Context, caller string, eventType events.Type, mutate func(*Collection) error, payload map[string]any) error {
	if err := r.acl.Require(caller); err != nil {
		return err
	}
	c, err := r.store.LoadCollection(ctx)
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	if err := mutate(&c); err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	if err := r.store.SaveCollection(ctx, c); err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	if eventType != "" {
		r.events.Emit(events.New(eventType, c.ID, payload))
	}
	return nil
}

func (r *Registry) getToken(ctx context.Context, tokenID uint64) (Token, error) {
	token, err := r.store.GetToken(ctx, tokenID)
	if err != nil {
		return Token{}, ErrTokenNotFound
	}
	return token, nil
}

func (r *Registry) emitToken(ctx context.Context, t events.Type, payload map[string]any) {
	r.events.Emit(events.New(t, r.collectionID(ctx), payload))
}

func (r *Registry) collectionID(ctx context.Context) string {
	c, err := r.store.LoadCollection(ctx)
	if err != nil {
		return ""
	}
	return c.ID
}

func amountDec(a gt.Amount) string {
	if a == nil {
		return "0"
	}
	return a.Dec()
}
