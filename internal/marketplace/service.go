package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/course_marketplace/internal/accesscontrol"
	"github.com/R3E-Network/course_marketplace/internal/events"
	"github.com/R3E-Network/course_marketplace/internal/gt"
	"github.com/R3E-Network/course_marketplace/internal/indexedset"
	"github.com/R3E-Network/course_marketplace/internal/metrics"
	"github.com/R3E-Network/course_marketplace/internal/revsplit"
	"github.com/R3E-Network/course_marketplace/pkg/logger"
)

// Errors
var (
	ErrPriceZero         = errors.New("Price must be greater than 0")
	ErrNotLister         = errors.New("caller is not the lister")
	ErrListingNotFound   = errors.New("listing does not exist")
	ErrAlreadyListed     = errors.New("token already listed")
	ErrUnknownCollection = errors.New("unknown collection")
)

// Service is the marketplace ledger. Listed tokens sit in the marketplace's
// custody until bought or cancelled; sale proceeds split between the lister
// and the configured fee recipient.
type Service struct {
	addr         string
	acl          *accesscontrol.List
	ledger       gt.Ledger
	store        Store
	events       events.Sink
	log          *logger.Logger
	feeRecipient string
	feeBP        uint64

	mu         sync.Mutex
	index      *indexedset.Set[Key]
	registries map[string]TokenRegistry
}

// Params configures the marketplace.
type Params struct {
	Address      string // Marketplace's own ledger account, holds escrow
	Owner        string
	Ledger       gt.Ledger
	Store        Store
	Events       events.Sink
	Logger       *logger.Logger
	FeeRecipient string
	FeeBP        uint64 // Sale fee in basis points
}

// New constructs the marketplace and rebuilds the listing index from the
// store.
func New(ctx context.Context, p Params) (*Service, error) {
	if p.Events == nil {
		p.Events = events.Discard
	}
	if p.Logger == nil {
		p.Logger = logger.NewDefault("marketplace")
	}
	s := &Service{
		addr:         p.Address,
		acl:          accesscontrol.New(p.Owner),
		ledger:       p.Ledger,
		store:        p.Store,
		events:       p.Events,
		log:          p.Logger,
		feeRecipient: p.FeeRecipient,
		feeBP:        p.FeeBP,
		index:        indexedset.New[Key](),
		registries:   make(map[string]TokenRegistry),
	}
	listings, err := p.Store.ListListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	for _, l := range listings {
		s.index.Insert(l.Key)
	}
	return s, nil
}

// Address returns the marketplace's own ledger account.
func (s *Service) Address() string { return s.addr }

// SetAdmin grants or revokes the marketplace admin flag. Owner-only.
func (s *Service) SetAdmin(caller, account string, enabled bool) error {
	return s.acl.SetAdmin(caller, account, enabled)
}

// RegisterCollection wires a collection's token registry so its tokens can
// be listed here. The marketplace account must be flagged as an operator
// admin on the registry for custody moves to work.
func (s *Service) RegisterCollection(id string, reg TokenRegistry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registries[id] = reg
}

// SetFee updates the sale fee. Admin-only.
func (s *Service) SetFee(caller, recipient string, feeBP uint64) error {
	if err := s.acl.Require(caller); err != nil {
		return err
	}
	if feeBP > revsplit.TotalBasisPoints {
		return revsplit.ErrShareOverflow
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeRecipient = recipient
	s.feeBP = feeBP
	return nil
}

// CreateListing escrows caller's token into marketplace custody and records
// the listing. The registry's own loan and repair gates reject tokens that
// are lent out or damaged.
func (s *Service) CreateListing(ctx context.Context, caller, collection string, tokenID uint64, price gt.Amount) (Listing, error) {
	if gt.IsZero(price) {
		return Listing{}, ErrPriceZero
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key{Collection: collection, TokenID: tokenID}
	if s.index.Contains(key) {
		return Listing{}, ErrAlreadyListed
	}
	reg, ok := s.registries[collection]
	if !ok {
		return Listing{}, ErrUnknownCollection
	}
	if err := reg.TransferByOperator(ctx, s.addr, caller, s.addr, tokenID); err != nil {
		return Listing{}, fmt.Errorf("escrow token: %w", err)
	}

	now := time.Now().UTC()
	listing := Listing{
		Key:       key,
		Lister:    caller,
		Price:     price.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Persist first; the index only learns about listings the store holds.
	listing.Index = s.index.Len()
	if err := s.store.PutListing(ctx, listing); err != nil {
		if rerr := reg.TransferByOperator(ctx, s.addr, s.addr, caller, tokenID); rerr != nil {
			return Listing{}, fmt.Errorf("put listing: %v (return token: %w)", err, rerr)
		}
		return Listing{}, fmt.Errorf("put listing: %w", err)
	}
	s.index.Insert(key)

	s.events.Emit(events.New(events.TypeListingCreated, collection, map[string]any{
		"token_id": tokenID,
		"lister":   caller,
		"price":    price.Dec(),
	}))
	metrics.RecordListingOp("create")
	s.log.WithField("collection", collection).
		WithField("token_id", tokenID).
		WithField("lister", caller).
		Info("listing created")
	return listing, nil
}

// UpdateListing changes a listing's price. Lister-only.
func (s *Service) UpdateListing(ctx context.Context, caller, collection string, tokenID uint64, price gt.Amount) (Listing, error) {
	if gt.IsZero(price) {
		return Listing{}, ErrPriceZero
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.get(ctx, Key{Collection: collection, TokenID: tokenID})
	if err != nil {
		return Listing{}, err
	}
	if listing.Lister != caller {
		return Listing{}, ErrNotLister
	}
	listing.Price = price.Clone()
	listing.UpdatedAt = time.Now().UTC()
	if err := s.store.PutListing(ctx, listing); err != nil {
		return Listing{}, fmt.Errorf("put listing: %w", err)
	}

	s.events.Emit(events.New(events.TypeListingUpdated, collection, map[string]any{
		"token_id": tokenID,
		"price":    price.Dec(),
	}))
	metrics.RecordListingOp("update")
	return listing, nil
}

// CancelListing returns the escrowed token to the lister and removes the
// listing. Lister-only.
func (s *Service) CancelListing(ctx context.Context, caller, collection string, tokenID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key{Collection: collection, TokenID: tokenID}
	listing, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if listing.Lister != caller {
		return ErrNotLister
	}
	reg := s.registries[collection]
	if reg == nil {
		return ErrUnknownCollection
	}
	if err := reg.TransferByOperator(ctx, s.addr, s.addr, listing.Lister, tokenID); err != nil {
		return fmt.Errorf("return token: %w", err)
	}
	if err := s.remove(ctx, key); err != nil {
		return err
	}

	s.events.Emit(events.New(events.TypeListingDeleted, collection, map[string]any{
		"token_id": tokenID,
		"lister":   caller,
	}))
	metrics.RecordListingOp("cancel")
	s.log.WithField("collection", collection).WithField("token_id", tokenID).Info("listing cancelled")
	return nil
}

// BuyListing sells a listed token to caller: the price is pulled from the
// buyer, split between lister and fee recipient, and the escrowed token
// handed over. Any caller may buy.
func (s *Service) BuyListing(ctx context.Context, caller, collection string, tokenID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key{Collection: collection, TokenID: tokenID}
	listing, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	reg := s.registries[collection]
	if reg == nil {
		return ErrUnknownCollection
	}

	payouts, err := revsplit.Split(listing.Price, []revsplit.Share{
		{Recipient: s.feeRecipient, BasisPoints: s.feeBP},
	}, listing.Lister)
	if err != nil {
		return err
	}

	// The payment stays pooled in the marketplace account until the token
	// is delivered and the listing removed; failures in between refund the
	// buyer.
	if err := s.ledger.TransferFrom(s.addr, caller, s.addr, listing.Price); err != nil {
		return fmt.Errorf("purchase payment: %w", err)
	}
	if err := reg.TransferByOperator(ctx, s.addr, s.addr, caller, tokenID); err != nil {
		if rerr := s.ledger.Transfer(s.addr, caller, listing.Price); rerr != nil {
			return fmt.Errorf("deliver token: %v (refund buyer: %w)", err, rerr)
		}
		return fmt.Errorf("deliver token: %w", err)
	}
	if err := s.remove(ctx, key); err != nil {
		if rerr := reg.TransferByOperator(ctx, s.addr, caller, s.addr, tokenID); rerr != nil {
			return fmt.Errorf("remove listing: %v (restore escrow: %w)", err, rerr)
		}
		if rerr := s.ledger.Transfer(s.addr, caller, listing.Price); rerr != nil {
			return fmt.Errorf("remove listing: %v (refund buyer: %w)", err, rerr)
		}
		return err
	}
	if err := revsplit.Execute(s.ledger, s.addr, payouts); err != nil {
		return fmt.Errorf("distribute proceeds: %w", err)
	}

	s.events.Emit(events.New(events.TypeListingPurchased, collection, map[string]any{
		"token_id": tokenID,
		"lister":   listing.Lister,
		"buyer":    caller,
		"price":    listing.Price.Dec(),
	}))
	metrics.RecordListingOp("buy")
	s.log.WithField("collection", collection).
		WithField("token_id", tokenID).
		WithField("buyer", caller).
		Info("listing purchased")
	return nil
}

// GetListing returns one listing.
func (s *Service) GetListing(ctx context.Context, collection string, tokenID uint64) (Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx, Key{Collection: collection, TokenID: tokenID})
}

// Listings returns every active listing ordered by index.
func (s *Service) Listings(ctx context.Context) ([]Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ListListings(ctx)
}

// ListingsCount returns the number of active listings.
func (s *Service) ListingsCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Len()
}

func (s *Service) get(ctx context.Context, key Key) (Listing, error) {
	if !s.index.Contains(key) {
		return Listing{}, ErrListingNotFound
	}
	listing, err := s.store.GetListing(ctx, key)
	if err != nil {
		return Listing{}, ErrListingNotFound
	}
	return listing, nil
}

// remove drops a listing swap-and-pop style and rewrites the moved
// listing's persisted index so indexes keep matching array positions.
func (s *Service) remove(ctx context.Context, key Key) error {
	if !s.index.Contains(key) {
		return ErrListingNotFound
	}
	if err := s.store.DeleteListing(ctx, key); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	moved, wasMoved, _ := s.index.RemoveByKey(key)
	if !wasMoved {
		return nil
	}
	ml, err := s.store.GetListing(ctx, moved)
	if err != nil {
		return fmt.Errorf("get moved listing: %w", err)
	}
	ml.Index, _ = s.index.Index(moved)
	if err := s.store.PutListing(ctx, ml); err != nil {
		return fmt.Errorf("patch moved listing: %w", err)
	}
	return nil
}
