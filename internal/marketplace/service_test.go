package marketplace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/course_marketplace/internal/coursetoken"
	"github.com/R3E-Network/course_marketplace/internal/events"
	"github.com/R3E-Network/course_marketplace/internal/gt"
)

const (
	mpOwner    = "owner"
	mpAddr     = "marketplace"
	feeAccount = "fees"
	seller     = "seller"
	buyer      = "buyer"
	courseID   = "course-1"
)

type marketFixture struct {
	svc    *Service
	reg    *coursetoken.Registry
	ledger *gt.Token
	rec    *events.Recorder
}

// newMarketFixture wires a marketplace over a real collection registry with
// the marketplace flagged as operator admin, and mints token ids 0..n-1 to
// the seller.
func newMarketFixture(t *testing.T, n uint64) *marketFixture {
	t.Helper()
	return newMarketFixtureStore(t, n, NewMemoryStore())
}

func newMarketFixtureStore(t *testing.T, n uint64, store Store) *marketFixture {
	t.Helper()
	ctx := context.Background()

	ledger := gt.NewToken()
	ledger.Mint(seller, gt.Ether(1000))
	ledger.Mint(buyer, gt.Ether(1000))

	reg := coursetoken.New(coursetoken.Params{
		Address: "registry:" + courseID,
		Owner:   mpOwner,
		Store:   coursetoken.NewMemoryStore(),
		Ledger:  ledger,
	})
	require.NoError(t, reg.Init(ctx, coursetoken.CollectionConfig{
		ID:          courseID,
		Name:        "Token Name",
		Symbol:      "Symbol",
		Price:       gt.Ether(1),
		Treasury:    "treasury",
		SupplyLimit: 100,
		TeacherShares: []coursetoken.TeacherShare{
			{Teacher: "teacher1", Shares: 10000},
		},
	}))
	_, err := reg.MintByAdmin(ctx, mpOwner, n, seller)
	require.NoError(t, err)

	rec := events.NewRecorder()
	svc, err := New(ctx, Params{
		Address:      mpAddr,
		Owner:        mpOwner,
		Ledger:       ledger,
		Store:        store,
		Events:       rec,
		FeeRecipient: feeAccount,
		FeeBP:        1000, // 10%
	})
	require.NoError(t, err)
	svc.RegisterCollection(courseID, reg)
	require.NoError(t, reg.SetAdmin(mpOwner, mpAddr, true))
	return &marketFixture{svc: svc, reg: reg, ledger: ledger, rec: rec}
}

// assertIndexInvariant checks that every listing's recorded index matches
// its true position in the dense array.
func assertIndexInvariant(t *testing.T, f *marketFixture) {
	t.Helper()
	listings, err := f.svc.Listings(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, f.svc.ListingsCount())
	for i, l := range listings {
		assert.Equal(t, i, l.Index, "listing %v index out of place", l.Key)
	}
}

func TestCreateListing(t *testing.T) {
	f := newMarketFixture(t, 2)
	ctx := context.Background()

	_, err := f.svc.CreateListing(ctx, seller, courseID, 0, gt.Zero())
	require.ErrorIs(t, err, ErrPriceZero)
	assert.EqualError(t, err, "Price must be greater than 0")

	listing, err := f.svc.CreateListing(ctx, seller, courseID, 0, gt.Ether(10))
	require.NoError(t, err)
	assert.Equal(t, 0, listing.Index)
	assert.Equal(t, seller, listing.Lister)

	// The token moves into marketplace custody.
	owner, err := f.reg.OwnerOf(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, mpAddr, owner)

	_, err = f.svc.CreateListing(ctx, seller, courseID, 0, gt.Ether(10))
	assert.ErrorIs(t, err, ErrAlreadyListed)

	_, err = f.svc.CreateListing(ctx, seller, "nope", 1, gt.Ether(10))
	assert.ErrorIs(t, err, ErrUnknownCollection)

	assert.Len(t, f.rec.OfType(events.TypeListingCreated), 1)
	assertIndexInvariant(t, f)
}

func TestCreateListingTokenStateGates(t *testing.T) {
	f := newMarketFixture(t, 3)
	ctx := context.Background()

	require.NoError(t, f.reg.LendToken(ctx, mpOwner, 0, []byte("loan")))
	_, err := f.svc.CreateListing(ctx, seller, courseID, 0, gt.Ether(1))
	assert.ErrorIs(t, err, coursetoken.ErrAlreadyLent)

	require.NoError(t, f.reg.BreakToken(ctx, mpOwner, 1, gt.Ether(1)))
	_, err = f.svc.CreateListing(ctx, seller, courseID, 1, gt.Ether(1))
	assert.ErrorIs(t, err, coursetoken.ErrNeedsRepair)

	// Only the token's owner can list it.
	_, err = f.svc.CreateListing(ctx, buyer, courseID, 2, gt.Ether(1))
	assert.ErrorIs(t, err, coursetoken.ErrWrongOwner)
}

func TestUpdateListing(t *testing.T) {
	f := newMarketFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.CreateListing(ctx, seller, courseID, 0, gt.Ether(10))
	require.NoError(t, err)

	_, err = f.svc.UpdateListing(ctx, buyer, courseID, 0, gt.Ether(5))
	assert.ErrorIs(t, err, ErrNotLister)

	updated, err := f.svc.UpdateListing(ctx, seller, courseID, 0, gt.Ether(5))
	require.NoError(t, err)
	assert.True(t, updated.Price.Eq(gt.Ether(5)))
}

func TestCancelListing(t *testing.T) {
	f := newMarketFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.CreateListing(ctx, seller, courseID, 0, gt.Ether(10))
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.CancelListing(ctx, buyer, courseID, 0), ErrNotLister)
	require.NoError(t, f.svc.CancelListing(ctx, seller, courseID, 0))

	owner, err := f.reg.OwnerOf(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, seller, owner)
	assert.Equal(t, 0, f.svc.ListingsCount())

	_, err = f.svc.GetListing(ctx, courseID, 0)
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestBuyListing(t *testing.T) {
	f := newMarketFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.CreateListing(ctx, seller, courseID, 0, gt.Ether(10))
	require.NoError(t, err)

	err = f.svc.BuyListing(ctx, buyer, courseID, 0)
	require.ErrorIs(t, err, gt.ErrInsufficientAllowance)

	require.NoError(t, f.ledger.Approve(buyer, mpAddr, gt.Ether(10)))
	require.NoError(t, f.svc.BuyListing(ctx, buyer, courseID, 0))

	// 10.0 sale at 10% fee: 1.0 to fees, 9.0 to the lister.
	assert.True(t, f.ledger.BalanceOf(feeAccount).Eq(gt.Ether(1)))
	assert.True(t, f.ledger.BalanceOf(seller).Eq(gt.Ether(1009)))
	assert.True(t, f.ledger.BalanceOf(buyer).Eq(gt.Ether(990)))
	assert.True(t, f.ledger.BalanceOf(mpAddr).IsZero(), "no value may stick to the marketplace")

	owner, err := f.reg.OwnerOf(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, buyer, owner)
	assert.Equal(t, 0, f.svc.ListingsCount())
	assert.Len(t, f.rec.OfType(events.TypeListingPurchased), 1)
}

// TestBuyListingDeliveryFailureRefunds: a sale must be all-or-nothing. When
// the escrowed token becomes undeliverable (an admin breaks it after
// listing), the buyer's payment is returned and no party is paid.
func TestBuyListingDeliveryFailureRefunds(t *testing.T) {
	f := newMarketFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.CreateListing(ctx, seller, courseID, 0, gt.Ether(10))
	require.NoError(t, err)
	require.NoError(t, f.reg.BreakToken(ctx, mpOwner, 0, gt.Ether(1)))
	require.NoError(t, f.ledger.Approve(buyer, mpAddr, gt.Ether(10)))

	err = f.svc.BuyListing(ctx, buyer, courseID, 0)
	require.ErrorIs(t, err, coursetoken.ErrNeedsRepair)

	// No money moved and the listing is intact.
	assert.True(t, f.ledger.BalanceOf(buyer).Eq(gt.Ether(1000)))
	assert.True(t, f.ledger.BalanceOf(seller).Eq(gt.Ether(1000)))
	assert.True(t, f.ledger.BalanceOf(feeAccount).IsZero())
	assert.True(t, f.ledger.BalanceOf(mpAddr).IsZero())
	assert.Equal(t, 1, f.svc.ListingsCount())
	owner, err := f.reg.OwnerOf(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, mpAddr, owner)

	// Once repaired the sale goes through normally. The refund does not
	// restore the spent allowance, so the buyer approves again.
	require.NoError(t, f.reg.RepairTokenByAdmin(ctx, mpOwner, 0))
	require.NoError(t, f.ledger.Approve(buyer, mpAddr, gt.Ether(10)))
	require.NoError(t, f.svc.BuyListing(ctx, buyer, courseID, 0))
	assert.True(t, f.ledger.BalanceOf(buyer).Eq(gt.Ether(990)))
	assert.True(t, f.ledger.BalanceOf(seller).Eq(gt.Ether(1009)))
	assert.True(t, f.ledger.BalanceOf(feeAccount).Eq(gt.Ether(1)))
}

// flakyStore injects store write failures.
type flakyStore struct {
	Store
	failPut    bool
	failDelete bool
}

func (s *flakyStore) PutListing(ctx context.Context, l Listing) error {
	if s.failPut {
		return errors.New("disk full")
	}
	return s.Store.PutListing(ctx, l)
}

func (s *flakyStore) DeleteListing(ctx context.Context, key Key) error {
	if s.failDelete {
		return errors.New("disk full")
	}
	return s.Store.DeleteListing(ctx, key)
}

func TestCreateListingStoreFailureReturnsToken(t *testing.T) {
	store := &flakyStore{Store: NewMemoryStore(), failPut: true}
	f := newMarketFixtureStore(t, 1, store)
	ctx := context.Background()

	_, err := f.svc.CreateListing(ctx, seller, courseID, 0, gt.Ether(10))
	require.ErrorContains(t, err, "put listing")

	// The token leaves escrow again and the index stays empty.
	owner, err := f.reg.OwnerOf(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, seller, owner)
	assert.Equal(t, 0, f.svc.ListingsCount())

	store.failPut = false
	_, err = f.svc.CreateListing(ctx, seller, courseID, 0, gt.Ether(10))
	require.NoError(t, err)
	assertIndexInvariant(t, f)
}

func TestBuyListingStoreFailureRefunds(t *testing.T) {
	store := &flakyStore{Store: NewMemoryStore()}
	f := newMarketFixtureStore(t, 1, store)
	ctx := context.Background()

	_, err := f.svc.CreateListing(ctx, seller, courseID, 0, gt.Ether(10))
	require.NoError(t, err)
	require.NoError(t, f.ledger.Approve(buyer, mpAddr, gt.Ether(10)))

	store.failDelete = true
	err = f.svc.BuyListing(ctx, buyer, courseID, 0)
	require.ErrorContains(t, err, "delete listing")

	// Payment refunded, token back in escrow, listing still live.
	assert.True(t, f.ledger.BalanceOf(buyer).Eq(gt.Ether(1000)))
	assert.True(t, f.ledger.BalanceOf(seller).Eq(gt.Ether(1000)))
	assert.True(t, f.ledger.BalanceOf(feeAccount).IsZero())
	owner, err := f.reg.OwnerOf(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, mpAddr, owner)
	assert.Equal(t, 1, f.svc.ListingsCount())

	store.failDelete = false
	require.NoError(t, f.ledger.Approve(buyer, mpAddr, gt.Ether(10)))
	require.NoError(t, f.svc.BuyListing(ctx, buyer, courseID, 0))
	assert.True(t, f.ledger.BalanceOf(seller).Eq(gt.Ether(1009)))
}

func TestSwapAndPopInvariant(t *testing.T) {
	f := newMarketFixture(t, 5)
	ctx := context.Background()

	for id := uint64(0); id < 5; id++ {
		_, err := f.svc.CreateListing(ctx, seller, courseID, id, gt.Ether(id+1))
		require.NoError(t, err)
	}
	assertIndexInvariant(t, f)

	// Removing the middle listing moves the last one into its slot.
	require.NoError(t, f.svc.CancelListing(ctx, seller, courseID, 2))
	assert.Equal(t, 4, f.svc.ListingsCount())
	moved, err := f.svc.GetListing(ctx, courseID, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, moved.Index)
	assertIndexInvariant(t, f)

	// Removing the tail needs no move.
	require.NoError(t, f.svc.CancelListing(ctx, seller, courseID, 3))
	assert.Equal(t, 3, f.svc.ListingsCount())
	assertIndexInvariant(t, f)

	// Buys remove the same way.
	require.NoError(t, f.ledger.Approve(buyer, mpAddr, gt.Ether(100)))
	require.NoError(t, f.svc.BuyListing(ctx, buyer, courseID, 0))
	assert.Equal(t, 2, f.svc.ListingsCount())
	assertIndexInvariant(t, f)
}
