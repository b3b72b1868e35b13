package staking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/course_marketplace/internal/gt"
)

const (
	stakeAddr = "staking"
	stOwner   = "owner"
	alice     = "alice"
	bob       = "bob"
)

const day = int64(86400)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }
func newClock() *clock                   { return &clock{t: time.Unix(1_700_000_000, 0).UTC()} }

type stakeFixture struct {
	svc    *Service
	ledger *gt.Token
	clk    *clock
}

func newStakeFixture(t *testing.T) *stakeFixture {
	t.Helper()
	return newStakeFixtureStore(t, NewMemoryStore())
}

func newStakeFixtureStore(t *testing.T, store Store) *stakeFixture {
	t.Helper()
	ledger := gt.NewToken()
	for _, acct := range []string{stOwner, alice, bob} {
		ledger.Mint(acct, gt.Ether(10000))
		require.NoError(t, ledger.Approve(acct, stakeAddr, gt.Ether(10000)))
	}
	clk := newClock()
	svc, err := New(context.Background(), Params{
		Address: stakeAddr,
		Ledger:  ledger,
		Store:   store,
		Now:     clk.now,
	})
	require.NoError(t, err)
	return &stakeFixture{svc: svc, ledger: ledger, clk: clk}
}

func TestStakeMultiTier(t *testing.T) {
	f := newStakeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Stake(ctx, stOwner, gt.Ether(5000), 30*day, 1))
	assert.True(t, f.ledger.BalanceOf(stakeAddr).Eq(gt.Ether(5000)))

	require.NoError(t, f.svc.Stake(ctx, stOwner, gt.Ether(3000), 30*day, 2))
	require.NoError(t, f.svc.Stake(ctx, stOwner, gt.Ether(2000), 30*day, 3))
	require.NoError(t, f.svc.Stake(ctx, alice, gt.Ether(100), 60*day, 1))
	require.NoError(t, f.svc.Stake(ctx, alice, gt.Ether(200), 60*day, 2))
	require.NoError(t, f.svc.Stake(ctx, alice, gt.Ether(300), 60*day, 3))

	assert.Equal(t, []string{stOwner, alice}, f.svc.GetAllUser(1))

	positions, err := f.svc.GetUserPosition(ctx, stOwner, 2)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Amount.Eq(gt.Ether(3000)))
	assert.Equal(t, 30*day, positions[0].DepositDuration)

	total, err := f.svc.TotalDeposits(ctx, 3)
	require.NoError(t, err)
	assert.True(t, total.Eq(gt.Ether(2300)))
}

func TestStakeSameTierTwice(t *testing.T) {
	f := newStakeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Stake(ctx, stOwner, gt.Ether(5000), 60*day, 1))
	require.NoError(t, f.svc.Stake(ctx, stOwner, gt.Ether(3000), 30*day, 1))

	assert.Equal(t, []string{stOwner}, f.svc.GetAllUser(1))
	positions, err := f.svc.GetUserPosition(ctx, stOwner, 1)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.True(t, positions[0].Amount.Eq(gt.Ether(5000)))
	assert.True(t, positions[1].Amount.Eq(gt.Ether(3000)))

	total, err := f.svc.TotalDeposits(ctx, 1)
	require.NoError(t, err)
	assert.True(t, total.Eq(gt.Ether(8000)))
}

func TestStakeZeroAmount(t *testing.T) {
	f := newStakeFixture(t)
	assert.ErrorIs(t, f.svc.Stake(context.Background(), stOwner, gt.Zero(), day, 1), ErrAmountZero)
}

func TestWithdraw(t *testing.T) {
	f := newStakeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Stake(ctx, stOwner, gt.Ether(5000), 30*day, 1))
	require.NoError(t, f.svc.Stake(ctx, alice, gt.Ether(100), 30*day, 1))

	err := f.svc.Withdraw(ctx, stOwner, 1, 0)
	require.ErrorIs(t, err, ErrStakeOngoing)
	assert.EqualError(t, err, "Stake duration still ongoing")

	f.clk.advance(30*24*time.Hour + time.Second)
	balBefore := f.ledger.BalanceOf(stakeAddr)
	require.NoError(t, f.svc.Withdraw(ctx, stOwner, 1, 0))

	assert.True(t, f.ledger.BalanceOf(stOwner).Eq(gt.Ether(10000)))
	diff := balBefore.Clone()
	diff.Sub(diff, f.ledger.BalanceOf(stakeAddr))
	assert.True(t, diff.Eq(gt.Ether(5000)))

	// The account leaves the tier's user set once its last position closes.
	assert.Equal(t, []string{alice}, f.svc.GetAllUser(1))
	positions, err := f.svc.GetUserPosition(ctx, stOwner, 1)
	require.NoError(t, err)
	assert.Empty(t, positions)

	total, err := f.svc.TotalDeposits(ctx, 1)
	require.NoError(t, err)
	assert.True(t, total.Eq(gt.Ether(100)))
}

func TestWithdrawPositionSwapAndPop(t *testing.T) {
	f := newStakeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Stake(ctx, stOwner, gt.Ether(1000), day, 1))
	require.NoError(t, f.svc.Stake(ctx, stOwner, gt.Ether(2000), day, 1))
	require.NoError(t, f.svc.Stake(ctx, stOwner, gt.Ether(3000), day, 1))
	f.clk.advance(48 * time.Hour)

	// Removing the head moves the tail into its slot.
	require.NoError(t, f.svc.Withdraw(ctx, stOwner, 1, 0))
	positions, err := f.svc.GetUserPosition(ctx, stOwner, 1)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.True(t, positions[0].Amount.Eq(gt.Ether(3000)))
	assert.True(t, positions[1].Amount.Eq(gt.Ether(2000)))

	assert.ErrorIs(t, f.svc.Withdraw(ctx, stOwner, 1, 2), ErrNoPosition)
	assert.ErrorIs(t, f.svc.Withdraw(ctx, bob, 1, 0), ErrNoPosition)
}

func TestUserSetSwapAndPop(t *testing.T) {
	f := newStakeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Stake(ctx, stOwner, gt.Ether(1), day, 1))
	require.NoError(t, f.svc.Stake(ctx, alice, gt.Ether(2), day, 1))
	require.NoError(t, f.svc.Stake(ctx, bob, gt.Ether(3), day, 1))
	f.clk.advance(48 * time.Hour)

	// Closing the middle account moves the last one into its slot.
	require.NoError(t, f.svc.Withdraw(ctx, alice, 1, 0))
	assert.Equal(t, []string{stOwner, bob}, f.svc.GetAllUser(1))
}

func TestRebuildFromStore(t *testing.T) {
	f := newStakeFixture(t)
	ctx := context.Background()

	store := NewMemoryStore()
	svc, err := New(ctx, Params{Address: stakeAddr, Ledger: f.ledger, Store: store, Now: f.clk.now})
	require.NoError(t, err)
	require.NoError(t, svc.Stake(ctx, stOwner, gt.Ether(10), day, 1))
	require.NoError(t, svc.Stake(ctx, alice, gt.Ether(20), day, 1))

	// A fresh service over the same store sees the same users and totals.
	reborn, err := New(ctx, Params{Address: stakeAddr, Ledger: f.ledger, Store: store, Now: f.clk.now})
	require.NoError(t, err)
	assert.Equal(t, []string{stOwner, alice}, reborn.GetAllUser(1))
	total, err := reborn.TotalDeposits(ctx, 1)
	require.NoError(t, err)
	assert.True(t, total.Eq(gt.Ether(30)))
}

// flakyStore injects store write failures.
type flakyStore struct {
	Store
	failPutAccount bool
	failSaveTotal  bool
}

func (s *flakyStore) PutAccount(ctx context.Context, tier uint64, rec AccountRecord) error {
	if s.failPutAccount {
		return errors.New("disk full")
	}
	return s.Store.PutAccount(ctx, tier, rec)
}

func (s *flakyStore) SaveTotal(ctx context.Context, tier uint64, total gt.Amount) error {
	if s.failSaveTotal {
		return errors.New("disk full")
	}
	return s.Store.SaveTotal(ctx, tier, total)
}

// A store failure mid-deposit must not leave funds pooled without a
// recorded position.
func TestStakeStoreFailureRefunds(t *testing.T) {
	store := &flakyStore{Store: NewMemoryStore()}
	f := newStakeFixtureStore(t, store)
	ctx := context.Background()

	store.failPutAccount = true
	err := f.svc.Stake(ctx, alice, gt.Ether(100), 30*day, 1)
	require.ErrorContains(t, err, "put account")
	assert.True(t, f.ledger.BalanceOf(alice).Eq(gt.Ether(10000)))
	assert.True(t, f.ledger.BalanceOf(stakeAddr).IsZero())
	assert.Empty(t, f.svc.GetAllUser(1))

	store.failPutAccount = false
	store.failSaveTotal = true
	err = f.svc.Stake(ctx, alice, gt.Ether(100), 30*day, 1)
	require.ErrorContains(t, err, "save total")
	assert.True(t, f.ledger.BalanceOf(alice).Eq(gt.Ether(10000)))
	assert.True(t, f.ledger.BalanceOf(stakeAddr).IsZero())
	assert.Empty(t, f.svc.GetAllUser(1))
	positions, err := f.svc.GetUserPosition(ctx, alice, 1)
	require.NoError(t, err)
	assert.Empty(t, positions)

	store.failSaveTotal = false
	require.NoError(t, f.svc.Stake(ctx, alice, gt.Ether(100), 30*day, 1))
	assert.Equal(t, []string{alice}, f.svc.GetAllUser(1))
	total, err := f.svc.TotalDeposits(ctx, 1)
	require.NoError(t, err)
	assert.True(t, total.Eq(gt.Ether(100)))
}
