// Package gt models the fungible payment token ("GT") the ledgers settle in.
//
// The real token lives outside this system; components only depend on the
// Ledger interface. Token is a complete in-memory implementation with
// ERC-20 allowance semantics, used by fixtures and by marketd when no
// external ledger is wired.
package gt

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"
)

// Amount is an integer token amount with 18 implied decimal places.
type Amount = *uint256.Int

// ZeroAddress is the null account. Transfers never credit it; components
// treat it as "unset".
const ZeroAddress = ""

var (
	ErrInsufficientFunds     = errors.New("transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

var weiPerToken = uint256.NewInt(1_000_000_000_000_000_000)

// Ether returns n whole tokens in base units (n * 10^18).
func Ether(n uint64) Amount {
	return new(uint256.Int).Mul(uint256.NewInt(n), weiPerToken)
}

// Zero returns a fresh zero amount.
func Zero() Amount { return uint256.NewInt(0) }

// IsZero reports whether a is nil or zero.
func IsZero(a Amount) bool { return a == nil || a.IsZero() }

// Ledger is the balance-transfer surface of the payment token.
type Ledger interface {
	// BalanceOf returns the account's balance.
	BalanceOf(account string) Amount

	// Allowance returns how much spender may move out of owner's balance.
	Allowance(owner, spender string) Amount

	// Transfer moves amount from from to to. A zero amount is a no-op.
	Transfer(from, to string, amount Amount) error

	// TransferFrom moves amount from owner to to, spending spender's
	// allowance. A zero amount is a no-op.
	TransferFrom(spender, owner, to string, amount Amount) error

	// Approve sets spender's allowance over owner's balance.
	Approve(owner, spender string, amount Amount) error
}

// Token is an in-memory Ledger with mint support for fixtures.
type Token struct {
	mu         sync.RWMutex
	balances   map[string]*uint256.Int
	allowances map[string]map[string]*uint256.Int
	supply     *uint256.Int
}

// NewToken creates an empty token.
func NewToken() *Token {
	return &Token{
		balances:   make(map[string]*uint256.Int),
		allowances: make(map[string]map[string]*uint256.Int),
		supply:     uint256.NewInt(0),
	}
}

// Mint credits amount to account, growing total supply.
func (t *Token) Mint(account string, amount Amount) {
	if IsZero(amount) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(account, amount)
	t.supply = new(uint256.Int).Add(t.supply, amount)
}

// TotalSupply returns the minted supply.
func (t *Token) TotalSupply() Amount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supply.Clone()
}

// BalanceOf returns the account's balance.
func (t *Token) BalanceOf(account string) Amount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.balances[account]; ok {
		return b.Clone()
	}
	return uint256.NewInt(0)
}

// Allowance returns spender's allowance over owner's balance.
func (t *Token) Allowance(owner, spender string) Amount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if m, ok := t.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a.Clone()
		}
	}
	return uint256.NewInt(0)
}

// Approve sets spender's allowance over owner's balance.
func (t *Token) Approve(owner, spender string, amount Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[string]*uint256.Int)
		t.allowances[owner] = m
	}
	if IsZero(amount) {
		delete(m, spender)
		return nil
	}
	m[spender] = amount.Clone()
	return nil
}

// Transfer moves amount from from to to.
func (t *Token) Transfer(from, to string, amount Amount) error {
	if IsZero(amount) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

// TransferFrom moves amount from owner to to, spending spender's allowance.
func (t *Token) TransferFrom(spender, owner, to string, amount Amount) error {
	if IsZero(amount) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := uint256.NewInt(0)
	if m, ok := t.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			allowed = a
		}
	}
	if allowed.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := t.move(owner, to, amount); err != nil {
		return err
	}
	t.allowances[owner][spender] = new(uint256.Int).Sub(allowed, amount)
	return nil
}

// move debits from and credits to. Callers hold the lock.
func (t *Token) move(from, to string, amount Amount) error {
	bal, ok := t.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	t.balances[from] = new(uint256.Int).Sub(bal, amount)
	t.credit(to, amount)
	return nil
}

func (t *Token) credit(account string, amount Amount) {
	if b, ok := t.balances[account]; ok {
		t.balances[account] = new(uint256.Int).Add(b, amount)
		return
	}
	t.balances[account] = amount.Clone()
}
