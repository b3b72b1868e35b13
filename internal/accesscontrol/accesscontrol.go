// Package accesscontrol implements the owner-plus-admins predicate shared by
// every mutating ledger entry point.
package accesscontrol

import (
	"errors"
	"sync"
)

// ErrUnauthorized is returned when a caller is neither the owner nor a
// flagged admin. The message is matched verbatim by existing integrations.
var ErrUnauthorized = errors.New("admin: wut?")

// ErrNotOwner is returned when an owner-only operation (admin management)
// is attempted by anyone else, admins included.
var ErrNotOwner = errors.New("caller is not the owner")

// List tracks the fixed owner and the mutable admin set of one component.
type List struct {
	mu     sync.RWMutex
	owner  string
	admins map[string]bool
}

// New creates a list with the given owner and no admins.
func New(owner string) *List {
	return &List{owner: owner, admins: make(map[string]bool)}
}

// Owner returns the designated owner. The owner is not reassignable.
func (l *List) Owner() string { return l.owner }

// SetAdmin flags or unflags an admin. Only the owner may call this.
func (l *List) SetAdmin(caller, account string, enabled bool) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if enabled {
		l.admins[account] = true
	} else {
		delete(l.admins, account)
	}
	return nil
}

// IsAdmin reports whether account is the owner or a flagged admin.
func (l *List) IsAdmin(account string) bool {
	if account == l.owner {
		return true
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.admins[account]
}

// Require returns ErrUnauthorized unless caller passes IsAdmin.
func (l *List) Require(caller string) error {
	if !l.IsAdmin(caller) {
		return ErrUnauthorized
	}
	return nil
}
