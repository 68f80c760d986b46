// Package ledger gives the dispute engine its only write path into account
// balances: an exclusive acquire-for-update read scoped to a single
// read-modify-write.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound signals a missing account.
	ErrNotFound = errors.New("ledger: account not found")

	// ErrLockUnavailable signals that another in-flight operation holds the
	// account's update lock. Callers fail fast and decide on retry policy.
	ErrLockUnavailable = errors.New("ledger: account is locked for update")
)

// Account is the balance record. The engine treats Balance as an opaque exact
// decimal it may add to or subtract from under lock.
type Account struct {
	ID        string          `json:"id"`
	Number    string          `json:"account_number"`
	Currency  string          `json:"currency_code"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LockedAccount is an account held under an exclusive update lock. Exactly one
// of Save or Release must be called; both end the lock's scope.
type LockedAccount interface {
	Account() *Account
	Save(ctx context.Context, a *Account) error
	Release(ctx context.Context) error
}

// Store is the account ledger the engine depends on.
type Store interface {
	FindByID(ctx context.Context, accountID string) (*Account, error)
	LockForUpdate(ctx context.Context, accountID string) (LockedAccount, error)
}
