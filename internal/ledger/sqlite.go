package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SQLiteStore implements Store on database/sql for local development and the
// integration suites. SQLite has no row-level FOR UPDATE, so the lock is a
// conditional update on a locked flag: acquire succeeds only when the flag
// flips from 0 to 1.
type SQLiteStore struct {
	DB *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{DB: db}
}

// Migrate creates the accounts table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			account_number TEXT NOT NULL,
			currency_code TEXT NOT NULL,
			balance TEXT NOT NULL,
			locked INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// CreateAccount inserts a new account row.
func (s *SQLiteStore) CreateAccount(ctx context.Context, a *Account) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO accounts (id, account_number, currency_code, balance, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.Number, a.Currency, a.Balance.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, accountID string) (*Account, error) {
	return s.scanAccount(s.DB.QueryRowContext(ctx, `
		SELECT id, account_number, currency_code, balance, updated_at
		FROM accounts
		WHERE id = ?
	`, accountID))
}

func (s *SQLiteStore) LockForUpdate(ctx context.Context, accountID string) (LockedAccount, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE accounts SET locked = 1 WHERE id = ? AND locked = 0
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire account lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire account lock: %w", err)
	}
	if n == 0 {
		if _, findErr := s.FindByID(ctx, accountID); findErr != nil {
			return nil, findErr
		}
		return nil, ErrLockUnavailable
	}

	a, err := s.FindByID(ctx, accountID)
	if err != nil {
		_, _ = s.DB.ExecContext(ctx, `UPDATE accounts SET locked = 0 WHERE id = ?`, accountID)
		return nil, err
	}

	return &sqliteLockedAccount{store: s, account: a}, nil
}

func (s *SQLiteStore) scanAccount(row *sql.Row) (*Account, error) {
	a := &Account{}
	var balance string
	err := row.Scan(&a.ID, &a.Number, &a.Currency, &balance, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	a.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("corrupt balance for account %s: %w", a.ID, err)
	}
	return a, nil
}

type sqliteLockedAccount struct {
	store   *SQLiteStore
	account *Account
	done    bool
}

func (l *sqliteLockedAccount) Account() *Account { return l.account }

func (l *sqliteLockedAccount) Save(ctx context.Context, a *Account) error {
	if l.done {
		return errors.New("ledger: lock already released")
	}
	l.done = true

	_, err := l.store.DB.ExecContext(ctx, `
		UPDATE accounts
		SET balance = ?, locked = 0, updated_at = ?
		WHERE id = ?
	`, a.Balance.String(), time.Now().UTC(), a.ID)
	if err != nil {
		// The balance never landed, so the flag is still set. Drop it here:
		// a failed save releases the lock, matching what a transaction
		// rollback gives the postgres store.
		_, _ = l.store.DB.ExecContext(ctx, `UPDATE accounts SET locked = 0 WHERE id = ?`, a.ID)
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func (l *sqliteLockedAccount) Release(ctx context.Context) error {
	if l.done {
		return nil
	}
	l.done = true

	_, err := l.store.DB.ExecContext(ctx, `
		UPDATE accounts SET locked = 0 WHERE id = ?
	`, l.account.ID)
	return err
}
