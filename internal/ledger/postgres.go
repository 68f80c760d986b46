package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// lockNotAvailable is the Postgres error code raised by FOR UPDATE NOWAIT
// when another transaction holds the row lock.
const lockNotAvailable = "55P03"

// PostgresStore implements Store on a pgx pool. LockForUpdate opens a
// transaction and takes the row lock with NOWAIT so a held lock surfaces
// immediately as ErrLockUnavailable instead of blocking.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

func (s *PostgresStore) FindByID(ctx context.Context, accountID string) (*Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	a := &Account{}
	err := s.Pool.QueryRow(queryCtx, `
		SELECT id, account_number, currency_code, balance, updated_at
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(&a.ID, &a.Number, &a.Currency, &a.Balance, &a.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) LockForUpdate(ctx context.Context, accountID string) (LockedAccount, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.Pool.BeginTx(queryCtx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	a := &Account{}
	err = tx.QueryRow(queryCtx, `
		SELECT id, account_number, currency_code, balance, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE NOWAIT
	`, accountID).Scan(&a.ID, &a.Number, &a.Currency, &a.Balance, &a.UpdatedAt)

	if err != nil {
		_ = tx.Rollback(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
			return nil, ErrLockUnavailable
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	return &pgLockedAccount{tx: tx, account: a}, nil
}

type pgLockedAccount struct {
	tx      pgx.Tx
	account *Account
	done    bool
}

func (l *pgLockedAccount) Account() *Account { return l.account }

func (l *pgLockedAccount) Save(ctx context.Context, a *Account) error {
	if l.done {
		return errors.New("ledger: lock already released")
	}
	l.done = true

	_, err := l.tx.Exec(ctx, `
		UPDATE accounts
		SET balance = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`, a.ID, a.Balance)
	if err != nil {
		_ = l.tx.Rollback(ctx)
		return fmt.Errorf("failed to update balance: %w", err)
	}

	if err := l.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit balance update: %w", err)
	}
	return nil
}

func (l *pgLockedAccount) Release(ctx context.Context) error {
	if l.done {
		return nil
	}
	l.done = true
	return l.tx.Rollback(ctx)
}
