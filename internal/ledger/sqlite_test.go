package ledger

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store := NewSQLiteStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.CreateAccount(context.Background(), &Account{
		ID:       "ACC-1",
		Number:   "000123",
		Currency: "USD",
		Balance:  decimal.RequireFromString("1000.00"),
	}))
	return store
}

func TestFindByID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	a, err := store.FindByID(ctx, "ACC-1")
	require.NoError(t, err)
	assert.Equal(t, "ACC-1", a.ID)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("1000.00")))

	_, err = store.FindByID(ctx, "ACC-NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLockForUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("save applies the balance and releases", func(t *testing.T) {
		store := setupStore(t)

		la, err := store.LockForUpdate(ctx, "ACC-1")
		require.NoError(t, err)

		acct := la.Account()
		acct.Balance = acct.Balance.Add(decimal.RequireFromString("250.00"))
		require.NoError(t, la.Save(ctx, acct))

		got, err := store.FindByID(ctx, "ACC-1")
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("1250.00")))

		// Lock is free again.
		la2, err := store.LockForUpdate(ctx, "ACC-1")
		require.NoError(t, err)
		require.NoError(t, la2.Release(ctx))
	})

	t.Run("second acquirer fails fast", func(t *testing.T) {
		store := setupStore(t)

		la, err := store.LockForUpdate(ctx, "ACC-1")
		require.NoError(t, err)

		_, err = store.LockForUpdate(ctx, "ACC-1")
		assert.ErrorIs(t, err, ErrLockUnavailable)

		require.NoError(t, la.Release(ctx))

		la3, err := store.LockForUpdate(ctx, "ACC-1")
		require.NoError(t, err)
		require.NoError(t, la3.Release(ctx))
	})

	t.Run("unknown account", func(t *testing.T) {
		store := setupStore(t)
		_, err := store.LockForUpdate(ctx, "ACC-NOPE")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("release without save keeps the old balance", func(t *testing.T) {
		store := setupStore(t)

		la, err := store.LockForUpdate(ctx, "ACC-1")
		require.NoError(t, err)
		acct := la.Account()
		acct.Balance = decimal.Zero
		require.NoError(t, la.Release(ctx))

		got, err := store.FindByID(ctx, "ACC-1")
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("1000.00")))
	})

	t.Run("failed save releases the lock", func(t *testing.T) {
		store := setupStore(t)

		la, err := store.LockForUpdate(ctx, "ACC-1")
		require.NoError(t, err)

		// Reject balance writes so Save fails while the unlock statement,
		// which touches only the flag, still works.
		_, err = store.DB.ExecContext(ctx, `
			CREATE TRIGGER balance_frozen BEFORE UPDATE OF balance ON accounts
			BEGIN SELECT RAISE(ABORT, 'balance frozen'); END
		`)
		require.NoError(t, err)

		acct := la.Account()
		acct.Balance = decimal.Zero
		require.Error(t, la.Save(ctx, acct))

		_, err = store.DB.ExecContext(ctx, `DROP TRIGGER balance_frozen`)
		require.NoError(t, err)

		// The account is not stranded behind the failed write.
		la2, err := store.LockForUpdate(ctx, "ACC-1")
		require.NoError(t, err)
		require.NoError(t, la2.Release(ctx))

		got, err := store.FindByID(ctx, "ACC-1")
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("1000.00")))
	})

	t.Run("save after release is rejected", func(t *testing.T) {
		store := setupStore(t)

		la, err := store.LockForUpdate(ctx, "ACC-1")
		require.NoError(t, err)
		require.NoError(t, la.Release(ctx))
		assert.Error(t, la.Save(ctx, la.Account()))
	})
}

// TestLockContractUnderContention hammers the acquire-for-update path from
// many goroutines. Every successful acquirer applies exactly one increment, so
// the final balance counts the wins.
func TestLockContractUnderContention(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var wins atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			la, err := store.LockForUpdate(gctx, "ACC-1")
			if err != nil {
				if errors.Is(err, ErrLockUnavailable) {
					return nil
				}
				return err
			}
			acct := la.Account()
			acct.Balance = acct.Balance.Add(decimal.NewFromInt(1))
			if err := la.Save(gctx, acct); err != nil {
				return err
			}
			wins.Add(1)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	got, err := store.FindByID(ctx, "ACC-1")
	require.NoError(t, err)

	want := decimal.RequireFromString("1000.00").Add(decimal.NewFromInt(wins.Load()))
	assert.True(t, got.Balance.Equal(want),
		"balance %s must reflect exactly %d exclusive updates", got.Balance, wins.Load())
	assert.GreaterOrEqual(t, wins.Load(), int64(1))
}
