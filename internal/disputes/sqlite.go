package disputes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SQLiteStore backs the dispute, transaction and transition stores on
// database/sql for local development and the integration suites.
type SQLiteStore struct {
	DB *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{DB: db}
}

// Migrate creates the dispute tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS disputes (
			id TEXT PRIMARY KEY,
			transaction_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			merchant_id TEXT NOT NULL,
			dispute_type TEXT NOT NULL,
			reason_code TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			provisional_credit TEXT NOT NULL,
			documentation_required INTEGER NOT NULL,
			escalation_level TEXT NOT NULL DEFAULT '',
			chargeback_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			regulatory_deadline TIMESTAMP NOT NULL,
			resolution_date TIMESTAMP,
			resolution_reason TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			merchant_id TEXT NOT NULL,
			card_number TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency_code TEXT NOT NULL,
			posted_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dispute_transitions (
			id TEXT PRIMARY KEY,
			dispute_id TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			reason TEXT NOT NULL,
			transition_hash TEXT NOT NULL,
			prev_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			actor TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, disputeID string) (*Dispute, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, transaction_id, account_id, merchant_id, dispute_type, reason_code,
		       description, status, provisional_credit, documentation_required,
		       escalation_level, chargeback_id, created_at, regulatory_deadline,
		       resolution_date, resolution_reason, version
		FROM disputes
		WHERE id = ?
	`, disputeID)

	d, err := scanSQLiteDispute(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query dispute: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) FindByStatus(ctx context.Context, status DisputeStatus) ([]*Dispute, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, transaction_id, account_id, merchant_id, dispute_type, reason_code,
		       description, status, provisional_credit, documentation_required,
		       escalation_level, chargeback_id, created_at, regulatory_deadline,
		       resolution_date, resolution_reason, version
		FROM disputes
		WHERE status = ?
		ORDER BY created_at
	`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query disputes: %w", err)
	}
	defer rows.Close()

	var ds []*Dispute
	for rows.Next() {
		d, err := scanSQLiteDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispute: %w", err)
		}
		ds = append(ds, d)
	}
	return ds, rows.Err()
}

func (s *SQLiteStore) Create(ctx context.Context, d *Dispute) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO disputes (
			id, transaction_id, account_id, merchant_id, dispute_type, reason_code,
			description, status, provisional_credit, documentation_required,
			escalation_level, chargeback_id, created_at, regulatory_deadline,
			resolution_date, resolution_reason, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.TransactionID, d.AccountID, d.MerchantID, string(d.Type), string(d.ReasonCode),
		d.Description, string(d.Status), d.ProvisionalCredit.String(), d.DocumentationRequired,
		d.EscalationLevel, d.ChargebackID, d.CreatedAt, d.RegulatoryDeadline,
		d.ResolutionDate, d.ResolutionReason, d.Version)
	if err != nil {
		return fmt.Errorf("failed to insert dispute: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, d *Dispute) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE disputes
		SET status = ?, provisional_credit = ?, escalation_level = ?,
		    chargeback_id = ?, resolution_date = ?, resolution_reason = ?,
		    version = version + 1
		WHERE id = ? AND version = ?
	`, string(d.Status), d.ProvisionalCredit.String(), d.EscalationLevel,
		d.ChargebackID, d.ResolutionDate, d.ResolutionReason, d.ID, d.Version)
	if err != nil {
		return fmt.Errorf("failed to update dispute: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update dispute: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}

	d.Version++
	return nil
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDispute(row sqliteScanner) (*Dispute, error) {
	d := &Dispute{}
	var credit string
	var resolutionDate sql.NullTime

	err := row.Scan(
		&d.ID, &d.TransactionID, &d.AccountID, &d.MerchantID, &d.Type, &d.ReasonCode,
		&d.Description, &d.Status, &credit, &d.DocumentationRequired,
		&d.EscalationLevel, &d.ChargebackID, &d.CreatedAt, &d.RegulatoryDeadline,
		&resolutionDate, &d.ResolutionReason, &d.Version,
	)
	if err != nil {
		return nil, err
	}

	d.ProvisionalCredit, err = decimal.NewFromString(credit)
	if err != nil {
		return nil, fmt.Errorf("corrupt credit amount for dispute %s: %w", d.ID, err)
	}
	if resolutionDate.Valid {
		t := resolutionDate.Time
		d.ResolutionDate = &t
	}
	return d, nil
}

// SQLiteTransactionStore reads transaction records from the same database.
type SQLiteTransactionStore struct {
	DB *sql.DB
}

// SeedTransaction inserts a transaction fixture.
func (s *SQLiteTransactionStore) SeedTransaction(ctx context.Context, t *Transaction) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, merchant_id, card_number, amount, currency_code, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.AccountID, t.MerchantID, t.CardNumber, t.Amount.String(), t.Currency, t.PostedAt)
	return err
}

func (s *SQLiteTransactionStore) FindByID(ctx context.Context, transactionID string) (*Transaction, error) {
	t := &Transaction{}
	var amount string
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, account_id, merchant_id, card_number, amount, currency_code, posted_at
		FROM transactions
		WHERE id = ?
	`, transactionID).Scan(&t.ID, &t.AccountID, &t.MerchantID, &t.CardNumber, &amount, &t.Currency, &t.PostedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for transaction %s: %w", t.ID, err)
	}
	return t, nil
}

// SQLiteTransitionStore persists the transition journal.
type SQLiteTransitionStore struct {
	DB *sql.DB
}

func (s *SQLiteTransitionStore) CreateTransition(ctx context.Context, t *StateTransition) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO dispute_transitions (
			id, dispute_id, from_status, to_status, reason, transition_hash,
			prev_hash, created_at, actor
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.DisputeID, string(t.FromStatus), string(t.ToStatus), t.Reason,
		t.TransitionHash, t.PrevHash, t.CreatedAt, t.Actor)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

func (s *SQLiteTransitionStore) GetLatestTransition(ctx context.Context, disputeID string) (*StateTransition, error) {
	t := &StateTransition{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, dispute_id, from_status, to_status, reason, transition_hash,
		       prev_hash, created_at, actor
		FROM dispute_transitions
		WHERE dispute_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, disputeID).Scan(
		&t.ID, &t.DisputeID, &t.FromStatus, &t.ToStatus, &t.Reason,
		&t.TransitionHash, &t.PrevHash, &t.CreatedAt, &t.Actor,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query transition: %w", err)
	}
	return t, nil
}

func (s *SQLiteTransitionStore) GetTransitionHistory(ctx context.Context, disputeID string) ([]*StateTransition, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, dispute_id, from_status, to_status, reason, transition_hash,
		       prev_hash, created_at, actor
		FROM dispute_transitions
		WHERE dispute_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var transitions []*StateTransition
	for rows.Next() {
		t := &StateTransition{}
		err := rows.Scan(
			&t.ID, &t.DisputeID, &t.FromStatus, &t.ToStatus, &t.Reason,
			&t.TransitionHash, &t.PrevHash, &t.CreatedAt, &t.Actor,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}
