package disputes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements DisputeStore on a pgx pool. Save is a conditional
// update on the version column; a lost race surfaces as ErrVersionConflict.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

const disputeColumns = `
	id, transaction_id, account_id, merchant_id, dispute_type, reason_code,
	description, status, provisional_credit, documentation_required,
	escalation_level, chargeback_id, created_at, regulatory_deadline,
	resolution_date, resolution_reason, version
`

func (s *PostgresStore) FindByID(ctx context.Context, disputeID string) (*Dispute, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE id = $1
	`, disputeID)

	d, err := scanPgDispute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query dispute: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) FindByStatus(ctx context.Context, status DisputeStatus) ([]*Dispute, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE status = $1
		ORDER BY created_at
	`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query disputes: %w", err)
	}
	defer rows.Close()

	var ds []*Dispute
	for rows.Next() {
		d, err := scanPgDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispute: %w", err)
		}
		ds = append(ds, d)
	}
	return ds, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO disputes (`+disputeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, d.ID, d.TransactionID, d.AccountID, d.MerchantID, d.Type, d.ReasonCode,
		d.Description, d.Status, d.ProvisionalCredit, d.DocumentationRequired,
		nullStr(d.EscalationLevel), nullStr(d.ChargebackID), d.CreatedAt, d.RegulatoryDeadline,
		d.ResolutionDate, nullStr(d.ResolutionReason), d.Version)
	if err != nil {
		return fmt.Errorf("failed to insert dispute: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, d *Dispute) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE disputes
		SET status = $2, provisional_credit = $3, escalation_level = $4,
		    chargeback_id = $5, resolution_date = $6, resolution_reason = $7,
		    version = version + 1
		WHERE id = $1 AND version = $8
	`, d.ID, d.Status, d.ProvisionalCredit, nullStr(d.EscalationLevel),
		nullStr(d.ChargebackID), d.ResolutionDate, nullStr(d.ResolutionReason), d.Version)
	if err != nil {
		return fmt.Errorf("failed to update dispute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	d.Version++
	return nil
}

func scanPgDispute(row pgx.Row) (*Dispute, error) {
	d := &Dispute{}
	var escalation, chargeback, resolutionReason sql.NullString
	var resolutionDate sql.NullTime

	err := row.Scan(
		&d.ID, &d.TransactionID, &d.AccountID, &d.MerchantID, &d.Type, &d.ReasonCode,
		&d.Description, &d.Status, &d.ProvisionalCredit, &d.DocumentationRequired,
		&escalation, &chargeback, &d.CreatedAt, &d.RegulatoryDeadline,
		&resolutionDate, &resolutionReason, &d.Version,
	)
	if err != nil {
		return nil, err
	}

	d.EscalationLevel = escalation.String
	d.ChargebackID = chargeback.String
	d.ResolutionReason = resolutionReason.String
	if resolutionDate.Valid {
		t := resolutionDate.Time
		d.ResolutionDate = &t
	}
	return d, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// PostgresTransitionStore persists the transition journal.
type PostgresTransitionStore struct {
	Pool *pgxpool.Pool
}

func (s *PostgresTransitionStore) CreateTransition(ctx context.Context, t *StateTransition) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO dispute_transitions (
			id, dispute_id, from_status, to_status, reason, transition_hash,
			prev_hash, created_at, actor
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.DisputeID, string(t.FromStatus), string(t.ToStatus), t.Reason,
		t.TransitionHash, t.PrevHash, t.CreatedAt, t.Actor)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

func (s *PostgresTransitionStore) GetLatestTransition(ctx context.Context, disputeID string) (*StateTransition, error) {
	t := &StateTransition{}
	err := s.Pool.QueryRow(ctx, `
		SELECT id, dispute_id, from_status, to_status, reason, transition_hash,
		       prev_hash, created_at, actor
		FROM dispute_transitions
		WHERE dispute_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, disputeID).Scan(
		&t.ID, &t.DisputeID, &t.FromStatus, &t.ToStatus, &t.Reason,
		&t.TransitionHash, &t.PrevHash, &t.CreatedAt, &t.Actor,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query transition: %w", err)
	}
	return t, nil
}

func (s *PostgresTransitionStore) GetTransitionHistory(ctx context.Context, disputeID string) ([]*StateTransition, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, dispute_id, from_status, to_status, reason, transition_hash,
		       prev_hash, created_at, actor
		FROM dispute_transitions
		WHERE dispute_id = $1
		ORDER BY created_at ASC
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

// PostgresTransactionStore reads the externally-owned transaction records.
type PostgresTransactionStore struct {
	Pool *pgxpool.Pool
}

func (s *PostgresTransactionStore) FindByID(ctx context.Context, transactionID string) (*Transaction, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	t := &Transaction{}
	err := s.Pool.QueryRow(queryCtx, `
		SELECT id, account_id, merchant_id, card_number, amount, currency_code, posted_at
		FROM transactions
		WHERE id = $1
	`, transactionID).Scan(&t.ID, &t.AccountID, &t.MerchantID, &t.CardNumber, &t.Amount, &t.Currency, &t.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return t, nil
}
