package disputes

import "context"

// DisputeStore is the durable home of dispute records. Implementations return
// (nil, nil) when the id is unknown; the engine turns that into a
// NotFoundError. Save must compare-and-swap on Version and return
// ErrVersionConflict when the stored version differs.
type DisputeStore interface {
	FindByID(ctx context.Context, disputeID string) (*Dispute, error)
	FindByStatus(ctx context.Context, status DisputeStatus) ([]*Dispute, error)
	Create(ctx context.Context, d *Dispute) error
	Save(ctx context.Context, d *Dispute) error
}

// TransactionStore gives read-only access to the transactions being disputed.
type TransactionStore interface {
	FindByID(ctx context.Context, transactionID string) (*Transaction, error)
}
