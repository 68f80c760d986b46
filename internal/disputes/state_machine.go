package disputes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AllowedTransitions defines the lifecycle graph. ESCALATED and OVERDUE are
// side-states reachable from any non-terminal state; CLOSED is the only true
// terminal.
func AllowedTransitions() map[DisputeStatus][]DisputeStatus {
	return map[DisputeStatus][]DisputeStatus{
		StatusOpened: {
			StatusInvestigating, StatusEscalated, StatusOverdue,
		},
		StatusInvestigating: {
			StatusChargebackInitiated, StatusPendingMerchantResponse,
			StatusResolvedMerchant, StatusResolvedCustomer,
			StatusEscalated, StatusOverdue,
		},
		StatusChargebackInitiated: {
			StatusPendingMerchantResponse, StatusRepresentmentReview,
			StatusResolvedMerchant, StatusResolvedCustomer,
			StatusEscalated, StatusOverdue,
		},
		StatusPendingMerchantResponse: {
			StatusRepresentmentReview,
			StatusResolvedMerchant, StatusResolvedCustomer,
			StatusEscalated, StatusOverdue,
		},
		StatusRepresentmentReview: {
			StatusResolvedMerchant, StatusResolvedCustomer,
			StatusEscalated, StatusOverdue,
		},
		StatusEscalated: {
			StatusInvestigating, StatusChargebackInitiated,
			StatusPendingMerchantResponse, StatusRepresentmentReview,
			StatusResolvedMerchant, StatusResolvedCustomer, StatusOverdue,
		},
		StatusOverdue: {
			StatusEscalated, StatusResolvedMerchant, StatusResolvedCustomer,
		},
		StatusResolvedMerchant: {StatusClosed},
		StatusResolvedCustomer: {StatusClosed},
		StatusClosed:           {},
	}
}

// StateTransition is one hash-chained audit entry for a dispute.
type StateTransition struct {
	ID             string        `json:"id"`
	DisputeID      string        `json:"dispute_id"`
	FromStatus     DisputeStatus `json:"from_status"`
	ToStatus       DisputeStatus `json:"to_status"`
	Reason         string        `json:"reason"`
	TransitionHash string        `json:"transition_hash"`
	PrevHash       string        `json:"prev_hash"`
	CreatedAt      time.Time     `json:"created_at"`
	Actor          string        `json:"actor"`
}

// TransitionStore persists the immutable transition journal.
type TransitionStore interface {
	CreateTransition(ctx context.Context, transition *StateTransition) error
	GetLatestTransition(ctx context.Context, disputeID string) (*StateTransition, error)
	GetTransitionHistory(ctx context.Context, disputeID string) ([]*StateTransition, error)
}

// StateMachine validates transitions against the lifecycle graph and records
// each accepted one as a hash-chained journal entry.
type StateMachine struct {
	store TransitionStore
	now   func() time.Time
}

func NewStateMachine(store TransitionStore) *StateMachine {
	return &StateMachine{store: store, now: time.Now}
}

// IsValidTransition checks the lifecycle graph.
func (sm *StateMachine) IsValidTransition(from, to DisputeStatus) bool {
	for _, allowed := range AllowedTransitions()[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Record validates from→to and appends the journal entry. The caller supplies
// the current status from the dispute record it holds under the per-dispute
// writer lock, so the journal and the record cannot disagree on ordering.
func (sm *StateMachine) Record(ctx context.Context, disputeID string, from, to DisputeStatus, reason, actor string) (*StateTransition, error) {
	if disputeID == "" {
		return nil, &ValidationError{Field: "dispute_id", Reason: "required"}
	}
	if from != "" && !sm.IsValidTransition(from, to) {
		return nil, &IllegalStateError{
			Op:     "transition",
			Reason: fmt.Sprintf("status %s does not permit %s", from, to),
		}
	}

	return sm.append(ctx, disputeID, from, to, reason, actor)
}

// RecordRollback journals a compensating reversal outside the forward
// lifecycle graph. It exists for the one case where a downstream ledger write
// fails after the forward transition was journaled: the record is restored to
// its prior status and the chain must say so.
func (sm *StateMachine) RecordRollback(ctx context.Context, disputeID string, from, to DisputeStatus, reason, actor string) (*StateTransition, error) {
	if disputeID == "" {
		return nil, &ValidationError{Field: "dispute_id", Reason: "required"}
	}
	return sm.append(ctx, disputeID, from, to, reason, actor)
}

func (sm *StateMachine) append(ctx context.Context, disputeID string, from, to DisputeStatus, reason, actor string) (*StateTransition, error) {
	prevHash := ""
	latest, err := sm.store.GetLatestTransition(ctx, disputeID)
	if err != nil {
		return nil, &InfrastructureError{Op: "transition journal read", Err: err}
	}
	if latest != nil {
		prevHash = latest.TransitionHash
	}

	t := &StateTransition{
		ID:         uuid.NewString(),
		DisputeID:  disputeID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		PrevHash:   prevHash,
		CreatedAt:  sm.now().UTC(),
		Actor:      actor,
	}
	t.TransitionHash = transitionHash(t)

	if err := sm.store.CreateTransition(ctx, t); err != nil {
		return nil, &InfrastructureError{Op: "transition journal write", Err: err}
	}
	return t, nil
}

// History returns the full journal for a dispute, oldest first.
func (sm *StateMachine) History(ctx context.Context, disputeID string) ([]*StateTransition, error) {
	return sm.store.GetTransitionHistory(ctx, disputeID)
}

// VerifyChainIntegrity recomputes hashes over the journal and checks the
// chain links.
func (sm *StateMachine) VerifyChainIntegrity(ctx context.Context, disputeID string) (bool, error) {
	transitions, err := sm.store.GetTransitionHistory(ctx, disputeID)
	if err != nil {
		return false, err
	}

	for i, t := range transitions {
		if i > 0 && t.PrevHash != transitions[i-1].TransitionHash {
			return false, fmt.Errorf("hash chain broken at transition %s", t.ID)
		}
		if transitionHash(t) != t.TransitionHash {
			return false, fmt.Errorf("hash mismatch at transition %s", t.ID)
		}
	}
	return true, nil
}

func transitionHash(t *StateTransition) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		t.DisputeID,
		t.FromStatus,
		t.ToStatus,
		t.Reason,
		t.Actor,
		t.CreatedAt.Format(time.RFC3339Nano),
		t.PrevHash,
	)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
