package disputes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTransition(t *testing.T) {
	sm := NewStateMachine(newMemTransitionStore())

	valid := []struct {
		from, to DisputeStatus
	}{
		{StatusOpened, StatusInvestigating},
		{StatusInvestigating, StatusChargebackInitiated},
		{StatusInvestigating, StatusPendingMerchantResponse},
		{StatusChargebackInitiated, StatusRepresentmentReview},
		{StatusPendingMerchantResponse, StatusResolvedCustomer},
		{StatusRepresentmentReview, StatusResolvedMerchant},
		{StatusResolvedMerchant, StatusClosed},
		{StatusResolvedCustomer, StatusClosed},
		{StatusOpened, StatusEscalated},
		{StatusRepresentmentReview, StatusOverdue},
		{StatusEscalated, StatusInvestigating},
		{StatusOverdue, StatusResolvedCustomer},
	}
	for _, tc := range valid {
		assert.True(t, sm.IsValidTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	invalid := []struct {
		from, to DisputeStatus
	}{
		{StatusOpened, StatusChargebackInitiated},
		{StatusOpened, StatusResolvedCustomer},
		{StatusClosed, StatusInvestigating},
		{StatusClosed, StatusEscalated},
		{StatusResolvedMerchant, StatusInvestigating},
		{StatusResolvedMerchant, StatusResolvedCustomer},
		{StatusInvestigating, StatusOpened},
		{StatusOverdue, StatusClosed},
	}
	for _, tc := range invalid {
		assert.False(t, sm.IsValidTransition(tc.from, tc.to), "%s -> %s should be rejected", tc.from, tc.to)
	}
}

func TestRecordBuildsHashChain(t *testing.T) {
	ctx := context.Background()
	sm := NewStateMachine(newMemTransitionStore())

	first, err := sm.Record(ctx, "DSP-1", "", StatusOpened, "dispute opened", "agent-7")
	require.NoError(t, err)
	assert.Empty(t, first.PrevHash)
	assert.NotEmpty(t, first.TransitionHash)

	second, err := sm.Record(ctx, "DSP-1", StatusOpened, StatusInvestigating, "investigation started", "agent-7")
	require.NoError(t, err)
	assert.Equal(t, first.TransitionHash, second.PrevHash)

	ok, err := sm.VerifyChainIntegrity(ctx, "DSP-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	sm := NewStateMachine(newMemTransitionStore())

	_, err := sm.Record(ctx, "DSP-1", StatusOpened, StatusClosed, "skip to the end", "agent-7")
	var ise *IllegalStateError
	require.ErrorAs(t, err, &ise)
}

func TestVerifyChainIntegrityDetectsTampering(t *testing.T) {
	ctx := context.Background()
	store := newMemTransitionStore()
	sm := NewStateMachine(store)

	_, err := sm.Record(ctx, "DSP-1", "", StatusOpened, "dispute opened", "agent-7")
	require.NoError(t, err)
	_, err = sm.Record(ctx, "DSP-1", StatusOpened, StatusInvestigating, "investigation started", "agent-7")
	require.NoError(t, err)

	store.mu.Lock()
	store.transitions["DSP-1"][0].Reason = "rewritten"
	store.mu.Unlock()

	ok, err := sm.VerifyChainIntegrity(ctx, "DSP-1")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestChainsAreIndependentPerDispute(t *testing.T) {
	ctx := context.Background()
	sm := NewStateMachine(newMemTransitionStore())

	a, err := sm.Record(ctx, "DSP-A", "", StatusOpened, "opened", "agent-7")
	require.NoError(t, err)
	b, err := sm.Record(ctx, "DSP-B", "", StatusOpened, "opened", "agent-7")
	require.NoError(t, err)

	assert.Empty(t, a.PrevHash)
	assert.Empty(t, b.PrevHash, "a new dispute's chain must not link to another dispute")
}
