package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRequestTransitionTable(t *testing.T) {
	statuses := []RequestStatus{
		RequestStatusPending, RequestStatusApproved, RequestStatusRejected,
		RequestStatusFulfilled, RequestStatusCancelled, RequestStatusPaymentFailed,
	}

	allowed := map[[2]RequestStatus]bool{
		{RequestStatusPending, RequestStatusApproved}:       true,
		{RequestStatusPending, RequestStatusRejected}:       true,
		{RequestStatusPending, RequestStatusCancelled}:      true,
		{RequestStatusPending, RequestStatusPaymentFailed}:  true,
		{RequestStatusApproved, RequestStatusFulfilled}:     true,
		{RequestStatusApproved, RequestStatusCancelled}:     true,
		{RequestStatusPaymentFailed, RequestStatusCancelled}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, allowed[[2]RequestStatus{from, to}], CanTransitionRequest(from, to),
				"transition %s -> %s", from, to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, RequestStatusFulfilled.Terminal())
	assert.True(t, RequestStatusRejected.Terminal())
	assert.True(t, RequestStatusCancelled.Terminal())
	assert.False(t, RequestStatusPending.Terminal())
	assert.False(t, RequestStatusApproved.Terminal())
	assert.False(t, RequestStatusPaymentFailed.Terminal())
}

func TestSplitFor(t *testing.T) {
	// Member with 50 submits a request totalling 90: wallet funds 50,
	// the 40 shortfall stays outstanding until the gateway confirms.
	split := SplitFor(90, 50)
	assert.Equal(t, int64(50), split.WalletAmount)
	assert.Equal(t, int64(40), split.RemainingAmount)
	assert.Equal(t, int64(0), split.GatewayAmount)
	require.NoError(t, split.Validate())

	full := SplitFor(30, 100)
	assert.Equal(t, int64(30), full.WalletAmount)
	assert.Equal(t, int64(0), full.RemainingAmount)
	require.NoError(t, full.Validate())

	broke := SplitFor(30, 0)
	assert.Equal(t, int64(0), broke.WalletAmount)
	assert.Equal(t, int64(30), broke.RemainingAmount)
	require.NoError(t, broke.Validate())
}

func TestSplitForProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.Int64Range(0, 1_000_000).Draw(t, "total")
		balance := rapid.Int64Range(0, 1_000_000).Draw(t, "balance")

		split := SplitFor(total, balance)
		require.NoError(t, split.Validate())
		require.LessOrEqual(t, split.WalletAmount, balance)
		require.LessOrEqual(t, split.WalletAmount, total)
	})
}

func TestSplitValidateCatchesImbalance(t *testing.T) {
	bad := PaymentSplit{TotalAmount: 100, WalletAmount: 30, GatewayAmount: 30, RemainingAmount: 30}
	require.Error(t, bad.Validate())

	negative := PaymentSplit{TotalAmount: 0, WalletAmount: -10, GatewayAmount: 10, RemainingAmount: 0}
	require.Error(t, negative.Validate())
}

func TestAdvisingSessionOverlaps(t *testing.T) {
	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	session := AdvisingSession{
		StartsAt: day.Add(10 * time.Hour),
		EndsAt:   day.Add(11 * time.Hour),
	}

	assert.True(t, session.Overlaps(day.Add(10*time.Hour+30*time.Minute), day.Add(11*time.Hour+30*time.Minute)))
	assert.False(t, session.Overlaps(day.Add(11*time.Hour), day.Add(12*time.Hour)), "touching intervals do not overlap")
	assert.False(t, session.Overlaps(day.Add(9*time.Hour), day.Add(10*time.Hour)))
	assert.True(t, session.Overlaps(day.Add(9*time.Hour), day.Add(12*time.Hour)), "containing interval overlaps")
}
