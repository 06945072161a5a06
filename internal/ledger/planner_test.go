package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2025, time.January, n, 0, 0, 0, 0, time.UTC)
}

func TestPlanDrawsOldestFirst(t *testing.T) {
	batches := []StockBatch{
		{ID: 1, PartID: 7, RemainingQty: 5, ReceivedAt: day(1)},
		{ID: 2, PartID: 7, RemainingQty: 5, ReceivedAt: day(5)},
	}
	plan := buildPlan(7, 7, batches)
	require.True(t, plan.Satisfied())
	require.Equal(t, int64(0), plan.Shortfall)
	require.Len(t, plan.Draws, 2)
	require.Equal(t, BatchDraw{BatchID: 1, Qty: 5, ObservedRemaining: 5}, plan.Draws[0])
	require.Equal(t, BatchDraw{BatchID: 2, Qty: 2, ObservedRemaining: 5}, plan.Draws[1])
	require.Equal(t, int64(7), plan.Drawn())
}

func TestPlanReportsShortfall(t *testing.T) {
	batches := []StockBatch{
		{ID: 1, RemainingQty: 5, ReceivedAt: day(1)},
		{ID: 2, RemainingQty: 5, ReceivedAt: day(5)},
	}
	plan := buildPlan(7, 12, batches)
	require.False(t, plan.Satisfied())
	require.Equal(t, int64(2), plan.Shortfall)
	require.Equal(t, int64(10), plan.Drawn())
}

func TestPlanStopsWhenSatisfied(t *testing.T) {
	batches := []StockBatch{
		{ID: 1, RemainingQty: 10, ReceivedAt: day(1)},
		{ID: 2, RemainingQty: 10, ReceivedAt: day(2)},
	}
	plan := buildPlan(7, 4, batches)
	require.Len(t, plan.Draws, 1)
	require.Equal(t, int64(4), plan.Draws[0].Qty)
}

func TestPlanSkipsDepletedBatches(t *testing.T) {
	batches := []StockBatch{
		{ID: 1, RemainingQty: 0, ReceivedAt: day(1)},
		{ID: 2, RemainingQty: 3, ReceivedAt: day(2)},
	}
	plan := buildPlan(7, 3, batches)
	require.Len(t, plan.Draws, 1)
	require.Equal(t, int64(2), plan.Draws[0].BatchID)
}

func TestSortFIFOTieBreaksOnID(t *testing.T) {
	batches := []StockBatch{
		{ID: 9, RemainingQty: 1, ReceivedAt: day(3)},
		{ID: 2, RemainingQty: 1, ReceivedAt: day(3)},
		{ID: 5, RemainingQty: 1, ReceivedAt: day(1)},
	}
	sortFIFO(batches)
	require.Equal(t, int64(5), batches[0].ID)
	require.Equal(t, int64(2), batches[1].ID)
	require.Equal(t, int64(9), batches[2].ID)
}

func TestFilterAllocatableExcludesExpired(t *testing.T) {
	expired := day(2)
	fresh := day(30)
	batches := []StockBatch{
		{ID: 1, RemainingQty: 5, ReceivedAt: day(1), ExpiresAt: &expired},
		{ID: 2, RemainingQty: 5, ReceivedAt: day(5), ExpiresAt: &fresh},
		{ID: 3, RemainingQty: 0, ReceivedAt: day(6)},
	}
	eligible := filterAllocatable(batches, day(10))
	require.Len(t, eligible, 1)
	require.Equal(t, int64(2), eligible[0].ID)

	// The expired batch is chronologically first yet never drawn.
	plan := buildPlan(7, 3, eligible)
	require.True(t, plan.Satisfied())
	require.Equal(t, int64(2), plan.Draws[0].BatchID)
}

func TestPlanNeverEmitsZeroDraw(t *testing.T) {
	batches := []StockBatch{
		{ID: 1, RemainingQty: 4, ReceivedAt: day(1)},
		{ID: 2, RemainingQty: 0, ReceivedAt: day(2)},
		{ID: 3, RemainingQty: 6, ReceivedAt: day(3)},
	}
	plan := buildPlan(7, 10, batches)
	for _, draw := range plan.Draws {
		require.Greater(t, draw.Qty, int64(0))
	}
	require.Len(t, plan.Draws, 2)
}
