package ledger

import (
	"sort"
	"time"
)

// buildPlan walks allocatable batches oldest first and greedily draws
// min(remaining, stillNeeded) from each. Batches must already exclude
// depleted and expired stock. The returned plan records the observed
// remaining quantity per draw so commit can detect concurrent changes.
func buildPlan(partID int64, requested int64, batches []StockBatch) AllocationPlan {
	plan := AllocationPlan{PartID: partID, Requested: requested}
	stillNeeded := requested
	for _, b := range batches {
		if stillNeeded == 0 {
			break
		}
		if b.RemainingQty <= 0 {
			continue
		}
		drawn := b.RemainingQty
		if stillNeeded < drawn {
			drawn = stillNeeded
		}
		plan.Draws = append(plan.Draws, BatchDraw{
			BatchID:           b.ID,
			Qty:               drawn,
			ObservedRemaining: b.RemainingQty,
		})
		stillNeeded -= drawn
	}
	plan.Shortfall = stillNeeded
	return plan
}

// sortFIFO orders batches by receipt date ascending with batch id as the
// deterministic tie-break.
func sortFIFO(batches []StockBatch) {
	sort.Slice(batches, func(i, j int) bool {
		if batches[i].ReceivedAt.Equal(batches[j].ReceivedAt) {
			return batches[i].ID < batches[j].ID
		}
		return batches[i].ReceivedAt.Before(batches[j].ReceivedAt)
	})
}

// filterAllocatable drops depleted and expired batches.
func filterAllocatable(batches []StockBatch, at time.Time) []StockBatch {
	eligible := make([]StockBatch, 0, len(batches))
	for _, b := range batches {
		if b.Allocatable(at) {
			eligible = append(eligible, b)
		}
	}
	return eligible
}
