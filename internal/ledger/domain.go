package ledger

import (
	"errors"
	"fmt"
	"time"
)

// StockBatch is one discrete stock receipt for a part. Batches are immutable
// except for RemainingQty, which only committed allocations decrement. A
// depleted batch stays on record for the audit trail.
type StockBatch struct {
	ID           int64
	PartID       int64
	BatchNumber  int
	InitialQty   int64
	RemainingQty int64
	CostPrice    float64
	RetailPrice  float64
	ReceivedAt   time.Time
	ExpiresAt    *time.Time
	CreatedBy    int64
}

// Depleted reports whether the batch has no stock left.
func (b StockBatch) Depleted() bool {
	return b.RemainingQty <= 0
}

// Expired reports whether the batch is past its expiry date at the given time.
func (b StockBatch) Expired(at time.Time) bool {
	if b.ExpiresAt == nil {
		return false
	}
	return b.ExpiresAt.Before(at)
}

// Allocatable reports whether the batch may appear in an allocation plan.
func (b StockBatch) Allocatable(at time.Time) bool {
	return !b.Depleted() && !b.Expired(at)
}

// ReceiptInput describes a supplier shipment to record as a new batch.
type ReceiptInput struct {
	Number      string
	PartID      int64
	Qty         int64
	CostPrice   float64
	RetailPrice float64
	ReceivedAt  time.Time
	ExpiresAt   *time.Time
	ActorID     int64
}

// BatchDraw is a single draw against one batch inside an allocation plan.
// ObservedRemaining is the remaining quantity seen at planning time; commit
// uses it as the compare value for the optimistic decrement.
type BatchDraw struct {
	BatchID           int64
	Qty               int64
	ObservedRemaining int64
}

// AllocationPlan is the FIFO draw-down for one requested part quantity.
// Draws sum to Requested minus Shortfall.
type AllocationPlan struct {
	PartID    int64
	Requested int64
	Draws     []BatchDraw
	Shortfall int64
}

// Satisfied reports whether the plan covers the full requested quantity.
func (p AllocationPlan) Satisfied() bool {
	return p.Shortfall == 0
}

// Drawn returns the total quantity the plan draws across batches.
func (p AllocationPlan) Drawn() int64 {
	var total int64
	for _, d := range p.Draws {
		total += d.Qty
	}
	return total
}

// AvailabilityBatch is one batch line inside an availability snapshot.
type AvailabilityBatch struct {
	BatchID      int64     `json:"batch_id"`
	BatchNumber  int       `json:"batch_number"`
	RemainingQty int64     `json:"remaining_quantity"`
	ReceivedAt   time.Time `json:"receipt_date"`
}

// Availability is a best-effort snapshot of allocatable stock for a part.
// It may be stale by commit time; conflicts are resolved at commit, not here.
type Availability struct {
	PartID         int64               `json:"part_id"`
	IsAvailable    bool                `json:"is_available"`
	TotalAvailable int64               `json:"total_available"`
	BatchCount     int                 `json:"batch_count"`
	Batches        []AvailabilityBatch `json:"batches"`
}

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

// ErrInvalidCost indicates a negative cost or retail price.
var ErrInvalidCost = errors.New("ledger: prices must be >= 0")

// ErrBatchNotFound indicates a missing batch row.
var ErrBatchNotFound = errors.New("ledger: batch not found")

// ErrEmptyPlan indicates a commit attempt with nothing to apply.
var ErrEmptyPlan = errors.New("ledger: no draws to commit")

// ConflictError reports an optimistic-lock failure: a batch's remaining
// quantity changed between planning and commit. The whole commit is rolled
// back; the caller must re-plan from fresh availability data.
type ConflictError struct {
	BatchID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("ledger: batch %d changed since planning", e.BatchID)
}
