package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBatches(ctx context.Context, partID int64, includeDepleted bool) ([]StockBatch, error)
	AllocatableBatches(ctx context.Context, partID int64, asOf time.Time) ([]StockBatch, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates and serves availability snapshots.
type CachePort interface {
	Fetch(ctx context.Context, partID int64, loader func(context.Context) (Availability, error)) (Availability, error)
	Invalidate(ctx context.Context, partIDs ...int64)
}

// Service coordinates batch ledger operations: receipts, availability,
// allocation planning and the all-or-nothing commit.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	cache       CachePort
}

// NewService builds Service. Audit, idempotency and cache are optional.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cache CachePort) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, cache: cache}
}

// RecordReceipt inserts a new batch for a supplier shipment. The batch number
// is assigned per part inside the transaction.
func (s *Service) RecordReceipt(ctx context.Context, input ReceiptInput) (StockBatch, error) {
	if input.PartID <= 0 {
		return StockBatch{}, errors.New("ledger: part required")
	}
	if input.Qty <= 0 {
		return StockBatch{}, ErrInvalidQuantity
	}
	if input.CostPrice < 0 || input.RetailPrice < 0 {
		return StockBatch{}, ErrInvalidCost
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	if input.ExpiresAt != nil && input.ExpiresAt.Before(receivedAt) {
		return StockBatch{}, errors.New("ledger: expiry precedes receipt date")
	}

	number := input.Number
	if number == "" {
		number = fmt.Sprintf("RCPT-%d", time.Now().UnixNano())
	}
	key := fmt.Sprintf("RCPT:%s:%d", number, input.PartID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "ledger.receipt"); err != nil {
			return StockBatch{}, err
		}
		insertedKey = true
	}

	batch := StockBatch{
		PartID:       input.PartID,
		InitialQty:   input.Qty,
		RemainingQty: input.Qty,
		CostPrice:    input.CostPrice,
		RetailPrice:  input.RetailPrice,
		ReceivedAt:   receivedAt,
		ExpiresAt:    input.ExpiresAt,
		CreatedBy:    input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextBatchNumber(ctx, input.PartID)
		if err != nil {
			return err
		}
		batch.BatchNumber = seq
		id, err := tx.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		batch.ID = id
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return StockBatch{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, input.PartID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "ledger:RECEIPT",
			Entity:   "stock_batch",
			EntityID: fmt.Sprintf("%d", batch.ID),
			Meta: map[string]any{
				"part_id":      input.PartID,
				"batch_number": batch.BatchNumber,
				"qty":          input.Qty,
				"number":       number,
			},
		})
	}
	return batch, nil
}

// ListBatches returns the audit listing of batches for a part.
func (s *Service) ListBatches(ctx context.Context, partID int64, includeDepleted bool) ([]StockBatch, error) {
	if partID <= 0 {
		return nil, errors.New("ledger: part required")
	}
	return s.repo.ListBatches(ctx, partID, includeDepleted)
}

// CheckAvailability answers how much of a part can be allocated right now and
// from which batches. Zero batches is a valid zero answer. The snapshot is
// best-effort; concurrency is resolved at commit time.
func (s *Service) CheckAvailability(ctx context.Context, partID int64) (Availability, error) {
	if partID <= 0 {
		return Availability{}, errors.New("ledger: part required")
	}
	loader := func(ctx context.Context) (Availability, error) {
		return s.loadAvailability(ctx, partID)
	}
	if s.cache != nil {
		return s.cache.Fetch(ctx, partID, loader)
	}
	return loader(ctx)
}

func (s *Service) loadAvailability(ctx context.Context, partID int64) (Availability, error) {
	batches, err := s.repo.AllocatableBatches(ctx, partID, time.Now().UTC())
	if err != nil {
		return Availability{}, err
	}
	avail := Availability{PartID: partID, Batches: make([]AvailabilityBatch, 0, len(batches))}
	for _, b := range batches {
		avail.TotalAvailable += b.RemainingQty
		avail.Batches = append(avail.Batches, AvailabilityBatch{
			BatchID:      b.ID,
			BatchNumber:  b.BatchNumber,
			RemainingQty: b.RemainingQty,
			ReceivedAt:   b.ReceivedAt,
		})
	}
	avail.BatchCount = len(avail.Batches)
	avail.IsAvailable = avail.TotalAvailable > 0
	return avail, nil
}

// Plan computes the FIFO draw-down for one requested part quantity without
// mutating state. The plan carries observed remainders for the commit guard.
func (s *Service) Plan(ctx context.Context, partID, qty int64) (AllocationPlan, error) {
	if partID <= 0 {
		return AllocationPlan{}, errors.New("ledger: part required")
	}
	if qty <= 0 {
		return AllocationPlan{}, ErrInvalidQuantity
	}
	batches, err := s.repo.AllocatableBatches(ctx, partID, time.Now().UTC())
	if err != nil {
		return AllocationPlan{}, err
	}
	return buildPlan(partID, qty, batches), nil
}

// Commit atomically applies the draws of all plans. If any batch changed
// since planning the whole transaction rolls back and a ConflictError names
// the batch. On success the realized quantity drawn per part is returned.
func (s *Service) Commit(ctx context.Context, plans []AllocationPlan) (map[int64]int64, error) {
	totalDraws := 0
	for _, plan := range plans {
		totalDraws += len(plan.Draws)
	}
	if totalDraws == 0 {
		return nil, ErrEmptyPlan
	}

	realized := make(map[int64]int64, len(plans))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, plan := range plans {
			for _, draw := range plan.Draws {
				if err := tx.DecrementBatch(ctx, draw.BatchID, draw.Qty, draw.ObservedRemaining); err != nil {
					return err
				}
				realized[plan.PartID] += draw.Qty
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		partIDs := make([]int64, 0, len(plans))
		for _, plan := range plans {
			partIDs = append(partIDs, plan.PartID)
		}
		s.cache.Invalidate(ctx, partIDs...)
	}
	return realized, nil
}
