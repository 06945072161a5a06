package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gearbox-erp/gearbox-erp/internal/ledger"
	"github.com/gearbox-erp/gearbox-erp/internal/parts"
	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

const approvalModule = "orders"

// RepositoryPort abstracts order persistence for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, order PartOrder) (int64, error)
	Get(ctx context.Context, id int64) (PartOrder, error)
	List(ctx context.Context, filters ListFilters) ([]PartOrder, int64, error)
	ClaimDecision(ctx context.Context, id int64, status OrderStatus, fulfillment FulfillmentStatus, decidedBy int64, decidedAt time.Time) error
	ReleaseClaim(ctx context.Context, id int64) error
}

// LedgerPort is the slice of the batch ledger the orchestrator consumes.
type LedgerPort interface {
	Plan(ctx context.Context, partID, qty int64) (ledger.AllocationPlan, error)
	Commit(ctx context.Context, plans []ledger.AllocationPlan) (map[int64]int64, error)
}

// PartsPort resolves part records for validation and error reporting.
type PartsPort interface {
	Get(ctx context.Context, id int64) (parts.Part, error)
}

// AuditPort records order decisions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort persists the approval trail.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service orchestrates order fulfillment. It is the only component that
// frames user-visible outcomes; the planner and ledger below it return
// structured errors and never format messages.
type Service struct {
	repo      RepositoryPort
	ledger    LedgerPort
	parts     PartsPort
	audit     AuditPort
	approvals ApprovalPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, partsPort PartsPort, audit AuditPort, approvals ApprovalPort, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledgerPort,
		parts:     partsPort,
		audit:     audit,
		approvals: approvals,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateInput describes a new part order.
type CreateInput struct {
	JobCardRef  uuid.UUID
	Note        string
	RequestedBy int64
	Lines       []OrderLine
}

// Create validates and stores a new order in SENT state.
func (s *Service) Create(ctx context.Context, input CreateInput) (PartOrder, error) {
	if input.JobCardRef == uuid.Nil {
		return PartOrder{}, fmt.Errorf("%w: jobcard reference required", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return PartOrder{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return PartOrder{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		if _, err := s.parts.Get(ctx, line.PartID); err != nil {
			return PartOrder{}, fmt.Errorf("%w: unknown part %d", ErrValidation, line.PartID)
		}
	}
	order := PartOrder{
		Number:      newOrderNumber(s.now()),
		JobCardRef:  input.JobCardRef,
		Status:      OrderStatusSent,
		Fulfillment: FulfillmentUnfulfilled,
		Note:        input.Note,
		RequestedBy: input.RequestedBy,
		Lines:       input.Lines,
		CreatedAt:   s.now(),
	}
	id, err := s.repo.Insert(ctx, order)
	if err != nil {
		return PartOrder{}, err
	}
	order.ID = id
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.RequestedBy,
			Action:   "orders:CREATE",
			Entity:   "part_order",
			EntityID: fmt.Sprintf("%d", id),
			Meta:     map[string]any{"number": order.Number, "lines": len(order.Lines)},
		})
	}
	return order, nil
}

// Get returns one order with lines.
func (s *Service) Get(ctx context.Context, id int64) (PartOrder, error) {
	return s.repo.Get(ctx, id)
}

// List returns orders matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]PartOrder, int64, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 || filters.Limit > 100 {
		filters.Limit = 20
	}
	return s.repo.List(ctx, filters)
}

// Approve runs the full fulfillment flow for a SENT order: aggregate the
// requested quantities per part, plan every part against the batch ledger,
// and only when every line can be fully met apply all draws in one commit.
// Any shortfall aborts before anything is written and the order stays SENT.
func (s *Service) Approve(ctx context.Context, orderID, actorID int64) (ApprovalResult, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return ApprovalResult{}, err
	}
	if order.Status != OrderStatusSent {
		return ApprovalResult{}, ErrInvalidState
	}

	requested := aggregateLines(order.Lines)
	plans := make([]ledger.AllocationPlan, 0, len(requested))
	var short []InsufficientPart
	for _, req := range requested {
		plan, err := s.ledger.Plan(ctx, req.partID, req.qty)
		if err != nil {
			return ApprovalResult{}, err
		}
		if !plan.Satisfied() {
			short = append(short, InsufficientPart{
				PartID:    req.partID,
				PartName:  s.partName(ctx, req.partID),
				Required:  req.qty,
				Available: req.qty - plan.Shortfall,
			})
			continue
		}
		plans = append(plans, plan)
	}
	if len(short) > 0 {
		return ApprovalResult{}, &InsufficientStockError{Parts: short}
	}

	// Claim the order before touching the ledger so two concurrent
	// approvals cannot both commit draws for it. The loser of the claim
	// sees ErrInvalidState; a ledger failure releases the claim.
	decidedAt := s.now()
	if err := s.repo.ClaimDecision(ctx, orderID, OrderStatusApproved, FulfillmentFulfilled, actorID, decidedAt); err != nil {
		return ApprovalResult{}, err
	}
	drawn, err := s.ledger.Commit(ctx, plans)
	if err != nil {
		if releaseErr := s.repo.ReleaseClaim(ctx, orderID); releaseErr != nil {
			s.logger.Error("release order claim", slog.Int64("order_id", orderID), slog.Any("error", releaseErr))
		}
		var conflict *ledger.ConflictError
		if errors.As(err, &conflict) || errors.Is(err, ledger.ErrBatchNotFound) {
			return ApprovalResult{}, ErrStockConflict
		}
		return ApprovalResult{}, err
	}

	s.recordDecision(ctx, order, shared.ApprovalApprove, actorID, "")
	return ApprovalResult{OrderID: orderID, Fulfillment: FulfillmentFulfilled, DrawnByPart: drawn}, nil
}

// Reject marks a SENT order rejected without touching the ledger. Rejecting
// an already rejected order is a no-op success; rejecting an approved order
// is an invalid state error.
func (s *Service) Reject(ctx context.Context, orderID, actorID int64, note string) error {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	switch order.Status {
	case OrderStatusRejected:
		return nil
	case OrderStatusApproved:
		return ErrInvalidState
	}
	if err := s.repo.ClaimDecision(ctx, orderID, OrderStatusRejected, FulfillmentUnfulfilled, actorID, s.now()); err != nil {
		return err
	}
	s.recordDecision(ctx, order, shared.ApprovalReject, actorID, note)
	return nil
}

func (s *Service) recordDecision(ctx context.Context, order PartOrder, action shared.ApprovalAction, actorID int64, note string) {
	if s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   order.JobCardRef,
			ActorID: actorID,
			Action:  action,
			Note:    note,
			At:      s.now(),
		}); err != nil {
			s.logger.Error("record order approval", slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "orders:" + string(action),
			Entity:   "part_order",
			EntityID: fmt.Sprintf("%d", order.ID),
			Meta:     map[string]any{"number": order.Number},
		})
	}
}

func (s *Service) partName(ctx context.Context, partID int64) string {
	part, err := s.parts.Get(ctx, partID)
	if err != nil {
		return fmt.Sprintf("part #%d", partID)
	}
	return part.Name
}

type partRequest struct {
	partID int64
	qty    int64
}

// aggregateLines sums requested quantities per part across service records.
// The result is sorted by part id so planning order is deterministic.
func aggregateLines(lines []OrderLine) []partRequest {
	totals := map[int64]int64{}
	for _, line := range lines {
		totals[line.PartID] += line.Qty
	}
	requests := make([]partRequest, 0, len(totals))
	for partID, qty := range totals {
		requests = append(requests, partRequest{partID: partID, qty: qty})
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].partID < requests[j].partID })
	return requests
}

func newOrderNumber(at time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("PO-%s-%s", at.Format("20060102"), suffix)
}
