package orders

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gearbox-erp/gearbox-erp/internal/ledger"
	"github.com/gearbox-erp/gearbox-erp/internal/parts"
	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

type memoryOrderRepo struct {
	orders map[int64]PartOrder
	nextID int64
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{orders: map[int64]PartOrder{}}
}

func (r *memoryOrderRepo) Insert(ctx context.Context, order PartOrder) (int64, error) {
	r.nextID++
	order.ID = r.nextID
	r.orders[order.ID] = order
	return order.ID, nil
}

func (r *memoryOrderRepo) Get(ctx context.Context, id int64) (PartOrder, error) {
	order, ok := r.orders[id]
	if !ok {
		return PartOrder{}, shared.ErrNotFound
	}
	return order, nil
}

func (r *memoryOrderRepo) List(ctx context.Context, filters ListFilters) ([]PartOrder, int64, error) {
	var out []PartOrder
	for _, o := range r.orders {
		if filters.Status != nil && o.Status != *filters.Status {
			continue
		}
		out = append(out, o)
	}
	return out, int64(len(out)), nil
}

func (r *memoryOrderRepo) ClaimDecision(ctx context.Context, id int64, status OrderStatus, fulfillment FulfillmentStatus, decidedBy int64, decidedAt time.Time) error {
	order, ok := r.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	if order.Status != OrderStatusSent {
		return ErrInvalidState
	}
	order.Status = status
	order.Fulfillment = fulfillment
	order.DecidedBy = decidedBy
	order.DecidedAt = &decidedAt
	r.orders[id] = order
	return nil
}

func (r *memoryOrderRepo) ReleaseClaim(ctx context.Context, id int64) error {
	order, ok := r.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	order.Status = OrderStatusSent
	order.Fulfillment = FulfillmentUnfulfilled
	order.DecidedBy = 0
	order.DecidedAt = nil
	r.orders[id] = order
	return nil
}

// fakeLedger models one batch per part. Plan draws from that batch; Commit
// applies the draws unless commitErr is set.
type fakeLedger struct {
	stock     map[int64]int64
	planned   map[int64]int64
	committed []ledger.AllocationPlan
	commitErr error
}

func newFakeLedger(stock map[int64]int64) *fakeLedger {
	return &fakeLedger{stock: stock, planned: map[int64]int64{}}
}

func (l *fakeLedger) Plan(ctx context.Context, partID, qty int64) (ledger.AllocationPlan, error) {
	l.planned[partID] = qty
	available := l.stock[partID]
	plan := ledger.AllocationPlan{PartID: partID, Requested: qty}
	drawn := qty
	if available < qty {
		drawn = available
		plan.Shortfall = qty - available
	}
	if drawn > 0 {
		plan.Draws = []ledger.BatchDraw{{BatchID: partID * 100, Qty: drawn, ObservedRemaining: available}}
	}
	return plan, nil
}

func (l *fakeLedger) Commit(ctx context.Context, plans []ledger.AllocationPlan) (map[int64]int64, error) {
	if l.commitErr != nil {
		return nil, l.commitErr
	}
	l.committed = append(l.committed, plans...)
	drawn := map[int64]int64{}
	for _, plan := range plans {
		l.stock[plan.PartID] -= plan.Drawn()
		drawn[plan.PartID] = plan.Drawn()
	}
	return drawn, nil
}

type fakeParts struct {
	names map[int64]string
}

func (p *fakeParts) Get(ctx context.Context, id int64) (parts.Part, error) {
	name, ok := p.names[id]
	if !ok {
		return parts.Part{}, shared.ErrNotFound
	}
	return parts.Part{ID: id, Name: name}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo *memoryOrderRepo, stock map[int64]int64, names map[int64]string) (*Service, *fakeLedger) {
	lg := newFakeLedger(stock)
	svc := NewService(repo, lg, &fakeParts{names: names}, nil, nil, testLogger())
	return svc, lg
}

func sentOrder(repo *memoryOrderRepo, lines ...OrderLine) int64 {
	id, _ := repo.Insert(context.Background(), PartOrder{
		Number:      "PO-TEST",
		JobCardRef:  uuid.New(),
		Status:      OrderStatusSent,
		Fulfillment: FulfillmentUnfulfilled,
		Lines:       lines,
		CreatedAt:   time.Now(),
	})
	return id
}

func TestCreateRejectsBadLines(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo, map[int64]int64{}, map[int64]string{1: "Oil Filter"})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{JobCardRef: uuid.New()})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateInput{
		JobCardRef: uuid.New(),
		Lines:      []OrderLine{{ServiceRecordID: 1, PartID: 1, Qty: 0}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateInput{
		JobCardRef: uuid.New(),
		Lines:      []OrderLine{{ServiceRecordID: 1, PartID: 99, Qty: 2}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateStoresSentOrder(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo, map[int64]int64{}, map[int64]string{1: "Oil Filter"})

	order, err := svc.Create(context.Background(), CreateInput{
		JobCardRef:  uuid.New(),
		RequestedBy: 7,
		Lines:       []OrderLine{{ServiceRecordID: 1, PartID: 1, Qty: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, OrderStatusSent, order.Status)
	require.Equal(t, FulfillmentUnfulfilled, order.Fulfillment)
	require.NotEmpty(t, order.Number)

	stored, err := repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
}

func TestApproveAggregatesLinesPerPart(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, lg := newTestService(repo, map[int64]int64{4: 10}, map[int64]string{4: "Brake Pad"})
	id := sentOrder(repo,
		OrderLine{ServiceRecordID: 1, PartID: 4, Qty: 2},
		OrderLine{ServiceRecordID: 2, PartID: 4, Qty: 3},
	)

	result, err := svc.Approve(context.Background(), id, 9)
	require.NoError(t, err)
	require.Equal(t, int64(5), lg.planned[4])
	require.Equal(t, int64(5), result.DrawnByPart[4])
	require.Equal(t, int64(5), lg.stock[4])
}

func TestApproveMarksOrderFulfilled(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo, map[int64]int64{1: 6, 2: 4}, map[int64]string{1: "Oil Filter", 2: "Spark Plug"})
	id := sentOrder(repo,
		OrderLine{ServiceRecordID: 1, PartID: 1, Qty: 4},
		OrderLine{ServiceRecordID: 1, PartID: 2, Qty: 4},
	)

	result, err := svc.Approve(context.Background(), id, 9)
	require.NoError(t, err)
	require.Equal(t, FulfillmentFulfilled, result.Fulfillment)

	order, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, OrderStatusApproved, order.Status)
	require.Equal(t, FulfillmentFulfilled, order.Fulfillment)
	require.Equal(t, int64(9), order.DecidedBy)
	require.NotNil(t, order.DecidedAt)
}

func TestApproveShortfallLeavesEverythingUntouched(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, lg := newTestService(repo, map[int64]int64{1: 10, 2: 3}, map[int64]string{1: "Oil Filter", 2: "Spark Plug"})
	id := sentOrder(repo,
		OrderLine{ServiceRecordID: 1, PartID: 1, Qty: 4},
		OrderLine{ServiceRecordID: 1, PartID: 2, Qty: 5},
	)

	_, err := svc.Approve(context.Background(), id, 9)
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Parts, 1)
	require.Equal(t, "Spark Plug", short.Parts[0].PartName)
	require.Equal(t, int64(5), short.Parts[0].Required)
	require.Equal(t, int64(3), short.Parts[0].Available)

	// Part 1 was fully satisfiable, but nothing may be drawn for it.
	require.Empty(t, lg.committed)
	require.Equal(t, int64(10), lg.stock[1])
	require.Equal(t, int64(3), lg.stock[2])

	order, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, OrderStatusSent, order.Status)
	require.Equal(t, FulfillmentUnfulfilled, order.Fulfillment)
}

func TestApproveCommitConflictKeepsOrderSent(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, lg := newTestService(repo, map[int64]int64{1: 6}, map[int64]string{1: "Oil Filter"})
	lg.commitErr = &ledger.ConflictError{BatchID: 100}
	id := sentOrder(repo, OrderLine{ServiceRecordID: 1, PartID: 1, Qty: 4})

	_, err := svc.Approve(context.Background(), id, 9)
	require.ErrorIs(t, err, ErrStockConflict)

	order, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, OrderStatusSent, order.Status)
	require.Nil(t, order.DecidedAt)
}

func TestApproveDecidedOrderFails(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo, map[int64]int64{1: 6}, map[int64]string{1: "Oil Filter"})
	id := sentOrder(repo, OrderLine{ServiceRecordID: 1, PartID: 1, Qty: 2})

	_, err := svc.Approve(context.Background(), id, 9)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), id, 9)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestRejectIsIdempotent(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, lg := newTestService(repo, map[int64]int64{1: 6}, map[int64]string{1: "Oil Filter"})
	id := sentOrder(repo, OrderLine{ServiceRecordID: 1, PartID: 1, Qty: 2})

	require.NoError(t, svc.Reject(context.Background(), id, 9, "customer cancelled"))
	require.NoError(t, svc.Reject(context.Background(), id, 9, ""))

	order, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, OrderStatusRejected, order.Status)
	require.Equal(t, int64(6), lg.stock[1])
}

func TestRejectApprovedOrderFails(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo, map[int64]int64{1: 6}, map[int64]string{1: "Oil Filter"})
	id := sentOrder(repo, OrderLine{ServiceRecordID: 1, PartID: 1, Qty: 2})

	_, err := svc.Approve(context.Background(), id, 9)
	require.NoError(t, err)
	require.ErrorIs(t, svc.Reject(context.Background(), id, 9, ""), ErrInvalidState)
}

func TestAggregateLinesIsDeterministic(t *testing.T) {
	requests := aggregateLines([]OrderLine{
		{PartID: 9, Qty: 1},
		{PartID: 2, Qty: 4},
		{PartID: 9, Qty: 2},
	})
	require.Equal(t, []partRequest{{partID: 2, qty: 4}, {partID: 9, qty: 3}}, requests)
}

type fakeApprovals struct {
	logs []shared.ApprovalLog
}

func (a *fakeApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestApproveStampsApprovalTrail(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := sentOrder(repo, OrderLine{ServiceRecordID: 1, PartID: 1, Qty: 2})

	approvals := &fakeApprovals{}
	svc := NewService(repo, newFakeLedger(map[int64]int64{1: 5}), &fakeParts{names: map[int64]string{1: "Oil Filter"}}, nil, approvals, testLogger())
	decidedAt := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return decidedAt }

	// Actor zero is an anonymous caller; the trail still records the decision.
	_, err := svc.Approve(context.Background(), id, 0)
	require.NoError(t, err)

	require.Len(t, approvals.logs, 1)
	entry := approvals.logs[0]
	require.Equal(t, shared.ApprovalApprove, entry.Action)
	require.Equal(t, int64(0), entry.ActorID)
	require.Equal(t, decidedAt, entry.At)
	require.NoError(t, entry.Validate())
}
