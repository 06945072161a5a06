package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Part order lifecycle statuses. SENT is the only non-terminal state.
type OrderStatus string

const (
	OrderStatusSent     OrderStatus = "SENT"
	OrderStatusApproved OrderStatus = "APPROVED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// FulfillmentStatus records the allocation outcome, distinct from the
// approval state. PARTIALLY_FULFILLED is reserved: the all-or-nothing
// approval policy never writes it.
type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "UNFULFILLED"
	FulfillmentFulfilled   FulfillmentStatus = "FULFILLED"
	FulfillmentPartial     FulfillmentStatus = "PARTIALLY_FULFILLED"
)

// PartOrder groups part requests arising from service records on a job card.
// It references parts by ID only; approving or adjusting batches later never
// alters an already decided order.
type PartOrder struct {
	ID          int64
	Number      string
	JobCardRef  uuid.UUID
	Status      OrderStatus
	Fulfillment FulfillmentStatus
	Note        string
	RequestedBy int64
	DecidedBy   int64
	DecidedAt   *time.Time
	CreatedAt   time.Time
	Lines       []OrderLine
}

// OrderLine is one part request from one service record.
type OrderLine struct {
	ID              int64
	OrderID         int64
	ServiceRecordID int64
	PartID          int64
	Qty             int64
}

// ListFilters narrows order listings.
type ListFilters struct {
	Status *OrderStatus
	Page   int
	Limit  int
}

// ApprovalResult summarises a successful order approval.
type ApprovalResult struct {
	OrderID     int64
	Fulfillment FulfillmentStatus
	DrawnByPart map[int64]int64
}

// InsufficientPart describes one part that cannot be fully allocated.
type InsufficientPart struct {
	PartID    int64  `json:"part_id"`
	PartName  string `json:"PartName"`
	Required  int64  `json:"Required"`
	Available int64  `json:"Available"`
}

// InsufficientStockError is a business outcome, not a system fault: one or
// more order lines cannot be fully met from eligible batches. The order is
// left untouched so the cashier can retry later or reject.
type InsufficientStockError struct {
	Parts []InsufficientPart
}

func (e *InsufficientStockError) Error() string {
	names := make([]string, 0, len(e.Parts))
	for _, p := range e.Parts {
		names = append(names, fmt.Sprintf("%s (need %d, have %d)", p.PartName, p.Required, p.Available))
	}
	return "orders: insufficient stock: " + strings.Join(names, ", ")
}

// ErrInvalidState indicates a transition from a terminal order status.
var ErrInvalidState = errors.New("orders: order already decided")

// ErrStockConflict indicates stock changed between planning and commit.
// The right next step is a retry, not a reject.
var ErrStockConflict = errors.New("orders: stock changed, retry")

// ErrValidation indicates a malformed order payload.
var ErrValidation = errors.New("orders: invalid input")
