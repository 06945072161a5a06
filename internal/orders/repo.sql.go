package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gearbox-erp/gearbox-erp/internal/platform/db"
	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

// Repository persists part orders and their lines in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new order header plus its lines in one transaction and
// returns the assigned order id.
func (r *Repository) Insert(ctx context.Context, order PartOrder) (int64, error) {
	if r == nil {
		return 0, errors.New("orders repository not initialised")
	}
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `INSERT INTO part_orders (number, jobcard_ref, status, fulfillment, note, requested_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
			order.Number, order.JobCardRef, order.Status, order.Fulfillment, order.Note, order.RequestedBy).Scan(&id); err != nil {
			return err
		}
		for _, line := range order.Lines {
			if _, err := tx.Exec(ctx, `INSERT INTO part_order_lines (order_id, service_record_id, part_id, qty)
VALUES ($1,$2,$3,$4)`, id, line.ServiceRecordID, line.PartID, line.Qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get returns one order with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (PartOrder, error) {
	if r == nil {
		return PartOrder{}, errors.New("orders repository not initialised")
	}
	var o PartOrder
	var decidedBy *int64
	err := r.pool.QueryRow(ctx, `SELECT id, number, jobcard_ref, status, fulfillment, note, requested_by, decided_by, decided_at, created_at
FROM part_orders WHERE id=$1`, id).Scan(
		&o.ID, &o.Number, &o.JobCardRef, &o.Status, &o.Fulfillment, &o.Note, &o.RequestedBy, &decidedBy, &o.DecidedAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PartOrder{}, shared.ErrNotFound
		}
		return PartOrder{}, err
	}
	if decidedBy != nil {
		o.DecidedBy = *decidedBy
	}
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, service_record_id, part_id, qty
FROM part_order_lines WHERE order_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return PartOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ServiceRecordID, &l.PartID, &l.Qty); err != nil {
			return PartOrder{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return PartOrder{}, err
	}
	return o, nil
}

// List returns order headers matching the filters, newest first, plus the
// total count for pagination.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]PartOrder, int64, error) {
	if r == nil {
		return nil, 0, errors.New("orders repository not initialised")
	}
	where := ""
	args := []any{}
	if filters.Status != nil {
		args = append(args, *filters.Status)
		where = fmt.Sprintf(" WHERE status=$%d", len(args))
	}
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM part_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filters.Limit, (filters.Page-1)*filters.Limit)
	query := fmt.Sprintf(`SELECT id, number, jobcard_ref, status, fulfillment, note, requested_by, decided_by, decided_at, created_at
FROM part_orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	result := []PartOrder{}
	for rows.Next() {
		var o PartOrder
		var decidedBy *int64
		if err := rows.Scan(&o.ID, &o.Number, &o.JobCardRef, &o.Status, &o.Fulfillment, &o.Note, &o.RequestedBy, &decidedBy, &o.DecidedAt, &o.CreatedAt); err != nil {
			return nil, 0, err
		}
		if decidedBy != nil {
			o.DecidedBy = *decidedBy
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// ClaimDecision transitions a SENT order to a terminal status. The update is
// conditional on the current status so two concurrent approvals cannot both
// claim the same order. Returns ErrInvalidState when the order is already
// decided and shared.ErrNotFound when it does not exist.
func (r *Repository) ClaimDecision(ctx context.Context, id int64, status OrderStatus, fulfillment FulfillmentStatus, decidedBy int64, decidedAt time.Time) error {
	if r == nil {
		return errors.New("orders repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE part_orders
SET status=$2, fulfillment=$3, decided_by=$4, decided_at=$5
WHERE id=$1 AND status=$6`, id, status, fulfillment, decidedBy, decidedAt, OrderStatusSent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT true FROM part_orders WHERE id=$1`, id).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		return ErrInvalidState
	}
	return nil
}

// ReleaseClaim reverts an approval claim back to SENT. Used when the ledger
// commit fails after the order was claimed.
func (r *Repository) ReleaseClaim(ctx context.Context, id int64) error {
	if r == nil {
		return errors.New("orders repository not initialised")
	}
	_, err := r.pool.Exec(ctx, `UPDATE part_orders
SET status=$2, fulfillment=$3, decided_by=NULL, decided_at=NULL
WHERE id=$1`, id, OrderStatusSent, FulfillmentUnfulfilled)
	return err
}
