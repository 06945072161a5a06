package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the batch ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertBatch(ctx context.Context, batch StockBatch) (int64, error)
	NextBatchNumber(ctx context.Context, partID int64) (int, error)
	DecrementBatch(ctx context.Context, batchID, amount, expectedRemaining int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ListBatches returns batches for a part ordered by receipt date then id.
// Depleted batches are included only when includeDepleted is set; expired
// batches are always included here since this is the audit listing.
func (r *Repository) ListBatches(ctx context.Context, partID int64, includeDepleted bool) ([]StockBatch, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	query := `SELECT id, part_id, batch_number, initial_qty, remaining_qty, cost_price, retail_price, received_at, expires_at, created_by
FROM stock_batches
WHERE part_id=$1`
	if !includeDepleted {
		query += ` AND remaining_qty > 0`
	}
	query += ` ORDER BY received_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, partID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

// AllocatableBatches returns the FIFO-ordered batches eligible for planning:
// stock remaining and not expired as of the given time.
func (r *Repository) AllocatableBatches(ctx context.Context, partID int64, asOf time.Time) ([]StockBatch, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, part_id, batch_number, initial_qty, remaining_qty, cost_price, retail_price, received_at, expires_at, created_by
FROM stock_batches
WHERE part_id=$1 AND remaining_qty > 0 AND (expires_at IS NULL OR expires_at >= $2)
ORDER BY received_at ASC, id ASC`, partID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (r *txRepository) InsertBatch(ctx context.Context, batch StockBatch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_batches (part_id, batch_number, initial_qty, remaining_qty, cost_price, retail_price, received_at, expires_at, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		batch.PartID, batch.BatchNumber, batch.InitialQty, batch.RemainingQty, batch.CostPrice, batch.RetailPrice, batch.ReceivedAt, batch.ExpiresAt, nullInt(batch.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) NextBatchNumber(ctx context.Context, partID int64) (int, error) {
	var next int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(batch_number), 0) + 1 FROM stock_batches WHERE part_id=$1`, partID).Scan(&next)
	return next, err
}

// DecrementBatch applies a compare-and-swap decrement. The update only lands
// when the stored remaining quantity still equals what the planner observed;
// otherwise the batch changed concurrently and a ConflictError is returned.
func (r *txRepository) DecrementBatch(ctx context.Context, batchID, amount, expectedRemaining int64) error {
	if amount <= 0 {
		return ErrInvalidQuantity
	}
	if amount > expectedRemaining {
		return &ConflictError{BatchID: batchID}
	}
	tag, err := r.tx.Exec(ctx, `UPDATE stock_batches
SET remaining_qty = remaining_qty - $2
WHERE id=$1 AND remaining_qty = $3`, batchID, amount, expectedRemaining)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.tx.QueryRow(ctx, `SELECT true FROM stock_batches WHERE id=$1`, batchID).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrBatchNotFound
			}
			return err
		}
		return &ConflictError{BatchID: batchID}
	}
	return nil
}

func scanBatches(rows pgx.Rows) ([]StockBatch, error) {
	batches := []StockBatch{}
	for rows.Next() {
		var b StockBatch
		var createdBy *int64
		if err := rows.Scan(&b.ID, &b.PartID, &b.BatchNumber, &b.InitialQty, &b.RemainingQty, &b.CostPrice, &b.RetailPrice, &b.ReceivedAt, &b.ExpiresAt, &createdBy); err != nil {
			return nil, err
		}
		if createdBy != nil {
			b.CreatedBy = *createdBy
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
