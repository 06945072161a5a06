package parts

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Part, int, error)
	Get(ctx context.Context, id int64) (Part, error)
	Create(ctx context.Context, part Part) (Part, error)
	Update(ctx context.Context, id int64, part Part) error
	Deactivate(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const partColumns = `id, sku, name, category, buying_price, selling_price, reorder_level, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Part, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.Category != "" {
		argCount++
		where += ` AND category = $` + strconv.Itoa(argCount)
		args = append(args, filters.Category)
	}
	if filters.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR sku ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		where += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM parts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + partColumns + ` FROM parts` + where + ` ORDER BY name ASC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var parts []Part
	for rows.Next() {
		var p Part
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.BuyingPrice, &p.SellingPrice, &p.ReorderLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		parts = append(parts, p)
	}
	return parts, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Part, error) {
	var p Part
	err := r.db.QueryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE id = $1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.BuyingPrice, &p.SellingPrice, &p.ReorderLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Part{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, part Part) (Part, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO parts (sku, name, category, buying_price, selling_price, reorder_level, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		part.SKU, part.Name, part.Category, part.BuyingPrice, part.SellingPrice, part.ReorderLevel, part.IsActive, now, now).Scan(&part.ID)
	if err != nil {
		return Part{}, err
	}
	part.CreatedAt = now
	part.UpdatedAt = now
	return part, nil
}

func (r *repository) Update(ctx context.Context, id int64, part Part) error {
	tag, err := r.db.Exec(ctx, `UPDATE parts SET sku=$1, name=$2, category=$3, buying_price=$4, selling_price=$5, reorder_level=$6, is_active=$7, updated_at=$8 WHERE id=$9`,
		part.SKU, part.Name, part.Category, part.BuyingPrice, part.SellingPrice, part.ReorderLevel, part.IsActive, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Deactivate soft-disables a part. Parts are never physically deleted because
// historical orders and batches reference them.
func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE parts SET is_active=false, updated_at=$1 WHERE id=$2`, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
