package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/gearbox-erp/gearbox-erp/internal/jobs"
)

// LowStockScanJob compares each active part's eligible stock against its
// reorder level and logs the parts that need reordering.
type LowStockScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLowStockScanJob initialises the low stock scan handler.
func NewLowStockScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type lowStockPart struct {
	PartID       int64
	Name         string
	ReorderLevel int64
	Available    int64
}

// Handle executes the low stock scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskLedgerLowStockScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting low stock scan")

	parts, err := j.scan(ctx, start)
	if err != nil {
		logger.Error("low stock scan failed", slog.Any("error", err))
		return err
	}

	for _, p := range parts {
		logger.Warn("part below reorder level",
			slog.Int64("part_id", p.PartID),
			slog.String("name", p.Name),
			slog.Int64("reorder_level", p.ReorderLevel),
			slog.Int64("available", p.Available),
		)
	}
	j.metrics().SetLowStockParts(len(parts))

	logger.Info("completed low stock scan",
		slog.Int("parts", len(parts)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *LowStockScanJob) scan(ctx context.Context, asOf time.Time) ([]lowStockPart, error) {
	if j.Pool == nil {
		return nil, errors.New("low stock scan: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT p.id, p.name, p.reorder_level, COALESCE(SUM(b.remaining_qty), 0)
FROM parts p
LEFT JOIN stock_batches b
  ON b.part_id = p.id AND b.remaining_qty > 0 AND (b.expires_at IS NULL OR b.expires_at >= $1)
WHERE p.is_active
GROUP BY p.id, p.name, p.reorder_level
HAVING COALESCE(SUM(b.remaining_qty), 0) <= p.reorder_level
ORDER BY p.id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lowStockPart
	for rows.Next() {
		var p lowStockPart
		if err := rows.Scan(&p.PartID, &p.Name, &p.ReorderLevel, &p.Available); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics == nil {
		return nil
	}
	return j.Metrics
}

func (j *LowStockScanJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}
