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
	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

// AvailabilityInvalidator drops cached availability snapshots for parts
// whose eligible stock changed outside a request.
type AvailabilityInvalidator interface {
	Invalidate(ctx context.Context, partIDs ...int64)
}

// AuditPort records the sweep outcome.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ExpiryScanJob finds batches that crossed their expiry date while still
// holding stock. Those batches stop being allocatable the moment they
// expire; the scan surfaces them for disposal and refreshes the cache so
// availability reflects the loss immediately rather than at TTL.
type ExpiryScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Cache   AvailabilityInvalidator
	Audit   AuditPort
	clock   func() time.Time
}

// NewExpiryScanJob initialises the expiry scan handler.
func NewExpiryScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics, cache AvailabilityInvalidator, audit AuditPort) *ExpiryScanJob {
	return &ExpiryScanJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		Cache:   cache,
		Audit:   audit,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type expiredPart struct {
	PartID  int64
	Batches int
	Qty     int64
}

// Handle executes the expiry scan.
func (j *ExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("expiry scan: handler not configured")
	}
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskLedgerExpiryScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting expiry scan")

	expired, err := j.scan(ctx, start)
	if err != nil {
		logger.Error("expiry scan failed", slog.Any("error", err))
		return err
	}

	partIDs := make([]int64, 0, len(expired))
	for _, e := range expired {
		logger.Warn("expired stock detected",
			slog.Int64("part_id", e.PartID),
			slog.Int("batches", e.Batches),
			slog.Int64("remaining_qty", e.Qty),
		)
		j.metrics().AddExpiredBatches(e.PartID, e.Batches)
		partIDs = append(partIDs, e.PartID)
	}
	if j.Cache != nil && len(partIDs) > 0 {
		j.Cache.Invalidate(ctx, partIDs...)
	}
	if j.Audit != nil {
		if err := j.Audit.Record(ctx, shared.AuditLog{
			Action:   "ledger:EXPIRY_SCAN",
			Entity:   "stock_batch",
			EntityID: start.Format(time.RFC3339),
			Meta:     map[string]any{"parts": len(expired)},
		}); err != nil {
			logger.Warn("audit expiry scan", slog.Any("error", err))
		}
	}

	logger.Info("completed expiry scan",
		slog.Int("parts", len(expired)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ExpiryScanJob) scan(ctx context.Context, asOf time.Time) ([]expiredPart, error) {
	if j.Pool == nil {
		return nil, errors.New("expiry scan: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT part_id, COUNT(*), SUM(remaining_qty)
FROM stock_batches
WHERE remaining_qty > 0 AND expires_at IS NOT NULL AND expires_at < $1
GROUP BY part_id
ORDER BY part_id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []expiredPart
	for rows.Next() {
		var e expiredPart
		if err := rows.Scan(&e.PartID, &e.Batches, &e.Qty); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *ExpiryScanJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func (j *ExpiryScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics == nil {
		return nil
	}
	return j.Metrics
}

func (j *ExpiryScanJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}
