package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/gearbox-erp/gearbox-erp/internal/jobs"
)

func scanTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scrapeMetrics(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func TestExpiryScanFailureCountedInMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// No pool configured: the scan fails and the run must land in the
	// failure counter, not just in the log.
	job := NewExpiryScanJob(nil, scanTestLogger(), metrics, nil, nil)
	task, err := NewExpiryScanTask(time.Now().UTC())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)

	body := scrapeMetrics(t, reg)
	require.Contains(t, body, `gearbox_jobs_failures_total{job="ledger:expiry_scan"} 1`)
	require.Contains(t, body, `gearbox_jobs_total{job="ledger:expiry_scan",status="failure"} 1`)
}

func TestLowStockScanFailureCountedInMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	job := NewLowStockScanJob(nil, scanTestLogger(), metrics)
	task, err := NewLowStockScanTask(time.Now().UTC())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)

	body := scrapeMetrics(t, reg)
	require.Contains(t, body, `gearbox_jobs_failures_total{job="ledger:low_stock_scan"} 1`)
}

func TestExpiryScanSkipsRetryOnBadPayload(t *testing.T) {
	job := NewExpiryScanJob(nil, scanTestLogger(), nil, nil, nil)
	task := asynq.NewTask(TaskLedgerExpiryScan, []byte("{not json"))

	err := job.Handle(context.Background(), task)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}
