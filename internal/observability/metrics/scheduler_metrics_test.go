package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySchedulerError(t *testing.T) {
	assert.Equal(t, SchedulerErrorTypeDeadlineExceeded, classifySchedulerError(context.DeadlineExceeded))
	assert.Equal(t, SchedulerErrorTypeDeadlineExceeded, classifySchedulerError(context.Canceled))
	assert.Equal(t, SchedulerErrorTypeDB, classifySchedulerError(&pgconn.PgError{Code: "40001"}))
	assert.Equal(t, SchedulerErrorTypeDB, classifySchedulerError(errors.New("sql: connection refused")))
	assert.Equal(t, SchedulerErrorTypeBusinessRule, classifySchedulerError(errors.New("invalid_transition")))
	assert.Equal(t, SchedulerErrorTypeBusinessRule, classifySchedulerError(errors.New("subscription_not_found")))
	assert.Equal(t, SchedulerErrorTypeUnknown, classifySchedulerError(errors.New("boom")))
}

func TestSchedulerMetricsNilReceiversAreSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.IncJobRun("renew_subscriptions")
	m.ObserveJobDuration("renew_subscriptions", time.Second)
	m.IncJobTimeout("renew_subscriptions")
	m.IncJobError("renew_subscriptions", errors.New("boom"))
	m.AddBatchProcessed("renew_subscriptions", 10)
	m.ObserveRunLoopLag(time.Second)
}

func TestSchedulerMetricFamiliesExported(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "stocker", Environment: "test"})

	m.IncJobRun("expire_carts")
	m.AddBatchProcessed("expire_carts", 3)
	m.IncJobError("renew_subscriptions", errors.New("invalid_transition"))

	families, err := registry.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, family := range families {
		byName[family.GetName()] = family
	}

	runs, ok := byName["stocker_scheduler_job_runs_total"]
	require.True(t, ok, "job runs family missing")
	require.Len(t, runs.GetMetric(), 1)
	assert.Equal(t, float64(1), runs.GetMetric()[0].GetCounter().GetValue())

	batches, ok := byName["stocker_scheduler_batch_processed_total"]
	require.True(t, ok, "batch processed family missing")
	assert.Equal(t, float64(3), batches.GetMetric()[0].GetCounter().GetValue())

	jobErrors, ok := byName["stocker_scheduler_job_errors_total"]
	require.True(t, ok, "job errors family missing")
	labels := jobErrors.GetMetric()[0].GetLabel()
	values := make(map[string]string, len(labels))
	for _, pair := range labels {
		values[pair.GetName()] = pair.GetValue()
	}
	assert.Equal(t, "renew_subscriptions", values["job"])
	assert.Equal(t, SchedulerErrorTypeBusinessRule, values["error_type"])
}

func TestSchedulerSingleton(t *testing.T) {
	ResetSchedulerMetricsForTest()
	t.Cleanup(ResetSchedulerMetricsForTest)

	first := Scheduler()
	second := SchedulerWithConfig(Config{ServiceName: "other"})
	assert.Same(t, first, second)
}
