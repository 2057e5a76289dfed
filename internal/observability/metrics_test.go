package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(recordsWritten.WithLabelValues("Steps"))
	RecordWritten("Steps", time.Unix(1700000000, 0))
	require.Equal(t, before+1, testutil.ToFloat64(recordsWritten.WithLabelValues("Steps")))
	require.Equal(t, float64(1700000000), testutil.ToFloat64(lastWriteGauge))

	failed := testutil.ToFloat64(migrationEntities.WithLabelValues("permission", "failed"))
	MigrationEntity("permission", errors.New("boom"))
	require.Equal(t, failed+1, testutil.ToFloat64(migrationEntities.WithLabelValues("permission", "failed")))

	SetMigrationInProgress(true)
	require.Equal(t, float64(1), testutil.ToFloat64(migrationInProgress))
	SetMigrationInProgress(false)
	require.Zero(t, testutil.ToFloat64(migrationInProgress))
}

func histogramSampleCount(t *testing.T, op string) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	obs, err := callDuration.GetMetricWithLabelValues(op)
	require.NoError(t, err)
	require.NoError(t, obs.(prometheus.Metric).Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func TestObserveCall(t *testing.T) {
	before := histogramSampleCount(t, "insert")
	calls := testutil.ToFloat64(callsTotal.WithLabelValues("insert", "ok"))

	ObserveCall("insert", "ok", 15*time.Millisecond)

	require.Equal(t, before+1, histogramSampleCount(t, "insert"))
	require.Equal(t, calls+1, testutil.ToFloat64(callsTotal.WithLabelValues("insert", "ok")))
}
