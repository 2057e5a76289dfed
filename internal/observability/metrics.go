// Package observability holds the service-level Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "health_platform"

var (
	callsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "service",
		Name:      "calls_total",
		Help:      "Inbound service calls by operation and result code.",
	}, []string{"operation", "code"})
	callDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "service",
		Name:      "call_duration_seconds",
		Help:      "Latency of inbound service calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	recordsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "records",
		Name:      "written_total",
		Help:      "Records inserted or updated, by kind.",
	}, []string{"kind"})
	recordsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "records",
		Name:      "deleted_total",
		Help:      "Records removed by delete calls.",
	})
	lastWriteGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "records",
		Name:      "last_write_timestamp_seconds",
		Help:      "Unix timestamp of the most recent committed record write.",
	})
	migrationEntities = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "migration",
		Name:      "entities_total",
		Help:      "Migration entities processed, by payload type and outcome.",
	}, []string{"payload", "outcome"})
	migrationInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "migration",
		Name:      "in_progress",
		Help:      "1 while a data migration holds the API gate.",
	})
)

func init() {
	prometheus.MustRegister(callsTotal, callDuration, recordsWritten, recordsDeleted,
		lastWriteGauge, migrationEntities, migrationInProgress)
}

// ObserveCall records one inbound call.
func ObserveCall(op, code string, elapsed time.Duration) {
	callsTotal.WithLabelValues(op, code).Inc()
	callDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordWritten counts a committed record write and moves the watermark.
func RecordWritten(kind string, at time.Time) {
	recordsWritten.WithLabelValues(kind).Inc()
	if !at.IsZero() {
		lastWriteGauge.Set(float64(at.Unix()))
	}
}

// RecordsDeleted adds n to the delete counter.
func RecordsDeleted(n int) {
	if n > 0 {
		recordsDeleted.Add(float64(n))
	}
}

// MigrationEntity counts one applied or failed migration entity.
func MigrationEntity(payload string, err error) {
	outcome := "applied"
	if err != nil {
		outcome = "failed"
	}
	migrationEntities.WithLabelValues(payload, outcome).Inc()
}

// SetMigrationInProgress flips the migration gauge.
func SetMigrationInProgress(on bool) {
	if on {
		migrationInProgress.Set(1)
		return
	}
	migrationInProgress.Set(0)
}
