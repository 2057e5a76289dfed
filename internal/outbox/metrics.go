package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"example.com/healthconnect/internal/storage"
)

// Outcomes of a change delivery attempt.
const (
	outcomeDelivered    = "delivered"
	outcomeDeadLettered = "dead_lettered"
)

// DLQ lifecycle events.
const (
	dlqRequeued    = "requeued"
	dlqRescheduled = "rescheduled"
	dlqQuarantined = "quarantined"
)

var (
	changesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "health_platform",
		Subsystem: "outbox",
		Name:      "changes_total",
		Help:      "Change log entries handled by the dispatcher, by op and outcome.",
	}, []string{"op", "outcome"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "health_platform",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time to claim, deliver and settle one batch of changes.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "health_platform",
		Subsystem: "dlq",
		Name:      "events_total",
		Help:      "Dead-letter entries by topic and what happened to them.",
	}, []string{"topic", "event"})

	dlqBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "health_platform",
		Subsystem: "dlq",
		Name:      "pending",
		Help:      "Dead-letter entries not yet quarantined.",
	})
)

func init() {
	prometheus.MustRegister(changesTotal, batchDuration, dlqEvents, dlqBacklog)
}

func countChanges(changes []storage.Change, outcome string) {
	for _, c := range changes {
		changesTotal.WithLabelValues(string(c.Op), outcome).Inc()
	}
}

func refreshBacklog(ctx context.Context, pool *pgxpool.Pool) {
	var n int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM change_dlq WHERE quarantined_at IS NULL`).Scan(&n); err == nil {
		dlqBacklog.Set(float64(n))
	}
}
