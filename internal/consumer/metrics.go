package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "health_platform",
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Migration messages consumed, by topic and outcome.",
	}, []string{"topic", "outcome"})

	handleSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "health_platform",
		Subsystem: "consumer",
		Name:      "handle_duration_seconds",
		Help:      "Time spent handling one migration message including retries.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"topic"})

	lagSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "health_platform",
		Subsystem: "consumer",
		Name:      "lag_seconds",
		Help:      "Age of the last handled message when handling finished.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(messagesTotal, handleSeconds, lagSeconds)
}

func observeMessage(msg Message, outcome string, started time.Time) {
	messagesTotal.WithLabelValues(msg.Topic, outcome).Inc()
	handleSeconds.WithLabelValues(msg.Topic).Observe(time.Since(started).Seconds())
	if !msg.Timestamp.IsZero() {
		lagSeconds.WithLabelValues(msg.Topic).Set(time.Since(msg.Timestamp).Seconds())
	}
}
