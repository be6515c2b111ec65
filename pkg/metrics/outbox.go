package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics follows rows through the publisher loop.
type OutboxMetrics struct {
	events        *prometheus.CounterVec
	batchDuration prometheus.Histogram
	batchRows     prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_events_total",
			Help: "Outbox rows handled by outcome: published, retry, dead_lettered, held.",
		}, []string{"event_type", "outcome"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outbox_batch_duration_seconds",
			Help:    "Time spent on one non-empty publish batch.",
			Buckets: prometheus.DefBuckets,
		}),
		batchRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outbox_batch_rows",
			Help:    "Rows claimed per non-empty batch.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
	}
	reg.MustRegister(m.events, m.batchDuration, m.batchRows)
	return m
}

func (m *OutboxMetrics) ObserveEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) ObserveBatch(rows int, took time.Duration) {
	if m == nil || m.batchRows == nil {
		return
	}
	m.batchRows.Observe(float64(rows))
	m.batchDuration.Observe(took.Seconds())
}
