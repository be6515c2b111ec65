package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records reservation, booking, and search outcomes.
type EngineMetrics struct {
	reservations *prometheus.CounterVec
	guardWait    prometheus.Histogram
	transitions  *prometheus.CounterVec
	searches     *prometheus.CounterVec
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charger_reservations_total",
		Help: "Charger reservation attempts by outcome.",
	}, []string{"outcome"})
	guardWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "charger_guard_wait_seconds",
		Help:    "Time spent waiting for a charger critical section.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_total",
		Help: "Booking lifecycle transitions by event and result.",
	}, []string{"event", "result"})
	searches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "station_searches_total",
		Help: "Station searches by serving data source.",
	}, []string{"source"})
	reg.MustRegister(reservations, guardWait, transitions, searches)
	return &EngineMetrics{
		reservations: reservations,
		guardWait:    guardWait,
		transitions:  transitions,
		searches:     searches,
	}
}

// IncReservation counts a reservation attempt (reserved, occupied, timeout, error).
func (m *EngineMetrics) IncReservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGuardWait records lock acquisition latency.
func (m *EngineMetrics) ObserveGuardWait(d time.Duration) {
	if m == nil || m.guardWait == nil {
		return
	}
	m.guardWait.Observe(d.Seconds())
}

// IncTransition counts a lifecycle event with its result code.
func (m *EngineMetrics) IncTransition(event, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(event), normalizeLabel(result)).Inc()
}

// IncSearch counts a search served by source (live, fallback, empty).
func (m *EngineMetrics) IncSearch(source string) {
	if m == nil || m.searches == nil {
		return
	}
	m.searches.WithLabelValues(normalizeLabel(source)).Inc()
}
