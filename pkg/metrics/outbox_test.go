package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetricsCountsOutcomesPerEventType(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.ObserveEvent("booking_created", "published")
	m.ObserveEvent("booking_created", "published")
	m.ObserveEvent("booking_started", "retry")
	m.ObserveEvent("", "held")
	m.ObserveBatch(3, 40*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if v, err := fetchCounterValue(mfs, "outbox_events_total", "event_type", "booking_created", "outcome", "published"); err != nil || v != 2 {
		t.Fatalf("published = %v, %v", v, err)
	}
	if v, err := fetchCounterValue(mfs, "outbox_events_total", "event_type", "booking_started", "outcome", "retry"); err != nil || v != 1 {
		t.Fatalf("retry = %v, %v", v, err)
	}
	if v, err := fetchCounterValue(mfs, "outbox_events_total", "event_type", "unknown", "outcome", "held"); err != nil || v != 1 {
		t.Fatalf("held = %v, %v", v, err)
	}
	if n, err := fetchHistogramCount(mfs, "outbox_batch_rows"); err != nil || n != 1 {
		t.Fatalf("batch rows samples = %d, %v", n, err)
	}
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.ObserveEvent("x", "published")
	m.ObserveBatch(1, time.Second)
	NewOutboxMetrics(nil).ObserveEvent("x", "retry")
}

func TestHandlerExposesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewOutboxMetrics(reg).ObserveEvent("booking_created", "published")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `outbox_events_total{event_type="booking_created",outcome="published"} 1`) {
		t.Fatalf("metric missing from body:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("health status = %d", rec.Code)
	}
}

func TestListenAndServeDisabledWithoutAddr(t *testing.T) {
	if err := ListenAndServe(t.Context(), "", prometheus.NewRegistry()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
