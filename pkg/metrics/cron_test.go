package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	finished := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	m.ObserveRun("booking-sweep", finished, 250*time.Millisecond, nil)
	m.ObserveRun("booking-sweep", finished.Add(time.Minute), time.Second, errors.New("db down"))
	m.IncSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "job", "booking-sweep", "outcome", "success"); err != nil || got != 1 {
		t.Fatalf("expected success=1, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "job", "booking-sweep", "outcome", "failure"); err != nil || got != 1 {
		t.Fatalf("expected failure=1, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramCount(mfs, "cron_job_duration_seconds", "job", "booking-sweep"); err != nil || got != 2 {
		t.Fatalf("expected 2 duration samples, got %d err=%v", got, err)
	}
	if got, err := fetchGaugeValue(mfs, "cron_job_last_success_timestamp_seconds", "job", "booking-sweep"); err != nil || got != float64(finished.Unix()) {
		t.Fatalf("last success should ignore the failed run, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "cron_cycles_skipped_total"); err != nil || got != 1 {
		t.Fatalf("expected skipped=1, got %f err=%v", got, err)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("", time.Now(), time.Second, nil)
	m.IncSkipped()
	NewCronJobMetrics(nil).ObserveRun("x", time.Now(), 0, errors.New("x"))
}
