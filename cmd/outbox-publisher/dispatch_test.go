package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/metrics"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox/registry"
)

func TestProcessBatchKeepsGoingPastATransientFailure(t *testing.T) {
	events := []models.OutboxEvent{
		bookingEvent(t, uuid.New(), enums.EventBookingCreated, 0),
		bookingEvent(t, uuid.New(), enums.EventBookingCreated, 0),
	}
	h := newHarness(t, events, []error{errors.New("transient"), nil})

	processed, err := h.svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !processed {
		t.Fatalf("expected processed")
	}
	if len(h.repo.failed) != 1 || h.repo.failed[0] != events[0].ID {
		t.Fatalf("failed = %v", h.repo.failed)
	}
	if len(h.repo.published) != 1 || h.repo.published[0] != events[1].ID {
		t.Fatalf("published = %v", h.repo.published)
	}
	if len(h.pub.resumed) != 1 || h.pub.resumed[0] != "booking:"+events[0].AggregateID.String() {
		t.Fatalf("ordering key not resumed: %v", h.pub.resumed)
	}
}

func TestProcessBatchHoldsBackTheRestOfAFailedBooking(t *testing.T) {
	bookingID := uuid.New()
	other := uuid.New()
	events := []models.OutboxEvent{
		bookingEvent(t, bookingID, enums.EventBookingCreated, 0),
		bookingEvent(t, other, enums.EventBookingCreated, 0),
		bookingEvent(t, bookingID, enums.EventBookingStarted, 0),
	}
	h := newHarness(t, events, []error{errors.New("transient"), nil})

	if _, err := h.svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(h.pub.messages) != 2 {
		t.Fatalf("held row must not reach the broker, sent %d", len(h.pub.messages))
	}
	if len(h.repo.published) != 1 || h.repo.published[0] != events[1].ID {
		t.Fatalf("published = %v", h.repo.published)
	}
	if len(h.repo.failed) != 1 {
		t.Fatalf("only the first row is marked failed, got %v", h.repo.failed)
	}
}

func TestPublishSendsStoredEnvelopeWithAttributes(t *testing.T) {
	event := bookingEvent(t, uuid.New(), enums.EventBookingCompleted, 0)
	h := newHarness(t, []models.OutboxEvent{event}, nil)

	if _, err := h.svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(h.pub.messages) != 1 {
		t.Fatalf("messages = %d", len(h.pub.messages))
	}
	msg := h.pub.messages[0]
	if msg.OrderingKey != event.OrderingKey() {
		t.Fatalf("ordering key = %q", msg.OrderingKey)
	}
	want := map[string]string{
		"event_id":       event.ID.String(),
		"event_type":     string(enums.EventBookingCompleted),
		"aggregate_type": string(enums.AggregateBooking),
		"aggregate_id":   event.AggregateID.String(),
	}
	for k, v := range want {
		if msg.Attributes[k] != v {
			t.Fatalf("attribute %s = %q, want %q", k, msg.Attributes[k], v)
		}
	}
	if !bytes.Equal(msg.Data, event.Payload) {
		t.Fatalf("message data must be the stored envelope")
	}
}

func TestPublishersAreCachedPerTopicAndStopped(t *testing.T) {
	events := []models.OutboxEvent{
		bookingEvent(t, uuid.New(), enums.EventBookingCreated, 0),
		bookingEvent(t, uuid.New(), enums.EventBookingCreated, 0),
	}
	h := newHarness(t, events, nil)
	calls := 0
	h.svc.publisherFactory = func(topic string) publisher {
		calls++
		if topic != "booking-topic" {
			t.Fatalf("topic = %q", topic)
		}
		return h.pub
	}

	if _, err := h.svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if calls != 1 {
		t.Fatalf("factory called %d times", calls)
	}
	h.svc.stopPublishers()
	if !h.pub.stopped || len(h.svc.publishers) != 0 {
		t.Fatalf("publishers not stopped and cleared")
	}
}

func TestUnresolvableRowIsDeadLettered(t *testing.T) {
	event := bookingEvent(t, uuid.New(), enums.EventBookingCancelled, 0)
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	h := newHarness(t, []models.OutboxEvent{event}, nil, withResolver(reg))

	processed, err := h.svc.processBatch(context.Background())
	if err != nil || !processed {
		t.Fatalf("processed=%v err=%v", processed, err)
	}
	if len(h.dlq.entries) != 1 {
		t.Fatalf("dlq entries = %d", len(h.dlq.entries))
	}
	entry := h.dlq.entries[0]
	if entry.EventID != event.ID || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq entry does not mirror the row: %+v", entry)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("reason = %s", entry.ErrorReason)
	}
	if entry.ErrorMessage == nil || *entry.ErrorMessage != "invalid payload" {
		t.Fatalf("message = %v", entry.ErrorMessage)
	}
	if len(h.repo.terminal) != 1 || len(h.pub.messages) != 0 {
		t.Fatalf("row must be terminal without a publish")
	}
}

func TestLastAttemptIsDeadLettered(t *testing.T) {
	event := bookingEvent(t, uuid.New(), enums.EventBookingNoShow, 1)
	h := newHarness(t, []models.OutboxEvent{event}, []error{errors.New("transient")}, withMaxAttempts(2))

	if _, err := h.svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(h.dlq.entries) != 1 {
		t.Fatalf("dlq entries = %d", len(h.dlq.entries))
	}
	entry := h.dlq.entries[0]
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("reason = %s", entry.ErrorReason)
	}
	if entry.ErrorMessage == nil || !strings.Contains(*entry.ErrorMessage, "gave up after 2 attempts") {
		t.Fatalf("message = %v", entry.ErrorMessage)
	}
	if len(h.repo.failed) != 0 {
		t.Fatalf("terminal row must not also be marked failed")
	}
}

func TestProcessBatchRecordsOutcomes(t *testing.T) {
	bookingID := uuid.New()
	events := []models.OutboxEvent{
		bookingEvent(t, bookingID, enums.EventBookingCreated, 0),
		bookingEvent(t, bookingID, enums.EventBookingStarted, 0),
		bookingEvent(t, uuid.New(), enums.EventBookingCreated, 0),
	}
	reg := prometheus.NewRegistry()
	h := newHarness(t, events, []error{errors.New("transient"), nil}, withMetrics(metrics.NewOutboxMetrics(reg)))

	if _, err := h.svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	want := map[[2]string]float64{
		{"booking_created", "published"}: 1,
		{"booking_created", "retry"}:     1,
		{"booking_started", "held"}:      1,
	}
	got := outcomeCounts(t, reg)
	if len(got) != len(want) {
		t.Fatalf("outcomes = %v", got)
	}
	for key, v := range want {
		if got[key] != v {
			t.Fatalf("%v = %v, want %v", key, got[key], v)
		}
	}
}

func outcomeCounts(t *testing.T, reg *prometheus.Registry) map[[2]string]float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := map[[2]string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "outbox_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var key [2]string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "event_type":
					key[0] = lp.GetValue()
				case "outcome":
					key[1] = lp.GetValue()
				}
			}
			out[key] = m.GetCounter().GetValue()
		}
	}
	return out
}

func TestEmptyBatchReportsNothingProcessed(t *testing.T) {
	h := newHarness(t, nil, nil)
	processed, err := h.svc.processBatch(context.Background())
	if err != nil || processed {
		t.Fatalf("processed=%v err=%v", processed, err)
	}
}
