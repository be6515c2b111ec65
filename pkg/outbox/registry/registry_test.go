package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox/payloads"
)

func TestResolveBookingLifecycleEvent(t *testing.T) {
	reg := newTestRegistry(t)
	bookingID := uuid.New()

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventBookingCreated,
		AggregateType: enums.AggregateBooking,
		AggregateID:   bookingID,
		Payload: envelopeFor(t, payloads.BookingLifecycleEvent{
			BookingID: bookingID,
			ChargerID: "C1",
			Type:      enums.BookingTypeImmediate,
			Status:    enums.BookingStatusBooked,
		}),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Descriptor.Topic != "booking-topic" {
		t.Fatalf("topic = %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.BookingLifecycleEvent)
	if !ok {
		t.Fatalf("payload type %T", resolved.Payload)
	}
	if payload.BookingID != bookingID || payload.ChargerID != "C1" {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.ID() == uuid.Nil || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope metadata lost: %+v", resolved.Envelope)
	}
}

func TestResolveRoutesNotificationsToTheirTopic(t *testing.T) {
	reg := newTestRegistry(t)

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Payload: envelopeFor(t, payloads.NotificationRequestedEvent{
			BookingID: uuid.New(),
			Channel:   enums.NotificationChannelPush,
			Kind:      enums.NotificationTypeBookingCreated,
		}),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Descriptor.Topic != "notification-topic" {
		t.Fatalf("topic = %q", resolved.Descriptor.Topic)
	}
	if got := resolved.Payload.(*payloads.NotificationRequestedEvent).Channel; got != enums.NotificationChannelPush {
		t.Fatalf("channel = %q", got)
	}

	topics := reg.Topics()
	if len(topics) != 2 || topics[0] != "booking-topic" || topics[1] != "notification-topic" {
		t.Fatalf("topics = %v", topics)
	}
	topics[0] = "mutated"
	if reg.Topics()[0] != "booking-topic" {
		t.Fatalf("Topics must return a copy")
	}
}

func TestResolveRejectsBadRowsAsNonRetryable(t *testing.T) {
	reg := newTestRegistry(t)
	valid := envelopeFor(t, map[string]string{"booking_id": uuid.NewString()})

	cases := map[string]models.OutboxEvent{
		"unknown type": {
			EventType:     enums.OutboxEventType("station_archived"),
			AggregateType: enums.AggregateStation,
			AggregateID:   uuid.New(),
			Payload:       valid,
		},
		"aggregate mismatch": {
			EventType:     enums.EventBookingCreated,
			AggregateType: enums.AggregateStation,
			AggregateID:   uuid.New(),
			Payload:       valid,
		},
		"missing aggregate id": {
			EventType:     enums.EventBookingCreated,
			AggregateType: enums.AggregateBooking,
			Payload:       valid,
		},
		"null data": {
			EventType:     enums.EventRefundIssued,
			AggregateType: enums.AggregateBooking,
			AggregateID:   uuid.New(),
			Payload:       rawEnvelope(t, uuid.NewString(), json.RawMessage("null")),
		},
		"bad event id": {
			EventType:     enums.EventRefundIssued,
			AggregateType: enums.AggregateBooking,
			AggregateID:   uuid.New(),
			Payload:       rawEnvelope(t, "evt-1", json.RawMessage(`{}`)),
		},
		"not json": {
			EventType:     enums.EventBookingStarted,
			AggregateType: enums.AggregateBooking,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":`),
		},
		"payload shape": {
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateBooking,
			AggregateID:   uuid.New(),
			Payload:       rawEnvelope(t, uuid.NewString(), json.RawMessage(`[1,2]`)),
		},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !IsNonRetryable(err) {
				t.Fatalf("expected non-retryable, got %T: %v", err, err)
			}
		})
	}
}

func TestIsNonRetryableSeesThroughWrapping(t *testing.T) {
	base := NewNonRetryableError(errors.New("boom"))
	if !IsNonRetryable(errors.Join(errors.New("ctx"), base)) {
		t.Fatalf("joined error should be non-retryable")
	}
	if IsNonRetryable(errors.New("plain")) {
		t.Fatalf("plain error is retryable")
	}
	if (NonRetryableError{}).Error() == "" {
		t.Fatalf("empty wrapper needs a message")
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{NotificationTopic: "n"}); err == nil {
		t.Fatalf("expected booking topic error")
	}
	if _, err := NewEventRegistry(config.PubSubConfig{BookingTopic: "b"}); err == nil {
		t.Fatalf("expected notification topic error")
	}
}

func newTestRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		BookingTopic:      "booking-topic",
		NotificationTopic: "notification-topic",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func envelopeFor(t *testing.T, payload any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return rawEnvelope(t, uuid.NewString(), data)
}

func rawEnvelope(t *testing.T, eventID string, data json.RawMessage) json.RawMessage {
	t.Helper()
	out, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return out
}
