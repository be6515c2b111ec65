// Package registry maps outbox event types to their Pub/Sub topic and typed
// payload so the publisher can validate rows before sending them.
package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a row that passed validation, with its payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
	topics  []string
}

// NonRetryableError marks a row that will never publish; it goes straight to
// the dead-letter table.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// IsNonRetryable reports whether err (or anything it wraps) is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

type route struct {
	events    []enums.OutboxEventType
	aggregate enums.OutboxAggregateType
	topic     string
	payload   func() any
}

// NewEventRegistry wires booking events to the booking topic and
// notification requests to the notification topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.BookingTopic == "" {
		return nil, errors.New("booking topic is required")
	}
	if cfg.NotificationTopic == "" {
		return nil, errors.New("notification topic is required")
	}

	routes := []route{
		{
			events: []enums.OutboxEventType{
				enums.EventBookingCreated,
				enums.EventBookingStarted,
				enums.EventBookingCompleted,
				enums.EventBookingCancelled,
				enums.EventBookingNoShow,
			},
			aggregate: enums.AggregateBooking,
			topic:     cfg.BookingTopic,
			payload:   func() any { return &payloads.BookingLifecycleEvent{} },
		},
		{
			events:    []enums.OutboxEventType{enums.EventPaymentFailed},
			aggregate: enums.AggregateBooking,
			topic:     cfg.BookingTopic,
			payload:   func() any { return &payloads.PaymentFailedEvent{} },
		},
		{
			events:    []enums.OutboxEventType{enums.EventRefundIssued},
			aggregate: enums.AggregateBooking,
			topic:     cfg.BookingTopic,
			payload:   func() any { return &payloads.RefundIssuedEvent{} },
		},
		{
			events:    []enums.OutboxEventType{enums.EventNotificationRequested},
			aggregate: enums.AggregateNotification,
			topic:     cfg.NotificationTopic,
			payload:   func() any { return &payloads.NotificationRequestedEvent{} },
		},
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, rt := range routes {
		for _, eventType := range rt.events {
			reg.entries[eventType] = EventDescriptor{
				EventType:      eventType,
				AggregateType:  rt.aggregate,
				Topic:          rt.topic,
				PayloadFactory: rt.payload,
			}
		}
		if !slices.Contains(reg.topics, rt.topic) {
			reg.topics = append(reg.topics, rt.topic)
		}
	}
	slices.Sort(reg.topics)
	return reg, nil
}

// Topics lists the distinct topics, sorted.
func (r *EventRegistry) Topics() []string {
	return slices.Clone(r.topics)
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, nonRetryable("%s: aggregate %s, want %s", event.EventType, event.AggregateType, desc.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, nonRetryable("%s: missing aggregate_id", event.EventType)
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, nonRetryable("%s: %w", event.EventType, err)
	}
	payload := desc.PayloadFactory()
	if err := envelope.DecodeData(payload); err != nil {
		return nil, nonRetryable("%s: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
