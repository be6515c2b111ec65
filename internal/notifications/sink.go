// Package notifications turns booking lifecycle changes into per-channel delivery requests.
// Requests ride the transactional outbox, so a failed delivery can never undo a booking.
package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox/payloads"
)

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Notification is one user-facing message about a booking.
type Notification struct {
	BookingID uuid.UUID
	UserID    uuid.UUID
	StationID uuid.UUID
	Kind      enums.NotificationType
	Status    enums.BookingStatus
	Message   string
	Actor     *outbox.ActorRef
}

// Sink fans a notification out to every configured channel.
type Sink struct {
	outbox   emitter
	channels []enums.NotificationChannel
}

// NewSink parses channel names; an empty list disables notifications.
func NewSink(out emitter, channels []string) (*Sink, error) {
	if out == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	parsed := make([]enums.NotificationChannel, 0, len(channels))
	seen := map[enums.NotificationChannel]struct{}{}
	for _, raw := range channels {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		channel, err := enums.ParseNotificationChannel(name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[channel]; dup {
			continue
		}
		seen[channel] = struct{}{}
		parsed = append(parsed, channel)
	}
	return &Sink{outbox: out, channels: parsed}, nil
}

// Channels returns the enabled delivery channels.
func (s *Sink) Channels() []enums.NotificationChannel {
	return append([]enums.NotificationChannel(nil), s.channels...)
}

// Notify queues one request per channel inside tx.
func (s *Sink) Notify(ctx context.Context, tx *gorm.DB, n Notification) error {
	if !n.Kind.IsValid() {
		return fmt.Errorf("invalid notification kind %q", n.Kind)
	}
	for _, channel := range s.channels {
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   n.BookingID,
			Actor:         n.Actor,
			Data: payloads.NotificationRequestedEvent{
				BookingID: n.BookingID,
				UserID:    n.UserID,
				StationID: n.StationID,
				Channel:   channel,
				Kind:      n.Kind,
				Status:    n.Status,
				Message:   n.Message,
			},
		})
		if err != nil {
			return fmt.Errorf("queue %s notification: %w", channel, err)
		}
	}
	return nil
}

// KindForStatus maps a booking status to the notification sent when it is entered.
func KindForStatus(status enums.BookingStatus) enums.NotificationType {
	switch status {
	case enums.BookingStatusActive:
		return enums.NotificationTypeSessionStarted
	case enums.BookingStatusCompleted:
		return enums.NotificationTypeSessionCompleted
	case enums.BookingStatusCancelled:
		return enums.NotificationTypeBookingCancelled
	case enums.BookingStatusNoShow:
		return enums.NotificationTypeBookingNoShow
	default:
		return enums.NotificationTypeBookingCreated
	}
}

// DefaultMessage renders the short text used when the caller has none.
func DefaultMessage(kind enums.NotificationType, stationName, chargerID string) string {
	switch kind {
	case enums.NotificationTypeSessionStarted:
		return fmt.Sprintf("Charging started at %s (charger %s).", stationName, chargerID)
	case enums.NotificationTypeSessionCompleted:
		return fmt.Sprintf("Charging session at %s is complete.", stationName)
	case enums.NotificationTypeBookingCancelled:
		return fmt.Sprintf("Your booking at %s was cancelled.", stationName)
	case enums.NotificationTypeBookingNoShow:
		return fmt.Sprintf("Your booking at %s expired because the session never started.", stationName)
	case enums.NotificationTypePaymentFailed:
		return fmt.Sprintf("Payment for your booking at %s failed.", stationName)
	default:
		return fmt.Sprintf("Booking confirmed at %s (charger %s).", stationName, chargerID)
	}
}
