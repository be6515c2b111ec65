package notifications

import (
	"context"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox/payloads"
)

// InboxConsumerName scopes processed markers for the inbox consumer.
const InboxConsumerName = "notification-inbox"

type inboxWriter interface {
	Insert(ctx context.Context, n *models.Notification) (bool, error)
}

type processedTracker interface {
	CheckAndMark(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// Consumer delivers in_app notification requests into the driver inbox.
type Consumer struct {
	repo         inboxWriter
	subscription *pubsub.Subscriber
	idempotency  processedTracker
	logg         *logger.Logger
}

// NewConsumer builds the inbox consumer.
func NewConsumer(repo inboxWriter, subscription *pubsub.Subscriber, tracker processedTracker, logg *logger.Logger) (*Consumer, error) {
	switch {
	case repo == nil:
		return nil, errors.New("notifications: inbox store required")
	case subscription == nil:
		return nil, errors.New("notifications: subscription required")
	case tracker == nil:
		return nil, errors.New("notifications: processed tracker required")
	case logg == nil:
		return nil, errors.New("notifications: logger required")
	}
	return &Consumer{repo: repo, subscription: subscription, idempotency: tracker, logg: logg}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) == outcomeRetry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// outcome is what process decided for one message. Only outcomeRetry nacks.
type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeStored
	outcomeDuplicate
	outcomeRetry
)

// inboxEntry extracts the notification a message asks for. A false return
// means the message is not for the inbox or cannot be read and should be
// acked without a write.
func (c *Consumer) inboxEntry(ctx context.Context, msg *pubsub.Message) (context.Context, *models.Notification, bool) {
	if msg.Attributes["event_type"] != string(enums.EventNotificationRequested) {
		c.logg.Info(ctx, "skipping non-notification event")
		return ctx, nil, false
	}
	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(ctx, "failed to decode envelope", err)
		return ctx, nil, false
	}
	var p payloads.NotificationRequestedEvent
	if err := envelope.DecodeData(&p); err != nil {
		c.logg.Error(ctx, "failed to parse payload", err)
		return ctx, nil, false
	}

	ctx = c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.ID().String(),
		"booking_id": p.BookingID.String(),
		"channel":    p.Channel,
	})
	switch {
	case p.Channel != enums.NotificationChannelInApp:
		c.logg.Info(ctx, "channel delivered elsewhere")
		return ctx, nil, false
	case p.UserID == uuid.Nil || p.BookingID == uuid.Nil || !p.Kind.IsValid():
		c.logg.Warn(ctx, "incomplete notification payload dropped")
		return ctx, nil, false
	}
	return ctx, &models.Notification{
		EventID:   envelope.ID(),
		UserID:    p.UserID,
		BookingID: p.BookingID,
		StationID: p.StationID,
		Type:      p.Kind,
		Status:    p.Status,
		Message:   p.Message,
	}, true
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) outcome {
	ctx = c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes["event_type"],
	})
	ctx, entry, ok := c.inboxEntry(ctx, msg)
	if !ok {
		return outcomeSkipped
	}

	key := entry.EventID.String()
	seen, err := c.idempotency.CheckAndMark(ctx, key)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return outcomeRetry
	}
	if seen {
		c.logg.Info(ctx, "event already processed")
		return outcomeDuplicate
	}

	created, err := c.repo.Insert(ctx, entry)
	if err != nil {
		c.logg.Error(ctx, "inbox write failed", err)
		if delErr := c.idempotency.Delete(ctx, key); delErr != nil {
			c.logg.Warn(ctx, "failed to release processed marker: "+delErr.Error())
		}
		return outcomeRetry
	}
	if !created {
		return outcomeDuplicate
	}
	c.logg.Info(ctx, "inbox notification stored")
	return outcomeStored
}
