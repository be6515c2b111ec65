package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox/payloads"
)

type memoryInbox struct {
	rows []models.Notification
	err  error
}

func (m *memoryInbox) Insert(_ context.Context, n *models.Notification) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.rows = append(m.rows, *n)
	return true, nil
}

type memoryTracker struct {
	seen    map[string]bool
	deleted []string
	err     error
}

func (m *memoryTracker) CheckAndMark(_ context.Context, id string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[id] {
		return true, nil
	}
	m.seen[id] = true
	return false, nil
}

func (m *memoryTracker) Delete(_ context.Context, id string) error {
	delete(m.seen, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func newTestConsumer(inbox *memoryInbox, tracker *memoryTracker) *Consumer {
	return &Consumer{
		repo:        inbox,
		idempotency: tracker,
		logg:        logger.New(logger.Options{ServiceName: "inbox-test", Output: io.Discard}),
	}
}

func buildMessage(t *testing.T, eventID uuid.UUID, channel enums.NotificationChannel) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payloads.NotificationRequestedEvent{
		BookingID: uuid.New(),
		UserID:    uuid.New(),
		StationID: uuid.New(),
		Channel:   channel,
		Kind:      enums.NotificationTypeSessionStarted,
		Status:    enums.BookingStatusActive,
		Message:   "Charging started.",
	})
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return &pubsub.Message{
		ID:         "msg-1",
		Data:       envelope,
		Attributes: map[string]string{"event_type": string(enums.EventNotificationRequested)},
	}
}

func TestConsumerStoresInAppNotificationOnce(t *testing.T) {
	inbox := &memoryInbox{}
	tracker := &memoryTracker{seen: map[string]bool{}}
	c := newTestConsumer(inbox, tracker)
	eventID := uuid.New()
	msg := buildMessage(t, eventID, enums.NotificationChannelInApp)

	first := c.process(context.Background(), msg)
	assert.Equal(t, outcomeStored, first)

	second := c.process(context.Background(), msg)
	assert.Equal(t, outcomeDuplicate, second)

	require.Len(t, inbox.rows, 1)
	assert.Equal(t, eventID, inbox.rows[0].EventID)
	assert.Equal(t, enums.NotificationTypeSessionStarted, inbox.rows[0].Type)
}

func TestConsumerSkipsOtherChannelsAndEvents(t *testing.T) {
	inbox := &memoryInbox{}
	c := newTestConsumer(inbox, &memoryTracker{seen: map[string]bool{}})

	push := c.process(context.Background(), buildMessage(t, uuid.New(), enums.NotificationChannelPush))
	assert.Equal(t, outcomeSkipped, push)

	other := buildMessage(t, uuid.New(), enums.NotificationChannelInApp)
	other.Attributes["event_type"] = string(enums.EventBookingCreated)
	assert.Equal(t, outcomeSkipped, c.process(context.Background(), other))

	bad := &pubsub.Message{Data: []byte("{"), Attributes: map[string]string{"event_type": string(enums.EventNotificationRequested)}}
	assert.Equal(t, outcomeSkipped, c.process(context.Background(), bad))

	assert.Empty(t, inbox.rows)
}

func TestConsumerNacksAndReleasesOnWriteFailure(t *testing.T) {
	inbox := &memoryInbox{err: errors.New("db down")}
	tracker := &memoryTracker{seen: map[string]bool{}}
	c := newTestConsumer(inbox, tracker)
	eventID := uuid.New()

	res := c.process(context.Background(), buildMessage(t, eventID, enums.NotificationChannelInApp))
	assert.Equal(t, outcomeRetry, res)
	assert.Equal(t, []string{eventID.String()}, tracker.deleted)
	assert.False(t, tracker.seen[eventID.String()])
}

func TestConsumerNacksWhenTrackerUnavailable(t *testing.T) {
	c := newTestConsumer(&memoryInbox{}, &memoryTracker{seen: map[string]bool{}, err: errors.New("redis down")})
	res := c.process(context.Background(), buildMessage(t, uuid.New(), enums.NotificationChannelInApp))
	assert.Equal(t, outcomeRetry, res)
}
