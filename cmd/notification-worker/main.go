package main

import (
	"errors"
	"strings"

	"github.com/angelmondragon/evcharge-backend/internal/bootstrap"
	"github.com/angelmondragon/evcharge-backend/internal/notifications"
	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox/idempotency"
)

func main() {
	rt := bootstrap.Start("notification-worker")
	defer rt.Close()
	cfg := rt.Config

	subscription := strings.TrimSpace(cfg.PubSub.NotificationSubscription)
	if subscription == "" {
		rt.Must("read subscription", errors.New(config.EnvPubSubNotificationSub+" is empty"))
	}

	manager, err := idempotency.NewManager(rt.Redis(), cfg.Eventing.OutboxIdempotencyTTL)
	rt.Must("build idempotency manager", err)
	tracker, err := manager.Scope(notifications.InboxConsumerName)
	rt.Must("scope idempotency tracker", err)

	consumer, err := notifications.NewConsumer(
		notifications.NewRepository(rt.DB.DB()),
		rt.PubSub().Subscriber(subscription),
		tracker,
		rt.Logger,
	)
	rt.Must("create notification consumer", err)

	ctx, stop := rt.SignalContext(map[string]any{"subscription": subscription})
	defer stop()
	rt.Must("run", rt.RunUntilSignal(ctx, consumer.Run))
}
