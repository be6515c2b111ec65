package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/evcharge-backend/internal/bootstrap"
	"github.com/angelmondragon/evcharge-backend/pkg/metrics"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox/registry"
)

func main() {
	rt := bootstrap.Start("outbox-publisher")
	defer rt.Close()
	cfg, conn := rt.Config, rt.DB.DB()

	events, err := registry.NewEventRegistry(cfg.PubSub)
	rt.Must("build event registry", err)

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        rt.Logger,
		DB:            rt.DB,
		PubSub:        rt.PubSub(),
		Repository:    outbox.NewRepository(conn),
		Registry:      events,
		DLQRepository: outbox.NewDLQRepository(conn),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	rt.Must("create publisher", err)

	ctx, stop := rt.SignalContext(map[string]any{"topics": events.Topics()})
	defer stop()
	rt.ServeMetrics(ctx, prometheus.DefaultGatherer)
	rt.Must("run", rt.RunUntilSignal(ctx, service.Run))
}
