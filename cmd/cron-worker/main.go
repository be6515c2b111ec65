package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/evcharge-backend/internal/bootstrap"
	"github.com/angelmondragon/evcharge-backend/internal/cron"
	"github.com/angelmondragon/evcharge-backend/internal/engine"
	"github.com/angelmondragon/evcharge-backend/pkg/metrics"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox"
)

func main() {
	rt := bootstrap.Start("cron-worker")
	defer rt.Close()
	cfg := rt.Config
	redisClient := rt.Redis()

	eng, err := engine.New(context.Background(), engine.Params{
		Config:  cfg,
		DB:      rt.DB,
		Logger:  rt.Logger,
		Metrics: metrics.NewEngineMetrics(prometheus.DefaultRegisterer),
	})
	rt.Must("build booking engine", err)

	sweep, err := cron.NewBookingSweepJob(cron.BookingSweepJobParams{Logger: rt.Logger, Bookings: eng.Bookings})
	rt.Must("create booking sweep job", err)
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       rt.Logger,
		Repository:   eng.OutboxRepo,
		DeadLetters:  outbox.NewDLQRepository(rt.DB.DB()),
		Retention:    cfg.Outbox.Retention,
		DLQRetention: cfg.Outbox.DLQRetention,
	})
	rt.Must("create outbox retention job", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cronLockName(cfg.App.Env)), cfg.Cron.LockTTL)
	rt.Must("create cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Registry: cron.NewRegistry(sweep, retention),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	rt.Must("create cron service", err)

	ctx, stop := rt.SignalContext(map[string]any{"interval": cfg.Cron.Interval.String()})
	defer stop()
	rt.ServeMetrics(ctx, prometheus.DefaultGatherer)
	rt.Must("run", rt.RunUntilSignal(ctx, service.Run))
}

func cronLockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron:" + env
}
