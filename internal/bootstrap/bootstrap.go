// Package bootstrap holds the start-up sequence shared by the api server and
// the worker binaries: env file, config, logger, database and schema.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/db"
	"github.com/angelmondragon/evcharge-backend/pkg/instance"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/metrics"
	"github.com/angelmondragon/evcharge-backend/pkg/migrate"
	"github.com/angelmondragon/evcharge-backend/pkg/pubsub"
	"github.com/angelmondragon/evcharge-backend/pkg/redis"
)

type closer struct {
	name string
	c    io.Closer
}

// Runtime is one process's shared clients. Close releases them in reverse
// order of acquisition.
type Runtime struct {
	Service string
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client

	closers []closer
	exit    func(int)
}

// Start loads configuration and opens the database. Failures are fatal.
func Start(service string) *Runtime {
	rt := &Runtime{
		Service: service,
		Logger:  logger.New(logger.Options{ServiceName: service}),
		exit:    os.Exit,
	}
	if err := godotenv.Load(); err != nil {
		rt.Logger.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	rt.Must("load config", err)
	cfg.Service.Kind = service
	rt.Config = cfg
	rt.Logger = logger.FromConfig(service, cfg.App)

	ctx := context.Background()
	rt.DB, err = db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, rt.Logger)
	rt.Must("connect database", err)
	rt.Track("database", rt.DB)
	rt.Must("apply schema", migrate.AutoApply(ctx, cfg, rt.Logger, rt.DB))
	return rt
}

// Redis opens the shared redis client.
func (rt *Runtime) Redis() *redis.Client {
	client, err := redis.New(context.Background(), rt.Config.Redis, rt.Logger)
	rt.Must("connect redis", err)
	rt.Track("redis", client)
	return client
}

// PubSub opens the Pub/Sub client after checking the configured resources.
func (rt *Runtime) PubSub() *pubsub.Client {
	client, err := pubsub.NewClient(context.Background(), rt.Config.GCP, rt.Config.PubSub, rt.Logger)
	rt.Must("connect pubsub", err)
	rt.Track("pubsub", client)
	return client
}

// Track registers c to be closed on shutdown.
func (rt *Runtime) Track(name string, c io.Closer) {
	rt.closers = append(rt.closers, closer{name: name, c: c})
}

func (rt *Runtime) Close() {
	for _, c := range slices.Backward(rt.closers) {
		if err := c.c.Close(); err != nil {
			rt.Logger.Error(context.Background(), "close "+c.name, err)
		}
	}
	rt.closers = nil
}

// Must logs err, closes what is open and exits non-zero.
func (rt *Runtime) Must(step string, err error) {
	if err == nil {
		return
	}
	rt.Logger.Error(context.Background(), rt.Service+": "+step+" failed", err)
	rt.Close()
	rt.exit(1)
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the process
// log fields plus extra.
func (rt *Runtime) SignalContext(extra map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	fields := map[string]any{
		"env":         rt.Config.App.Env,
		"instance":    instance.GetID(),
		"serviceKind": rt.Service,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return rt.Logger.WithFields(ctx, fields), stop
}

// ServeMetrics exposes gatherer on EVCHARGE_METRICS_ADDR until ctx ends. It
// does nothing when the address is unset.
func (rt *Runtime) ServeMetrics(ctx context.Context, gatherer prometheus.Gatherer) {
	go func() {
		if err := metrics.ListenAndServe(ctx, rt.Config.Service.MetricsAddr, gatherer); err != nil {
			rt.Logger.Error(ctx, "metrics listener stopped", err)
		}
	}()
}

// RunUntilSignal runs loop and treats cancellation as a clean stop.
func (rt *Runtime) RunUntilSignal(ctx context.Context, loop func(context.Context) error) error {
	rt.Logger.Info(ctx, "starting "+rt.Service)
	err := loop(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s stopped: %w", rt.Service, err)
	}
	rt.Logger.Info(ctx, rt.Service+" shutting down gracefully")
	return nil
}
