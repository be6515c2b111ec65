package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/evcharge-backend/api/controllers"
	"github.com/angelmondragon/evcharge-backend/api/routes"
	"github.com/angelmondragon/evcharge-backend/internal/availability"
	"github.com/angelmondragon/evcharge-backend/internal/bootstrap"
	"github.com/angelmondragon/evcharge-backend/internal/engine"
	"github.com/angelmondragon/evcharge-backend/internal/livestatus"
	stripewebhook "github.com/angelmondragon/evcharge-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/evcharge-backend/pkg/metrics"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/evcharge-backend/pkg/stripe"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	rt := bootstrap.Start("api")
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger
	redisClient := rt.Redis()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		listener availability.StatusListener
		liveFeed controllers.LiveFeed
	)
	if cfg.FeatureFlags.LiveStatus {
		hub := livestatus.NewHub(cfg.LiveStatus, cfg.CORS.AllowedOrigins, logg)
		listener, liveFeed = hub, hub
	}

	eng, err := engine.New(context.Background(), engine.Params{
		Config:   cfg,
		DB:       rt.DB,
		Logger:   logg,
		Metrics:  metrics.NewEngineMetrics(registry),
		Listener: listener,
	})
	rt.Must("build booking engine", err)

	warmed, err := eng.Stations.WarmIndex(context.Background())
	rt.Must("warm geo index", err)
	logg.Info(logg.WithField(context.Background(), "stations", warmed), "geo index warmed")

	deps := routes.Deps{
		Config:   cfg,
		Logger:   logg,
		DB:       rt.DB,
		Redis:    redisClient,
		Gatherer: registry,
		Stations: eng.Stations,
		Guard:    eng.Guard,
		Bookings: eng.Bookings,
		Search:   eng.Search,
		Inbox:    eng.Inbox,
		Live:     liveFeed,
		Places:   eng.Places,
	}

	if cfg.Payments.UsesStripe() {
		deps.StripeClient, err = stripe.NewClient(context.Background(), cfg.Stripe, logg)
		rt.Must("connect stripe", err)
		deps.StripeWebhookService, err = stripewebhook.NewService(stripewebhook.ServiceParams{Settler: eng.Bookings})
		rt.Must("create stripe webhook service", err)
		dedupe, err := idempotency.NewManager(redisClient, cfg.RateLimit.WebhookDedupeWindow)
		rt.Must("create stripe webhook dedupe", err)
		deps.StripeWebhookGuard, err = dedupe.Scope(stripewebhook.ConsumerName)
		rt.Must("scope stripe webhook dedupe", err)
	}

	addr := ":" + cfg.App.Port
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	ctx, stop := rt.SignalContext(map[string]any{
		"addr":        addr,
		"live_status": cfg.FeatureFlags.LiveStatus,
		"payments":    cfg.Payments.Provider,
	})
	defer stop()

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	rt.Must("serve", rt.RunUntilSignal(ctx, func(ctx context.Context) error {
		return serve(ctx, server)
	}))
}

// serve runs server until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
