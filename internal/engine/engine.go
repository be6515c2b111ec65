// Package engine assembles the registry, availability guard, booking
// lifecycle, search and inbox services over one database handle.
package engine

import (
	"context"
	"fmt"

	"github.com/angelmondragon/evcharge-backend/internal/availability"
	"github.com/angelmondragon/evcharge-backend/internal/bookings"
	"github.com/angelmondragon/evcharge-backend/internal/geoindex"
	"github.com/angelmondragon/evcharge-backend/internal/notifications"
	"github.com/angelmondragon/evcharge-backend/internal/payments"
	"github.com/angelmondragon/evcharge-backend/internal/search"
	"github.com/angelmondragon/evcharge-backend/internal/stations"
	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/db"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/maps"
	"github.com/angelmondragon/evcharge-backend/pkg/metrics"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox"
)

type Params struct {
	Config  *config.Config
	DB      *db.Client
	Logger  *logger.Logger
	Metrics *metrics.EngineMetrics
	// Listener receives committed charger status changes; may be nil.
	Listener availability.StatusListener
	// Payments overrides the gateway chosen from config.
	Payments payments.Gateway
}

type Engine struct {
	Index       *geoindex.Index
	StationRepo *stations.Repository
	Stations    stations.Service
	Guard       *availability.Guard
	Bookings    bookings.Service
	Search      search.Service
	Inbox       notifications.Service
	OutboxRepo  *outbox.Repository
	Outbox      *outbox.Service
	Payments    payments.Gateway
	// Places is nil when no Google Maps key is configured.
	Places maps.PlaceSuggester
}

func New(ctx context.Context, p Params) (*Engine, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if p.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg := p.Config
	conn := p.DB.DB()

	index := geoindex.New(cfg.Search.GridCellDegrees)
	stationRepo := stations.NewRepository(conn, cfg.Guard.CASRetries)

	var (
		geocoder maps.Geocoder
		places   maps.PlaceSuggester
	)
	if cfg.GoogleMaps.APIKey != "" {
		client, err := maps.NewClient(cfg.GoogleMaps.APIKey, maps.WithLocale(cfg.GoogleMaps.Region, cfg.GoogleMaps.Language))
		if err != nil {
			return nil, fmt.Errorf("init maps client: %w", err)
		}
		geocoder, places = client, client
	}
	stationSvc, err := stations.NewService(stationRepo, index, geocoder, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("init station registry: %w", err)
	}

	guard, err := availability.NewGuard(stationRepo, cfg.Guard, p.Listener, p.Metrics, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("init availability guard: %w", err)
	}

	gateway := p.Payments
	if gateway == nil {
		gateway, err = payments.NewFromConfig(ctx, cfg, p.Logger)
		if err != nil {
			return nil, err
		}
	}

	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, p.Logger)
	sink, err := notifications.NewSink(outboxSvc, cfg.Notifications.Channels)
	if err != nil {
		return nil, fmt.Errorf("init notification sink: %w", err)
	}

	bookingSvc, err := bookings.NewService(bookings.ServiceParams{
		Repo:     bookings.NewRepository(conn),
		Stations: stationRepo,
		Guard:    guard,
		Payments: gateway,
		Outbox:   outboxSvc,
		Notifier: sink,
		Tx:       p.DB,
		Policy:   cfg.Booking,
		Metrics:  p.Metrics,
		Logger:   p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init booking service: %w", err)
	}

	live, err := search.NewLiveSource(stationRepo, index, cfg.Search.LiveTimeout)
	if err != nil {
		return nil, err
	}
	var fallback search.DataSource
	if cfg.Search.FallbackEnabled {
		static, err := search.NewDefaultStaticSource(cfg.Search.GridCellDegrees)
		if err != nil {
			return nil, fmt.Errorf("load fallback dataset: %w", err)
		}
		fallback = static
	}
	searchSvc, err := search.NewService(live, fallback, p.Metrics, p.Logger)
	if err != nil {
		return nil, err
	}
	inbox, err := notifications.NewService(notifications.NewRepository(conn))
	if err != nil {
		return nil, err
	}

	return &Engine{
		Index:       index,
		StationRepo: stationRepo,
		Stations:    stationSvc,
		Guard:       guard,
		Bookings:    bookingSvc,
		Search:      searchSvc,
		Inbox:       inbox,
		OutboxRepo:  outboxRepo,
		Outbox:      outboxSvc,
		Payments:    gateway,
		Places:      places,
	}, nil
}
