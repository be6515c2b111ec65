package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/evcharge-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/evcharge-backend/api/controllers/webhooks"
	"github.com/angelmondragon/evcharge-backend/api/middleware"
	"github.com/angelmondragon/evcharge-backend/internal/bookings"
	"github.com/angelmondragon/evcharge-backend/internal/notifications"
	"github.com/angelmondragon/evcharge-backend/internal/search"
	"github.com/angelmondragon/evcharge-backend/internal/stations"
	stripewebhook "github.com/angelmondragon/evcharge-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/maps"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/evcharge-backend/pkg/redis"
	"github.com/angelmondragon/evcharge-backend/pkg/stripe"
)

// RedisStore is the slice of the redis client the HTTP surface uses.
type RedisStore interface {
	redis.IdempotencyStore
	middleware.RateLimiterStore
	Ping(ctx context.Context) error
}

// Deps carries everything the HTTP surface needs. Nil optional entries
// disable their routes' behaviour rather than the routes themselves.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    RedisStore
	Gatherer prometheus.Gatherer

	Stations stations.Service
	Guard    controllers.ChargerStatusSetter
	Bookings bookings.Service
	Search   search.Service
	Inbox    notifications.Service
	Live     controllers.LiveFeed
	Places   maps.PlaceSuggester

	StripeClient         *stripe.Client
	StripeWebhookService *stripewebhook.Service
	StripeWebhookGuard   *idempotency.Tracker
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.AccessLog(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	var redisPinger controllers.Pinger
	var idempotencyStore redis.IdempotencyStore
	var counterStore middleware.RateLimiterStore
	if d.Redis != nil {
		redisPinger = d.Redis
		idempotencyStore = d.Redis
		counterStore = d.Redis
	}

	searchPolicy := middleware.NewRateLimitPolicy("search", cfg.RateLimit.SearchWindow, cfg.RateLimit.SearchIPLimit, 0)
	bookingPolicy := middleware.NewRateLimitPolicy("booking-create", cfg.RateLimit.BookingWindow, cfg.RateLimit.BookingIPLimit, cfg.RateLimit.BookingUserLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": d.DB,
			"redis":    redisPinger,
		}))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if d.StripeWebhookService != nil && d.StripeClient != nil && d.StripeWebhookGuard != nil {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(d.StripeWebhookService, d.StripeClient, d.StripeWebhookGuard, logg))
		} else {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(nil, nil, nil, logg))
		}
	})

	r.Route("/api/v1/stations", func(r chi.Router) {
		r.With(middleware.RateLimit(searchPolicy, counterStore, logg)).Get("/", controllers.StationSearch(d.Search, logg))
		r.Get("/{stationId}", controllers.StationGet(d.Stations, logg))
		r.Get("/{stationId}/live", controllers.StationLive(d.Stations, d.Live, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		replay := middleware.Idempotent(idempotencyStore, logg, middleware.ReplayWindow)
		paymentReplay := middleware.Idempotent(idempotencyStore, logg, middleware.PaymentReplayWindow)

		r.Route("/bookings", func(r chi.Router) {
			r.With(middleware.RateLimit(bookingPolicy, counterStore, logg), paymentReplay).Post("/", controllers.BookingCreate(d.Bookings, logg))
			r.Get("/", controllers.BookingList(d.Bookings, logg))
			r.Get("/{bookingId}", controllers.BookingGet(d.Bookings, logg))
			r.With(replay).Post("/{bookingId}/start", controllers.BookingTransition(d.Bookings, enums.BookingEventStart, logg))
			r.With(replay).Post("/{bookingId}/end", controllers.BookingTransition(d.Bookings, enums.BookingEventEnd, logg))
			r.With(paymentReplay).Post("/{bookingId}/cancel", controllers.BookingTransition(d.Bookings, enums.BookingEventCancel, logg))
			r.With(paymentReplay).Post("/{bookingId}/payment/retry", controllers.BookingPaymentRetry(d.Bookings, logg))
			r.With(replay).Post("/{bookingId}/feedback", controllers.BookingFeedback(d.Bookings, logg))
			r.Post("/{bookingId}/progress", controllers.BookingProgress(d.Bookings, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.NotificationList(d.Inbox, logg))
			r.Post("/read-all", controllers.NotificationMarkAllRead(d.Inbox, logg))
			r.Post("/{notificationId}/read", controllers.NotificationMarkRead(d.Inbox, logg))
		})

		r.Route("/operator", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleOperator, enums.UserRoleAdmin))
			r.Route("/stations", func(r chi.Router) {
				r.With(replay).Post("/", controllers.OperatorStationCreate(d.Stations, logg))
				r.Put("/{stationId}", controllers.OperatorStationUpdate(d.Stations, logg))
				r.Delete("/{stationId}", controllers.OperatorStationDelete(d.Stations, logg))
				r.Post("/{stationId}/status", controllers.OperatorStationStatus(d.Stations, logg))
				r.Get("/{stationId}/bookings", controllers.StationBookingList(d.Bookings, logg))
				r.With(replay).Post("/{stationId}/chargers", controllers.OperatorChargerAdd(d.Stations, logg))
				r.Put("/{stationId}/chargers/{chargerId}", controllers.OperatorChargerUpdate(d.Stations, logg))
				r.Delete("/{stationId}/chargers/{chargerId}", controllers.OperatorChargerRemove(d.Stations, logg))
				r.Post("/{stationId}/chargers/{chargerId}/status", controllers.OperatorChargerStatus(d.Stations, d.Guard, logg))
			})
			r.Get("/places", controllers.OperatorPlaceSuggest(d.Places, logg))
			r.With(paymentReplay).Post("/bookings/{bookingId}/cancel", controllers.BookingTransition(d.Bookings, enums.BookingEventCancel, logg))
		})
	})

	return r
}
