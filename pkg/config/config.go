package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GoogleMaps    GoogleMapsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Stripe        StripeConfig
	Payments      PaymentsConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	Guard         GuardConfig
	Booking       BookingPolicyConfig
	Search        SearchConfig
	Notifications NotificationsConfig
	LiveStatus    LiveStatusConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Booking.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EVCHARGE_APP_ENV" required:"true"`
	Port         string `envconfig:"EVCHARGE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EVCHARGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EVCHARGE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"EVCHARGE_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EVCHARGE_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics; empty disables it.
	MetricsAddr string `envconfig:"EVCHARGE_METRICS_ADDR"`
}

type DBConfig struct {
	DSN        string `envconfig:"EVCHARGE_DB_DSN"`
	Driver     string `envconfig:"EVCHARGE_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"EVCHARGE_SQLITE_PATH" default:"evcharge.db"`

	LegacyHost     string `envconfig:"EVCHARGE_DB_HOST"`
	LegacyPort     int    `envconfig:"EVCHARGE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EVCHARGE_DB_USER"`
	LegacyPassword string `envconfig:"EVCHARGE_DB_PASSWORD"`
	LegacyName     string `envconfig:"EVCHARGE_DB_NAME"`
	LegacySSLMode  string `envconfig:"EVCHARGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVCHARGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVCHARGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVCHARGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVCHARGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery is the duration above which statements are logged at warn.
	SlowQuery time.Duration `envconfig:"EVCHARGE_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EVCHARGE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVCHARGE_REDIS_ADDR"`
	Password     string        `envconfig:"EVCHARGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVCHARGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVCHARGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVCHARGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVCHARGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVCHARGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVCHARGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"EVCHARGE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"EVCHARGE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"EVCHARGE_JWT_EXPIRATION_MINUTES" required:"true"`
}

// RateLimitConfig bounds anonymous search traffic and booking creation per client.
type RateLimitConfig struct {
	SearchWindow        time.Duration `envconfig:"EVCHARGE_RATE_LIMIT_SEARCH_WINDOW" default:"1m"`
	SearchIPLimit       int           `envconfig:"EVCHARGE_RATE_LIMIT_SEARCH_IP_LIMIT" default:"120"`
	BookingWindow       time.Duration `envconfig:"EVCHARGE_RATE_LIMIT_BOOKING_WINDOW" default:"1m"`
	BookingUserLimit    int           `envconfig:"EVCHARGE_RATE_LIMIT_BOOKING_USER_LIMIT" default:"10"`
	BookingIPLimit      int           `envconfig:"EVCHARGE_RATE_LIMIT_BOOKING_IP_LIMIT" default:"30"`
	IdempotencyTTL      time.Duration `envconfig:"EVCHARGE_IDEMPOTENCY_TTL" default:"24h"`
	WebhookDedupeWindow time.Duration `envconfig:"EVCHARGE_WEBHOOK_DEDUPE_TTL" default:"720h"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"EVCHARGE_CORS_ALLOWED_ORIGINS" default:"*"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"EVCHARGE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"EVCHARGE_AUTO_MIGRATE" default:"false"`
	LiveStatus  bool `envconfig:"EVCHARGE_FEATURE_LIVE_STATUS" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"EVCHARGE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GoogleMapsConfig struct {
	APIKey string `envconfig:"EVCHARGE_GOOGLE_MAPS_API_KEY"`
	// Region biases place suggestions, as a CLDR region code.
	Region   string `envconfig:"EVCHARGE_GOOGLE_MAPS_REGION" default:"IN"`
	Language string `envconfig:"EVCHARGE_GOOGLE_MAPS_LANGUAGE" default:"en"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EVCHARGE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"EVCHARGE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EVCHARGE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"EVCHARGE_PUBSUB_NOTIFICATION_TOPIC" default:"ev-notification-events"`
	NotificationSubscription string `envconfig:"EVCHARGE_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
	BookingTopic             string `envconfig:"EVCHARGE_PUBSUB_BOOKING_TOPIC" default:"ev-booking-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"EVCHARGE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"EVCHARGE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"EVCHARGE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"EVCHARGE_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"EVCHARGE_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

type StripeConfig struct {
	APIKey string `envconfig:"EVCHARGE_STRIPE_API_KEY"`
	Secret string `envconfig:"EVCHARGE_STRIPE_SECRET"`
	Env    string `envconfig:"EVCHARGE_STRIPE_ENV" default:"test"`

	// WebhookTolerance bounds the age of a signed webhook timestamp.
	WebhookTolerance time.Duration `envconfig:"EVCHARGE_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PaymentsConfig struct {
	Provider string `envconfig:"EVCHARGE_PAYMENTS_PROVIDER" default:"sandbox"`
}

// UsesStripe reports whether charges are sent to Stripe instead of the sandbox gateway.
func (p PaymentsConfig) UsesStripe() bool {
	return strings.EqualFold(strings.TrimSpace(p.Provider), PaymentsProviderStripe)
}

type CronConfig struct {
	Interval time.Duration `envconfig:"EVCHARGE_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"EVCHARGE_CRON_LOCK_TTL" default:"5m"`
}

type GuardConfig struct {
	AcquireTimeout time.Duration `envconfig:"EVCHARGE_GUARD_ACQUIRE_TIMEOUT" default:"2s"`
	CASRetries     int           `envconfig:"EVCHARGE_GUARD_CAS_RETRIES" default:"5"`
}

// BookingPolicyConfig holds the refund, grace, and tolerance knobs of the booking lifecycle.
type BookingPolicyConfig struct {
	FullRefundLeadTime      time.Duration `envconfig:"EVCHARGE_BOOKING_FULL_REFUND_LEAD_TIME" default:"1h"`
	LateCancelRefundPercent int           `envconfig:"EVCHARGE_BOOKING_LATE_CANCEL_REFUND_PERCENT" default:"50"`
	NoRefundAfterOccupied   time.Duration `envconfig:"EVCHARGE_BOOKING_NO_REFUND_AFTER_OCCUPIED" default:"45m"`
	NoShowGrace             time.Duration `envconfig:"EVCHARGE_BOOKING_NO_SHOW_GRACE" default:"15m"`
	NoShowPenaltyPercent    int           `envconfig:"EVCHARGE_BOOKING_NO_SHOW_PENALTY_PERCENT" default:"100"`
	ImmediateStartGrace     time.Duration `envconfig:"EVCHARGE_BOOKING_IMMEDIATE_START_GRACE" default:"15m"`
	EarlyStartTolerance     time.Duration `envconfig:"EVCHARGE_BOOKING_EARLY_START_TOLERANCE" default:"10m"`
	MinWindow               time.Duration `envconfig:"EVCHARGE_BOOKING_MIN_WINDOW" default:"15m"`
	MaxWindow               time.Duration `envconfig:"EVCHARGE_BOOKING_MAX_WINDOW" default:"8h"`
	MaxAdvance              time.Duration `envconfig:"EVCHARGE_BOOKING_MAX_ADVANCE" default:"720h"`
	EstimateMinutes         int           `envconfig:"EVCHARGE_BOOKING_IMMEDIATE_ESTIMATE_MINUTES" default:"60"`
	SweepBatchSize          int           `envconfig:"EVCHARGE_BOOKING_SWEEP_BATCH_SIZE" default:"100"`
}

func (b BookingPolicyConfig) validate() error {
	if b.LateCancelRefundPercent < 0 || b.LateCancelRefundPercent > 100 {
		return fmt.Errorf("%s must be between 0 and 100", EnvBookingLateCancelRefundPercent)
	}
	if b.NoShowPenaltyPercent < 0 || b.NoShowPenaltyPercent > 100 {
		return fmt.Errorf("%s must be between 0 and 100", EnvBookingNoShowPenaltyPercent)
	}
	if b.MinWindow <= 0 || b.MaxWindow < b.MinWindow {
		return fmt.Errorf("booking window bounds are invalid: min=%s max=%s", b.MinWindow, b.MaxWindow)
	}
	if b.ImmediateStartGrace <= 0 || b.ImmediateStartGrace >= b.NoRefundAfterOccupied {
		return fmt.Errorf("%s must be positive and shorter than %s", EnvBookingImmediateStartGrace, EnvBookingNoRefundAfterOccupied)
	}
	return nil
}

type SearchConfig struct {
	FallbackEnabled bool          `envconfig:"EVCHARGE_SEARCH_FALLBACK_ENABLED" default:"true"`
	LiveTimeout     time.Duration `envconfig:"EVCHARGE_SEARCH_LIVE_TIMEOUT" default:"3s"`
	GridCellDegrees float64       `envconfig:"EVCHARGE_GEOINDEX_CELL_DEGREES" default:"0.1"`
}

// LiveStatusConfig tunes the charger status websocket feed.
type LiveStatusConfig struct {
	WriteTimeout time.Duration `envconfig:"EVCHARGE_LIVE_STATUS_WRITE_TIMEOUT" default:"10s"`
	PingInterval time.Duration `envconfig:"EVCHARGE_LIVE_STATUS_PING_INTERVAL" default:"30s"`
	SendBuffer   int           `envconfig:"EVCHARGE_LIVE_STATUS_SEND_BUFFER" default:"16"`
}

type NotificationsConfig struct {
	Channels []string `envconfig:"EVCHARGE_NOTIFICATION_CHANNELS" default:"in_app,push"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
