package config

const (
	EnvPrefix = "EVCHARGE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	PaymentsProviderStripe  = "stripe"
	PaymentsProviderSandbox = "sandbox"

	EnvAppEnv   = "EVCHARGE_APP_ENV"
	EnvPort     = "EVCHARGE_APP_PORT"
	EnvLogLevel = "EVCHARGE_LOG_LEVEL"

	EnvDBDSN  = "EVCHARGE_DB_DSN"
	EnvDBHost = "EVCHARGE_DB_HOST"
	EnvDBUser = "EVCHARGE_DB_USER"
	EnvDBName = "EVCHARGE_DB_NAME"

	EnvRedisURL = "EVCHARGE_REDIS_URL"

	EnvJWTSecret  = "EVCHARGE_JWT_SECRET"
	EnvJWTIssuer  = "EVCHARGE_JWT_ISSUER"
	EnvJWTExpMins = "EVCHARGE_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite = "EVCHARGE_USE_SQLITE"

	EnvGCPProjectID          = "EVCHARGE_GCP_PROJECT_ID"
	EnvPubSubNotificationTo  = "EVCHARGE_PUBSUB_NOTIFICATION_TOPIC"
	EnvPubSubNotificationSub = "EVCHARGE_PUBSUB_NOTIFICATION_SUBSCRIPTION"

	EnvPaymentsProvider = "EVCHARGE_PAYMENTS_PROVIDER"

	EnvBookingLateCancelRefundPercent = "EVCHARGE_BOOKING_LATE_CANCEL_REFUND_PERCENT"
	EnvBookingNoShowPenaltyPercent    = "EVCHARGE_BOOKING_NO_SHOW_PENALTY_PERCENT"
	EnvBookingNoShowGrace             = "EVCHARGE_BOOKING_NO_SHOW_GRACE"
	EnvBookingNoRefundAfterOccupied   = "EVCHARGE_BOOKING_NO_REFUND_AFTER_OCCUPIED"
	EnvBookingImmediateStartGrace     = "EVCHARGE_BOOKING_IMMEDIATE_START_GRACE"
	EnvGuardAcquireTimeout            = "EVCHARGE_GUARD_ACQUIRE_TIMEOUT"
	EnvNotificationChannels           = "EVCHARGE_NOTIFICATION_CHANNELS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
