package config

// EnvPrefix is handed to envconfig; every field carries an explicit key so the prefix only
// matters for untagged fields.
const EnvPrefix = "PHOENIX"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DedupBackendMemory = "memory"
	DedupBackendRedis  = "redis"
)

const (
	EnvAppEnv             = "PHOENIX_APP_ENV"
	EnvPort               = "PHOENIX_APP_PORT"
	EnvDBDSN              = "PHOENIX_DB_DSN"
	EnvDBHost             = "PHOENIX_DB_HOST"
	EnvDBUser             = "PHOENIX_DB_USER"
	EnvDBName             = "PHOENIX_DB_NAME"
	EnvRedisURL           = "PHOENIX_REDIS_URL"
	EnvJWTSecret          = "PHOENIX_JWT_SECRET"
	EnvJWTIssuer          = "PHOENIX_JWT_ISSUER"
	EnvJWTExpMins         = "PHOENIX_JWT_EXPIRATION_MINUTES"
	EnvStripeSecret       = "PHOENIX_STRIPE_WEBHOOK_SECRET"
	EnvDedupBackend       = "PHOENIX_DEDUP_BACKEND"
	EnvDedupTTL           = "PHOENIX_DEDUP_TTL"
	EnvDedupMaxEntries    = "PHOENIX_DEDUP_MAX_ENTRIES"
	EnvStorageBaseBytes   = "PHOENIX_STORAGE_BASE_BYTES"
	EnvNotificationsStaff = "PHOENIX_NOTIFICATIONS_STAFF_ROLES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
