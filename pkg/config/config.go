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
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	FeatureFlags  FeatureFlagsConfig
	Stripe        StripeConfig
	Dedup         DedupConfig
	PendingAuth   PendingAuthConfig
	Provisioner   ProvisionerConfig
	Storage       StorageConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Notifications NotificationsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Dedup.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PHOENIX_APP_ENV" required:"true"`
	Port         string `envconfig:"PHOENIX_APP_PORT" required:"true"`
	ServiceName  string `envconfig:"PHOENIX_SERVICE_NAME" default:"phoenix-api"`
	LogLevel     string `envconfig:"PHOENIX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PHOENIX_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"PHOENIX_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PHOENIX_DB_DSN"`
	Driver string `envconfig:"PHOENIX_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PHOENIX_DB_HOST"`
	LegacyPort     int    `envconfig:"PHOENIX_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PHOENIX_DB_USER"`
	LegacyPassword string `envconfig:"PHOENIX_DB_PASSWORD"`
	LegacyName     string `envconfig:"PHOENIX_DB_NAME"`
	LegacySSLMode  string `envconfig:"PHOENIX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PHOENIX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PHOENIX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PHOENIX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PHOENIX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PHOENIX_REDIS_URL"`
	Address      string        `envconfig:"PHOENIX_REDIS_ADDR"`
	Password     string        `envconfig:"PHOENIX_REDIS_PASSWORD"`
	DB           int           `envconfig:"PHOENIX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PHOENIX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PHOENIX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PHOENIX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PHOENIX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PHOENIX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret                 string `envconfig:"PHOENIX_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"PHOENIX_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"PHOENIX_JWT_EXPIRATION_MINUTES" default:"15"`
	RefreshTokenTTLMinutes int    `envconfig:"PHOENIX_REFRESH_TOKEN_TTL_MINUTES" default:"10080"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"PHOENIX_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PHOENIX_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PHOENIX_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PHOENIX_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PHOENIX_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PHOENIX_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"PHOENIX_STRIPE_API_KEY"`
	Secret     string `envconfig:"PHOENIX_STRIPE_WEBHOOK_SECRET"`
	Env        string `envconfig:"PHOENIX_STRIPE_ENV" default:"test"`
	SuccessURL string `envconfig:"PHOENIX_STRIPE_SUCCESS_URL"`
	CancelURL  string `envconfig:"PHOENIX_STRIPE_CANCEL_URL"`
	Currency   string `envconfig:"PHOENIX_STRIPE_CURRENCY" default:"eur"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type DedupConfig struct {
	Backend       string        `envconfig:"PHOENIX_DEDUP_BACKEND" default:"memory"`
	TTL           time.Duration `envconfig:"PHOENIX_DEDUP_TTL" default:"24h"`
	MaxEntries    int           `envconfig:"PHOENIX_DEDUP_MAX_ENTRIES" default:"10000"`
	SweepInterval time.Duration `envconfig:"PHOENIX_DEDUP_SWEEP_INTERVAL" default:"1h"`
}

func (d DedupConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(d.Backend)) {
	case DedupBackendMemory, DedupBackendRedis:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvDedupBackend, DedupBackendMemory, DedupBackendRedis)
	}
	if d.TTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvDedupTTL)
	}
	return nil
}

// UsesRedis reports whether processed event ids are shared through Redis.
func (d DedupConfig) UsesRedis() bool {
	return strings.EqualFold(strings.TrimSpace(d.Backend), DedupBackendRedis)
}

type PendingAuthConfig struct {
	Validity      time.Duration `envconfig:"PHOENIX_PENDING_AUTH_VALIDITY" default:"10m"`
	ReadGrace     time.Duration `envconfig:"PHOENIX_PENDING_AUTH_READ_GRACE" default:"2m"`
	SweepInterval time.Duration `envconfig:"PHOENIX_PENDING_AUTH_SWEEP_INTERVAL" default:"1m"`
}

type ProvisionerConfig struct {
	BaseURL        string        `envconfig:"PHOENIX_PROJECT_SERVICE_URL"`
	InternalSecret string        `envconfig:"PHOENIX_INTERNAL_SERVICE_SECRET"`
	Timeout        time.Duration `envconfig:"PHOENIX_PROJECT_SERVICE_TIMEOUT" default:"30s"`
}

type StorageConfig struct {
	BaseAllotmentBytes int64 `envconfig:"PHOENIX_STORAGE_BASE_BYTES" default:"5368709120"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"PHOENIX_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"PHOENIX_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"PHOENIX_PUBSUB_NOTIFICATION_TOPIC"`
}

type NotificationsConfig struct {
	StaffRoles []string `envconfig:"PHOENIX_NOTIFICATIONS_STAFF_ROLES" default:"admin,super_admin"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
