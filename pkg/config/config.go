package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Pricing      PricingConfig
	Storefront   StorefrontConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PETPRICE_APP_ENV" required:"true"`
	Port         string `envconfig:"PETPRICE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PETPRICE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PETPRICE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PETPRICE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"PETPRICE_DB_DSN"`

	Host     string `envconfig:"PETPRICE_DB_HOST"`
	Port     int    `envconfig:"PETPRICE_DB_PORT" default:"5432"`
	User     string `envconfig:"PETPRICE_DB_USER"`
	Password string `envconfig:"PETPRICE_DB_PASSWORD"`
	Name     string `envconfig:"PETPRICE_DB_NAME"`
	SSLMode  string `envconfig:"PETPRICE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PETPRICE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PETPRICE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PETPRICE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PETPRICE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"PETPRICE_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
	TxMaxAttempts      int           `envconfig:"PETPRICE_DB_TX_MAX_ATTEMPTS" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PETPRICE_REDIS_URL"`
	Address      string        `envconfig:"PETPRICE_REDIS_ADDR"`
	Password     string        `envconfig:"PETPRICE_REDIS_PASSWORD"`
	DB           int           `envconfig:"PETPRICE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PETPRICE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PETPRICE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PETPRICE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PETPRICE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PETPRICE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string        `envconfig:"PETPRICE_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"PETPRICE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"PETPRICE_JWT_EXPIRATION_MINUTES" default:"60"`
	Leeway            time.Duration `envconfig:"PETPRICE_JWT_LEEWAY" default:"30s"`
}

// TTL returns the configured access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PETPRICE_AUTO_MIGRATE" default:"false"`
	Metrics     bool `envconfig:"PETPRICE_METRICS_ENABLED" default:"true"`
}

// PricingConfig holds the engine-wide monetary defaults.
type PricingConfig struct {
	StandardVATRate decimal.Decimal `envconfig:"PETPRICE_STANDARD_VAT_RATE" default:"21"`
	Currency        string          `envconfig:"PETPRICE_CURRENCY" default:"USD"`
	MinorUnits      int32           `envconfig:"PETPRICE_CURRENCY_MINOR_UNITS" default:"2"`
}

func (p PricingConfig) validate() error {
	if p.StandardVATRate.IsNegative() || p.StandardVATRate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", EnvStandardVATRate)
	}
	if p.MinorUnits < 0 || p.MinorUnits > 6 {
		return fmt.Errorf("%s must be between 0 and 6", EnvCurrencyMinorUnits)
	}
	return nil
}

type StorefrontConfig struct {
	RateLimitWindow time.Duration `envconfig:"PETPRICE_STOREFRONT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimit       int           `envconfig:"PETPRICE_STOREFRONT_RATE_LIMIT" default:"120"`
	IdempotencyTTL  time.Duration `envconfig:"PETPRICE_STOREFRONT_IDEMPOTENCY_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PETPRICE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	PricingTopic    string `envconfig:"PETPRICE_PUBSUB_PRICING_TOPIC" default:"pricing-events"`
	PromotionsTopic string `envconfig:"PETPRICE_PUBSUB_PROMOTIONS_TOPIC" default:"promotion-events"`
	Ordered         bool   `envconfig:"PETPRICE_PUBSUB_ORDERED" default:"true"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"PETPRICE_KAFKA_BROKERS"`
	ClientID     string        `envconfig:"PETPRICE_KAFKA_CLIENT_ID" default:"petcare-pricing"`
	WriteTimeout time.Duration `envconfig:"PETPRICE_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	Sink           string `envconfig:"PETPRICE_OUTBOX_SINK" default:"pubsub"`
	BatchSize      int    `envconfig:"PETPRICE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"PETPRICE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"PETPRICE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (o OutboxConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(o.Sink)) {
	case OutboxSinkPubSub, OutboxSinkKafka:
		return nil
	}
	return fmt.Errorf("%s must be %q or %q", EnvOutboxSink, OutboxSinkPubSub, OutboxSinkKafka)
}

// SinkName returns the normalized sink identifier.
func (o OutboxConfig) SinkName() string {
	return strings.ToLower(strings.TrimSpace(o.Sink))
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
