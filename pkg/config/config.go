package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/marketloop/settlements-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Settlement   SettlementConfig
	Payout       PayoutConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Metrics      MetricsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct-tag validation plus the commission-schedule checks
// that tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if _, _, err := c.Settlement.Rates(); err != nil {
		return err
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"SETTLEMENTS_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"SETTLEMENTS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SETTLEMENTS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SETTLEMENTS_SERVICE_KIND" default:"settlement-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"SETTLEMENTS_DB_DSN"`
	Driver string `envconfig:"SETTLEMENTS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SETTLEMENTS_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLEMENTS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLEMENTS_DB_USER"`
	LegacyPassword string `envconfig:"SETTLEMENTS_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLEMENTS_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLEMENTS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SETTLEMENTS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLEMENTS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLEMENTS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLEMENTS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLEMENTS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SETTLEMENTS_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLEMENTS_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLEMENTS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLEMENTS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLEMENTS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLEMENTS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLEMENTS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLEMENTS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SettlementConfig carries the commission schedule and clearing windows.
// Rates are decimal strings so nothing is lost to float parsing.
type SettlementConfig struct {
	Currency        string `envconfig:"SETTLEMENTS_CURRENCY" default:"USD" validate:"required"`
	PlatformFeeRate string `envconfig:"SETTLEMENTS_PLATFORM_FEE_RATE" default:"0.10" validate:"required"`
	ReferrerRate    string `envconfig:"SETTLEMENTS_REFERRER_RATE" default:"0.10" validate:"required"`

	ClearingWindowNew      time.Duration `envconfig:"SETTLEMENTS_CLEARING_WINDOW_NEW" default:"168h"`
	ClearingWindowStandard time.Duration `envconfig:"SETTLEMENTS_CLEARING_WINDOW_STANDARD" default:"72h"`
	ClearingWindowTrusted  time.Duration `envconfig:"SETTLEMENTS_CLEARING_WINDOW_TRUSTED" default:"24h"`

	ClearingSweepInterval time.Duration `envconfig:"SETTLEMENTS_CLEARING_SWEEP_INTERVAL" default:"1h"`
	LeadTTL               time.Duration `envconfig:"SETTLEMENTS_LEAD_TTL" default:"720h"`
	LeadSweepInterval     time.Duration `envconfig:"SETTLEMENTS_LEAD_SWEEP_INTERVAL" default:"24h"`
	WalletSweepInterval   time.Duration `envconfig:"SETTLEMENTS_WALLET_SWEEP_INTERVAL" default:"6h"`
}

// Rates parses and bounds-checks the configured commission schedule.
func (s SettlementConfig) Rates() (platform, referrer decimal.Decimal, err error) {
	platform, err = decimal.NewFromString(s.PlatformFeeRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parsing platform fee rate %q: %w", s.PlatformFeeRate, err)
	}
	referrer, err = decimal.NewFromString(s.ReferrerRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parsing referrer rate %q: %w", s.ReferrerRate, err)
	}
	if platform.IsNegative() || referrer.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("commission rates must be non-negative")
	}
	if platform.Add(referrer).GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("commission rates sum above 1.0")
	}
	return platform, referrer, nil
}

// ClearingWindowFor maps a provider trust tier to its clearing window.
func (s SettlementConfig) ClearingWindowFor(tier enums.TrustTier) time.Duration {
	switch tier {
	case enums.TrustTierTrusted:
		return s.ClearingWindowTrusted
	case enums.TrustTierStandard:
		return s.ClearingWindowStandard
	default:
		return s.ClearingWindowNew
	}
}

type PayoutConfig struct {
	MinPayoutCents int64         `envconfig:"SETTLEMENTS_PAYOUT_MIN_CENTS" default:"2500" validate:"gt=0"`
	SweepInterval  time.Duration `envconfig:"SETTLEMENTS_PAYOUT_SWEEP_INTERVAL" default:"168h"`
	SendTimeout    time.Duration `envconfig:"SETTLEMENTS_PAYOUT_SEND_TIMEOUT" default:"30s"`
	MaxParallel    int           `envconfig:"SETTLEMENTS_PAYOUT_MAX_PARALLEL" default:"4" validate:"gt=0"`
	RailURL        string        `envconfig:"SETTLEMENTS_PAYOUT_RAIL_URL"`
	RailAPIKey     string        `envconfig:"SETTLEMENTS_PAYOUT_RAIL_API_KEY"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SETTLEMENTS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SETTLEMENTS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SETTLEMENTS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SETTLEMENTS_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SettlementTopic string `envconfig:"SETTLEMENTS_PUBSUB_SETTLEMENT_TOPIC" default:"settlement-events"`
}

type MetricsConfig struct {
	Port string `envconfig:"SETTLEMENTS_METRICS_PORT" default:"9102"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SETTLEMENTS_AUTO_MIGRATE" default:"false"`
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
