package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	Square  SquareConfig
	Deposit DepositConfig
	Webhook WebhookConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARDHOLD_APP_ENV" required:"true"`
	Port         string `envconfig:"CARDHOLD_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CARDHOLD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARDHOLD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CARDHOLD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN         string `envconfig:"CARDHOLD_DB_DSN"`
	Driver      string `envconfig:"CARDHOLD_DB_DRIVER" default:"postgres"`
	AutoMigrate bool   `envconfig:"CARDHOLD_DB_AUTO_MIGRATE" default:"false"`

	Host     string `envconfig:"CARDHOLD_DB_HOST"`
	Port     int    `envconfig:"CARDHOLD_DB_PORT" default:"5432"`
	User     string `envconfig:"CARDHOLD_DB_USER"`
	Password string `envconfig:"CARDHOLD_DB_PASSWORD"`
	Name     string `envconfig:"CARDHOLD_DB_NAME"`
	SSLMode  string `envconfig:"CARDHOLD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARDHOLD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARDHOLD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARDHOLD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARDHOLD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// UseSQLite reports whether the SQLite driver was selected. It backs the
// repository factory used by local development and tests.
func (db DBConfig) UseSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"CARDHOLD_REDIS_URL" required:"true"`
	Password     string        `envconfig:"CARDHOLD_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARDHOLD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARDHOLD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARDHOLD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARDHOLD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARDHOLD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARDHOLD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"CARDHOLD_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"CARDHOLD_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"CARDHOLD_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// DepositConfig drives the deposit lifecycle scheduler.
type DepositConfig struct {
	ReauthorizeAfterDays int           `envconfig:"CARDHOLD_REAUTHORIZE_AFTER_DAYS" default:"5"`
	ReauthorizeInterval  time.Duration `envconfig:"CARDHOLD_REAUTHORIZE_INTERVAL" default:"1h"`
	ReauthorizeBatchSize int           `envconfig:"CARDHOLD_REAUTHORIZE_BATCH_SIZE" default:"100"`
}

// ReauthorizeAfter converts the day threshold into a duration.
func (d DepositConfig) ReauthorizeAfter() time.Duration {
	if d.ReauthorizeAfterDays <= 0 {
		return 0
	}
	return time.Duration(d.ReauthorizeAfterDays) * 24 * time.Hour
}

// WebhookConfig drives lifecycle event delivery and its retry policy.
type WebhookConfig struct {
	AlertURL         string `envconfig:"CARDHOLD_ALERT_WEBHOOK_URL"`
	AlertTimeoutMS   int    `envconfig:"CARDHOLD_ALERT_WEBHOOK_TIMEOUT_MS" default:"10000"`
	RetryIntervalMS  int    `envconfig:"CARDHOLD_WEBHOOK_RETRY_INTERVAL_MS" default:"60000"`
	RetryBatchSize   int    `envconfig:"CARDHOLD_WEBHOOK_RETRY_BATCH_SIZE" default:"50"`
	RetryMaxAttempts int    `envconfig:"CARDHOLD_WEBHOOK_RETRY_MAX_ATTEMPTS" default:"10"`
}

// AlertTimeout returns the bounded delivery timeout.
func (w WebhookConfig) AlertTimeout() time.Duration {
	if w.AlertTimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(w.AlertTimeoutMS) * time.Millisecond
}

// RetryBaseInterval returns the base interval of the exponential backoff.
func (w WebhookConfig) RetryBaseInterval() time.Duration {
	if w.RetryIntervalMS <= 0 {
		return time.Minute
	}
	return time.Duration(w.RetryIntervalMS) * time.Millisecond
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.UseSQLite() {
		db.DSN = SQLiteMemoryDSN
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
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
