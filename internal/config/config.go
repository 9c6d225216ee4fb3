package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	AccountSettingsSingleton = "singleton"
	AccountSettingsPerOwner  = "per_owner"
)

type Config struct {
	// Database
	DBDriver   string `env:"DB_DRIVER" envDefault:"postgres"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"formrelay"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	DBPath     string `env:"DB_PATH" envDefault:"data/formrelay.db"`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_EXPIRY" envDefault:"168h"`

	// Server
	Port          string `env:"PORT" envDefault:"8080"`
	CORSOrigins   string `env:"CORS_ORIGINS" envDefault:"*"`
	BodyLimit     int    `env:"BODY_LIMIT" envDefault:"4194304"`
	SuccessURL    string `env:"SUCCESS_URL" envDefault:"/e/success"`
	SubmitPerMin  int    `env:"SUBMIT_RATE_PER_MIN" envDefault:"30"`
	AdminEmails   string `env:"ADMIN_EMAILS"`
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	SentryDSN     string `env:"SENTRY_DSN"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogRetention  int    `env:"LOG_RETENTION_DAYS" envDefault:"30"`
	PersistErrors bool   `env:"LOG_PERSIST_ERRORS" envDefault:"true"`

	// Notifications
	AccountSettingsMode string        `env:"ACCOUNT_SETTINGS_MODE" envDefault:"singleton"`
	MailFromAddress     string        `env:"MAIL_FROM_ADDRESS" envDefault:"no-reply@localhost"`
	MailFromName        string        `env:"MAIL_FROM_NAME" envDefault:"Formrelay"`
	SMTPTimeout         time.Duration `env:"SMTP_TIMEOUT" envDefault:"15s"`
	WebhookTimeout      time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	WebhookAllowPrivate bool          `env:"WEBHOOK_ALLOW_PRIVATE" envDefault:"false"`

	// Queue worker
	WorkerEmbedded      bool          `env:"WORKER_EMBEDDED" envDefault:"false"`
	WorkerConsumer      string        `env:"WORKER_CONSUMER" envDefault:"notifications"`
	WorkerPollInterval  time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"2s"`
	WorkerBatchSize     int           `env:"WORKER_BATCH_SIZE" envDefault:"10"`
	WorkerLeaseTTL      time.Duration `env:"WORKER_LEASE_TTL" envDefault:"2m"`
	WorkerMaxAttempts   int           `env:"WORKER_MAX_ATTEMPTS" envDefault:"8"`
	WorkerRetryBackoff  time.Duration `env:"WORKER_RETRY_BACKOFF" envDefault:"5s"`
	WorkerRetryMaxDelay time.Duration `env:"WORKER_RETRY_MAX_DELAY" envDefault:"5m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.AccountSettingsMode {
	case AccountSettingsSingleton, AccountSettingsPerOwner:
	default:
		return fmt.Errorf("unsupported ACCOUNT_SETTINGS_MODE %q", c.AccountSettingsMode)
	}
	return nil
}

func (c *Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.DBPath + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	}
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// AdminEmailList splits ADMIN_EMAILS on commas.
func (c *Config) AdminEmailList() []string {
	if c.AdminEmails == "" {
		return nil
	}
	parts := strings.Split(c.AdminEmails, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, strings.ToLower(trimmed))
		}
	}
	return result
}
