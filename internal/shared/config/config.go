package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is populated from the environment. Section prefixes come from the
// outer struct tags, so Database.Port is read from DB_PORT.
type Config struct {
	Env       string          `envconfig:"APP_ENV" default:"development"`
	Server    ServerConfig    `envconfig:"SERVER"`
	Database  DatabaseConfig  `envconfig:"DB"`
	JWT       JWTConfig       `envconfig:"JWT"`
	Encrypt   EncryptConfig   `envconfig:"ENCRYPTION"`
	Flinks    FlinksConfig    `envconfig:"FLINKS"`
	Sync      SyncConfig      `envconfig:"SYNC"`
	Scheduler SchedulerConfig `envconfig:"SCHEDULER"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	RateLimit RateLimitConfig `envconfig:"RATE_LIMIT"`
	CORS      CORSConfig      `envconfig:"CORS"`
	TLS       TLSConfig       `envconfig:"TLS"`
	Firebase  FirebaseConfig  `envconfig:"FIREBASE"`
	Telemetry TelemetryConfig `envconfig:"OTEL"`
	Log       LogConfig       `envconfig:"LOG"`
}

type ServerConfig struct {
	Host         string        `default:"0.0.0.0"`
	Port         string        `default:"8080"`
	AllowedHosts []string      `split_words:"true"`
	ReadTimeout  time.Duration `split_words:"true" default:"15s"`
	// A sync may poll the provider for several minutes before answering.
	WriteTimeout time.Duration `split_words:"true" default:"4m"`
	IdleTimeout  time.Duration `split_words:"true" default:"60s"`
}

type DatabaseConfig struct {
	Host     string `default:"localhost"`
	Port     int    `default:"5432"`
	User     string `default:"postgres"`
	Password string
	Name     string `default:"clawfinance"`
	SSLMode  string `split_words:"true" default:"disable"`
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration `default:"24h"`
}

type EncryptConfig struct {
	Key string
}

type FlinksConfig struct {
	CustomerID string        `split_words:"true"`
	Instance   string        `default:"sandbox"`
	Timeout    time.Duration `default:"60s"`
}

type SyncConfig struct {
	PollInterval time.Duration `split_words:"true" default:"10s"`
	MaxPolls     int           `split_words:"true" default:"18"`
}

type SchedulerConfig struct {
	Enabled      bool          `default:"false"`
	Times        []string      `default:"03:00,15:00"`
	Workers      int           `default:"5"`
	JobDelay     time.Duration `split_words:"true" default:"1s"`
	JobTimeout   time.Duration `split_words:"true" default:"5m"`
	QueueSize    int           `split_words:"true" default:"100"`
	RunOnStartup bool          `split_words:"true" default:"false"`
}

// RedisConfig enables the shared sync lock and rate-limit store when URL is set.
type RedisConfig struct {
	URL       string
	KeyPrefix string        `split_words:"true" default:"clawfinance:"`
	LockTTL   time.Duration `split_words:"true" default:"10m"`
}

type RateLimitConfig struct {
	AuthMax    int           `split_words:"true" default:"10"`
	DefaultMax int           `split_words:"true" default:"200"`
	Window     time.Duration `default:"1m"`
}

type CORSConfig struct {
	AllowedOrigins []string `split_words:"true" default:"http://localhost:3000"`
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string `split_words:"true"`
	KeyPath      string `split_words:"true"`
	RedirectHTTP bool   `split_words:"true" default:"true"`
}

type FirebaseConfig struct {
	CredentialsFile string `split_words:"true"`
	// JSON file overriding the built-in notification texts.
	MessagesFile string `split_words:"true"`
}

type TelemetryConfig struct {
	Enabled          bool   `default:"false"`
	ServiceName      string `split_words:"true" default:"clawfinance-api"`
	ExporterEndpoint string `split_words:"true" default:"localhost:4317"`
	MetricsPort      string `split_words:"true" default:"9090"`
}

type LogConfig struct {
	Level  string `default:"info"`
	Format string `default:"text"`
}

// Load reads an optional .env file, then the process environment, and
// validates the result.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Encrypt.Key == "" {
		return errors.New("ENCRYPTION_KEY is required")
	}
	if len(c.Encrypt.Key) != 32 {
		return errors.New("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if c.Flinks.CustomerID == "" {
		return errors.New("FLINKS_CUSTOMER_ID is required")
	}
	if c.Sync.PollInterval <= 0 {
		return errors.New("SYNC_POLL_INTERVAL must be positive")
	}
	if c.Sync.MaxPolls < 1 {
		return errors.New("SYNC_MAX_POLLS must be at least 1")
	}
	for _, t := range c.Scheduler.Times {
		if _, err := time.Parse("15:04", strings.TrimSpace(t)); err != nil {
			return fmt.Errorf("invalid SCHEDULER_TIMES entry %q: expected HH:MM", t)
		}
	}

	if c.TLS.Enabled {
		if c.TLS.CertPath == "" {
			return errors.New("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if c.TLS.KeyPath == "" {
			return errors.New("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// BaseURL returns the provider API root for the configured instance.
func (c *FlinksConfig) BaseURL() string {
	if c.Instance == "" || c.Instance == "sandbox" {
		return "https://sandbox.flinks.com"
	}
	return fmt.Sprintf("https://%s-api.private.fin.ag", c.Instance)
}
