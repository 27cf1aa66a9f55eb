package config

import (
	"fmt"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"net/url"
	"sync"
	"time"
)

var cfg *Config
var loadErr error
var once sync.Once

// Config is the configuration for the application
type Config struct {
	Server
	PostgreSQL
	Store
	Process
	Sync
	Stripe
	QBO
	Settings
	Progress
	Log
}

// Server is the configuration for the server
type Server struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port string `envconfig:"PORT" default:"8080"`
}

// Addr returns the address for the server
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// PostgreSQL is the configuration for the database
type PostgreSQL struct {
	Driver          string `envconfig:"DB_DRIVER" default:"postgres"`
	Host            string `envconfig:"DB_HOST" default:"localhost"`
	Port            string `envconfig:"DB_PORT" default:"5432"`
	Database        string `envconfig:"DB_DATABASE" default:"stripe2qbo"`
	Username        string `envconfig:"DB_USERNAME" default:"stripe2qbo"`
	Password        string `envconfig:"DB_PASSWORD" default:"stripe2qbo"`
	SSLMode         string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConnAttempts int    `envconfig:"DB_MAX_CONN_ATTEMPTS" default:"5"`
}

// DSN returns the DSN for the database
func (c PostgreSQL) DSN() string {
	return fmt.Sprintf("%s://%s:%s@%s:%s/%s?sslmode=%s",
		c.Driver,
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

// MigrateURL returns the DSN in the form the pgx/v5 migrate driver registers.
func (c PostgreSQL) MigrateURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Store struct {
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
}

type Process struct {
	Interval time.Duration `envconfig:"PROCESS_INTERVAL" default:"1m"`
}

type Sync struct {
	Workers        int           `envconfig:"SYNC_WORKERS" default:"4"`
	MaxAttempts    int           `envconfig:"SYNC_MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"SYNC_INITIAL_BACKOFF" default:"500ms"`
	MaxBackoff     time.Duration `envconfig:"SYNC_MAX_BACKOFF" default:"10s"`
	LeaseTimeout   time.Duration `envconfig:"SYNC_LEASE_TIMEOUT" default:"10m"`
}

const (
	SourceDriverStripe = "stripe"
	TargetDriverQBO    = "qbo"
	DriverMemory       = "memory"
)

type Stripe struct {
	SourceDriver    string `envconfig:"SOURCE_DRIVER" default:"stripe"`
	StripeAPIKey    string `envconfig:"STRIPE_API_KEY"`
	StripeAccountID string `envconfig:"STRIPE_ACCOUNT_ID"`
}

type QBO struct {
	TargetDriver      string        `envconfig:"TARGET_DRIVER" default:"qbo"`
	BaseURL           string        `envconfig:"QBO_BASE_URL" default:"https://quickbooks.api.intuit.com/v3/company"`
	RealmID           string        `envconfig:"QBO_REALM_ID"`
	ClientID          string        `envconfig:"QBO_CLIENT_ID"`
	ClientSecret      string        `envconfig:"QBO_CLIENT_SECRET"`
	RefreshToken      string        `envconfig:"QBO_REFRESH_TOKEN"`
	TokenURL          string        `envconfig:"QBO_TOKEN_URL" default:"https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"`
	MinorVersion      string        `envconfig:"QBO_MINOR_VERSION" default:"75"`
	CallTimeout       time.Duration `envconfig:"QBO_CALL_TIMEOUT" default:"15s"`
	RequestsPerSecond float64       `envconfig:"QBO_REQUESTS_PER_SECOND" default:"8"`
	Burst             int           `envconfig:"QBO_BURST" default:"4"`
}

type Settings struct {
	CacheTTL time.Duration `envconfig:"SETTINGS_CACHE_TTL" default:"30s"`
}

type Progress struct {
	RedisURL string `envconfig:"PROGRESS_REDIS_URL"`
	Channel  string `envconfig:"PROGRESS_CHANNEL" default:"stripe2qbo:progress"`
	Buffer   int    `envconfig:"PROGRESS_BUFFER" default:"64"`
}

type Log struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE"`
}

// Load loads the configuration from an optional .env file and environment variables
func Load() (*Config, error) {
	once.Do(func() {
		cfg, loadErr = load()
	})
	return cfg, loadErr
}

func load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("envconfig.Process: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.SourceDriver {
	case SourceDriverStripe, DriverMemory:
	default:
		return fmt.Errorf("unknown SOURCE_DRIVER %q", c.SourceDriver)
	}
	switch c.TargetDriver {
	case TargetDriverQBO, DriverMemory:
	default:
		return fmt.Errorf("unknown TARGET_DRIVER %q", c.TargetDriver)
	}
	if c.Workers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be positive, got %d", c.Workers)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be positive, got %d", c.MaxAttempts)
	}
	return nil
}
