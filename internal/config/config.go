package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Development bool `env:"DEVELOPMENT" envDefault:"false"`
	// API configuration
	APIPort        int      `env:"API_PORT" envDefault:"6532"`
	MetricsPath    string   `env:"METRICS_PATH" envDefault:"/metrics"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	// Database configuration
	DBDriver   string   `env:"DB_DRIVER" envDefault:"postgres"`
	Postgres   Postgres `envPrefix:"POSTGRES_"`
	SQLitePath string   `env:"SQLITE_PATH" envDefault:"donum.db"`
	// Identity configuration
	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER"`
	// Guest sessions
	GuestTTL           time.Duration `env:"GUEST_TTL" envDefault:"2160h"`
	GuestCookieName    string        `env:"GUEST_COOKIE_NAME" envDefault:"donum_guest"`
	GuestPurgeInterval time.Duration `env:"GUEST_PURGE_INTERVAL" envDefault:"1h"`
	GuestPurgeAfter    time.Duration `env:"GUEST_PURGE_AFTER" envDefault:"720h"`
	// Realtime fanout
	SubscriberBuffer int `env:"SUBSCRIBER_BUFFER" envDefault:"16"`
	// Rate limiting of mutating routes, per client
	ReserveRateLimit float64 `env:"RESERVE_RATE_LIMIT" envDefault:"5"`
	ReserveRateBurst int     `env:"RESERVE_RATE_BURST" envDefault:"10"`
}

type Postgres struct {
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"password"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	DB       string `env:"DB" envDefault:"donum"`
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres:
		if c.Postgres.DB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.Postgres.Host == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DBDriver)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT must be a valid port, got %d", c.APIPort)
	}
	if c.GuestTTL <= 0 {
		return fmt.Errorf("GUEST_TTL must be positive")
	}
	if c.GuestPurgeInterval <= 0 {
		return fmt.Errorf("GUEST_PURGE_INTERVAL must be positive")
	}
	if c.ReserveRateLimit <= 0 || c.ReserveRateBurst <= 0 {
		return fmt.Errorf("RESERVE_RATE_LIMIT and RESERVE_RATE_BURST must be positive")
	}
	return nil
}
