package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Log     LogConfig
	Loyalty LoyaltyConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name     string `envconfig:"DB_NAME" default:"loyalty_db"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int    `envconfig:"DB_MIN_CONNS" default:"5"`

	// LockTimeoutMS bounds how long a transaction waits on an account row lock.
	LockTimeoutMS int `envconfig:"DB_LOCK_TIMEOUT_MS" default:"5000"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// LockTimeout returns the per-session lock_timeout.
func (c DBConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// LoyaltyConfig holds tuning for ledger writes and the expiration sweeper.
type LoyaltyConfig struct {
	MaxRetries     int `envconfig:"LOYALTY_MAX_RETRIES" default:"3"`
	RetryBackoffMS int `envconfig:"LOYALTY_RETRY_BACKOFF_MS" default:"20"`
	HistoryLimit   int `envconfig:"HISTORY_LIMIT" default:"20"`

	// SweepInterval of zero disables the background sweeper; expirations
	// can still be triggered over HTTP.
	SweepInterval      time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
	SweepBatchSize     int           `envconfig:"SWEEP_BATCH_SIZE" default:"500"`
	SweepRatePerSecond float64       `envconfig:"SWEEP_RATE_PER_SECOND" default:"200"`
}

// RetryBackoff returns the base delay between conflict retries.
func (c LoyaltyConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
