// Package config provides explicit configuration for the sync pipeline,
// constructed once at process start and passed into every component.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultBaseURL         = "https://api.open.fec.gov/v1"
	DefaultRequestInterval = time.Second
	DefaultInsertChunkSize = 500
	DefaultUpsertChunkSize = 200
	DefaultMinWorkers      = 2
	DefaultMaxWorkers      = 8
	DefaultCycle           = 2024
	DefaultOffice          = "P"
)

// DatabaseConfig holds Postgres connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN renders the connection parameters as a Postgres key/value DSN.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// Config holds all configuration for a sync run.
type Config struct {
	// APIKey authenticates every FEC API request. Required.
	APIKey string

	// BaseURL is the FEC API root.
	BaseURL string

	// RequestInterval is the minimum pause between upstream requests.
	RequestInterval time.Duration

	// Database holds the relational store connection parameters.
	Database DatabaseConfig

	// RedisAddr enables the response page cache when non-empty.
	RedisAddr string

	// InsertChunkSize bounds insert-only statement batches (contributions).
	InsertChunkSize int

	// UpsertChunkSize bounds insert-or-update statement batches.
	UpsertChunkSize int

	// MinWorkers and MaxWorkers bound the fan-out worker pool.
	MinWorkers int
	MaxWorkers int

	// Cycle is the two-year election cycle to sync.
	Cycle int

	// Office filters candidates (e.g. "P" for presidential).
	Office string

	// LogLevel and LogPretty configure logging output.
	LogLevel  string
	LogPretty bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in when present, matching how the deployment supplies
// credentials.
func Load() (*Config, error) {
	// Ignore a missing .env; real environment variables still apply.
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:          os.Getenv("FEC_API_KEY"),
		BaseURL:         getEnv("FEC_BASE_URL", DefaultBaseURL),
		RequestInterval: getEnvDuration("FEC_REQUEST_INTERVAL", DefaultRequestInterval),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			Name:     os.Getenv("DB_NAME"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		InsertChunkSize: getEnvInt("INSERT_CHUNK_SIZE", DefaultInsertChunkSize),
		UpsertChunkSize: getEnvInt("UPSERT_CHUNK_SIZE", DefaultUpsertChunkSize),
		MinWorkers:      getEnvInt("MIN_WORKERS", DefaultMinWorkers),
		MaxWorkers:      getEnvInt("MAX_WORKERS", DefaultMaxWorkers),
		Cycle:           getEnvInt("FEC_CYCLE", DefaultCycle),
		Office:          getEnv("FEC_OFFICE", DefaultOffice),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvBool("LOG_PRETTY", false),
	}

	return cfg, nil
}

// Validate checks the configuration before any network or store access.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("FEC_API_KEY is not set")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is not set")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is not set")
	}
	if c.InsertChunkSize <= 0 {
		return fmt.Errorf("insert chunk size must be positive (got %d)", c.InsertChunkSize)
	}
	if c.UpsertChunkSize <= 0 {
		return fmt.Errorf("upsert chunk size must be positive (got %d)", c.UpsertChunkSize)
	}
	if c.MinWorkers < 1 || c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("worker bounds invalid (min=%d max=%d)", c.MinWorkers, c.MaxWorkers)
	}
	if c.RequestInterval <= 0 {
		return fmt.Errorf("request interval must be positive (got %s)", c.RequestInterval)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
