package store

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Connection pool settings
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration

	// CallTimeout is the per-call deadline applied to every store operation.
	CallTimeout time.Duration
}

// LoadConfigFromEnv loads store configuration from environment variables
// with validation and production-ready defaults.
func LoadConfigFromEnv() (Config, error) {
	db, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	poolSize, _ := strconv.Atoi(getEnvOrDefault("REDIS_POOL_SIZE", "25"))
	minIdle, _ := strconv.Atoi(getEnvOrDefault("REDIS_MIN_IDLE_CONNS", "2"))

	poolTimeout, err := time.ParseDuration(getEnvOrDefault("REDIS_POOL_TIMEOUT", "4s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REDIS_POOL_TIMEOUT: %w", err)
	}
	callTimeout, err := time.ParseDuration(getEnvOrDefault("REDIS_CALL_TIMEOUT", "3s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REDIS_CALL_TIMEOUT: %w", err)
	}

	cfg := Config{
		Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: minIdle,
		PoolTimeout:  poolTimeout,
		CallTimeout:  callTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("REDIS_POOL_SIZE must be at least 1")
	}
	if c.MinIdleConns > c.PoolSize {
		return fmt.Errorf("REDIS_MIN_IDLE_CONNS (%d) cannot exceed REDIS_POOL_SIZE (%d)",
			c.MinIdleConns, c.PoolSize)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("REDIS_CALL_TIMEOUT must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
