// Package config loads the storage engine's runtime tunables from the
// environment, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every knob the storage and recovery layers need at
// startup. Fields are bound from environment variables prefixed
// STOREMY_, e.g. STOREMY_BUFFER_POOL_SIZE.
type Config struct {
	DataDir string `envconfig:"DATA_DIR" default:"./data"`

	BufferPoolSize int `envconfig:"BUFFER_POOL_SIZE" default:"64"`

	LogBufferSize int           `envconfig:"LOG_BUFFER_SIZE" default:"65536"`
	LogFlushEvery time.Duration `envconfig:"LOG_FLUSH_EVERY" default:"40ms"`
	EnableLogging bool          `envconfig:"ENABLE_LOGGING" default:"true"`

	HashIndexInitialBuckets int `envconfig:"HASH_INDEX_INITIAL_BUCKETS" default:"256"`
}

// Load reads a .env file if present (missing is not an error) and then
// binds environment variables onto a Config, applying defaults for
// anything unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("storemy", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}
	return &cfg, nil
}
