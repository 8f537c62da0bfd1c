// Package config loads and validates the license server configuration.
// Values come from environment variables with the MCR prefix, with an
// optional YAML file providing defaults for anything not set in the
// environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Storage StorageConfig `yaml:"storage" envconfig:"STORAGE"`
	Admin   AdminConfig   `yaml:"admin" envconfig:"ADMIN"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"3000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" default:"25"`
}

// StorageConfig selects and configures the durable backend.
type StorageConfig struct {
	// Driver is "sqlite" or "memory". The memory driver loses all state on
	// restart and exists for tests and throwaway deployments.
	Driver string `yaml:"driver" envconfig:"DRIVER" default:"sqlite"`
	Path   string `yaml:"path" envconfig:"PATH" default:"data/licenses.db"`
}

// AdminConfig guards the issuance and revocation endpoints.
type AdminConfig struct {
	// Token is compared in constant time against the X-Admin-Token header.
	// An empty token disables the admin surface entirely.
	Token string `yaml:"token" envconfig:"TOKEN"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	Path   string `yaml:"path" envconfig:"PATH" default:"logs/keyserve.log"`
}

// LicenseConfig tunes issuance behavior.
type LicenseConfig struct {
	// TokenPrefix is prepended to every generated key.
	TokenPrefix string `yaml:"token_prefix" envconfig:"TOKEN_PREFIX" default:"MCR"`
	// MaxBatchSize caps a single issuance request.
	MaxBatchSize int `yaml:"max_batch_size" envconfig:"MAX_BATCH_SIZE" default:"1000"`
	// MaxGrantDays caps the grant window of a single key. Zero-day keys are
	// always allowed and mean a perpetual grant.
	MaxGrantDays int `yaml:"max_grant_days" envconfig:"MAX_GRANT_DAYS" default:"3650"`
}

// Load loads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file values.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("MCR_CONFIG_FILE"))
}

// LoadFrom loads configuration using the given YAML file path. An empty
// path skips the file layer.
func LoadFrom(configFile string) (*Config, error) {
	var cfg Config

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("MCR", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}

	if c.License.MaxBatchSize < 1 {
		return fmt.Errorf("max batch size must be positive")
	}
	if c.License.MaxGrantDays < 0 {
		return fmt.Errorf("max grant days must not be negative")
	}
	if c.License.TokenPrefix == "" {
		return fmt.Errorf("token prefix must not be empty")
	}

	return nil
}
