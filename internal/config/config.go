package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CULTIVATION_DB_HOST.
const EnvPrefix = "CULTIVATION_"

// Config holds all configuration of the progression core.
type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	// Database
	Database DatabaseConfig `yaml:"database" envPrefix:"DB_"`

	// Transaction retries
	Store StoreConfig `yaml:"store" envPrefix:"STORE_"`

	// Ladder gates, rollback window, starting stats
	Progression ProgressionConfig `yaml:"progression" envPrefix:"PROGRESSION_"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	// URL overrides the individual fields when set.
	URL      string `yaml:"url" env:"URL"`
	Host     string `yaml:"host" env:"HOST" validate:"required_without=URL"`
	Port     int    `yaml:"port" env:"PORT" validate:"gte=0,lte=65535"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	DBName   string `yaml:"dbname" env:"NAME" validate:"required_without=URL"`
	SSLMode  string `yaml:"sslmode" env:"SSLMODE" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns int32  `yaml:"max_conns" env:"MAX_CONNS" validate:"gte=0"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// StoreConfig controls retries of transactions aborted by serialization
// failures or deadlocks.
type StoreConfig struct {
	MaxRetries      uint64        `yaml:"max_retries" env:"MAX_RETRIES" validate:"lte=20"`
	InitialInterval time.Duration `yaml:"initial_interval" env:"INITIAL_INTERVAL" validate:"gt=0"`
	MaxInterval     time.Duration `yaml:"max_interval" env:"MAX_INTERVAL" validate:"gtefield=InitialInterval"`
}

// Default returns Config with sensible defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "cultivation",
			Password: "cultivation",
			DBName:   "cultivation",
			SSLMode:  "disable",
		},
		Store: StoreConfig{
			MaxRetries:      5,
			InitialInterval: 20 * time.Millisecond,
			MaxInterval:     500 * time.Millisecond,
		},
		Progression: DefaultProgression(),
	}
}

// Load loads config from a YAML file, then applies CULTIVATION_* environment
// overrides and validates the result. A missing file means defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and builds the gate set once to catch
// duplicate gates.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Progression.Policies(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
