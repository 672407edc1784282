// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/zapponejosh/panchaanga-api/internal/ephemeris"
)

// Config holds all application configuration.
// Fields are populated from environment variables.
type Config struct {
	// Server settings
	Port int    // HTTP port to listen on
	Env  string // development, staging, production

	// Database
	DatabasePath string // Path to SQLite file holding computed years

	// Calendar
	RulesDirs  []string // Festival rule directories, later ones extend earlier ones
	CitiesPath string   // Optional YAML city catalogue; empty uses the built-in one
	Ayanamsha  string   // chitra_at_180, tropical

	// Precompute job
	PrecomputeCron   string   // Standard cron expression; empty disables the job
	PrecomputeCities []string // City keys to keep computed

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Load reads configuration from environment variables.
// In development, it first loads from .env file if present.
func Load() (*Config, error) {
	// No-op in production where env vars are set directly
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Port = getEnvInt("PORT", 8080)
	cfg.Env = getEnv("ENV", EnvDevelopment)

	cfg.DatabasePath = getEnv("DATABASE_PATH", "./data/panchaanga.db")

	cfg.RulesDirs = getEnvList("RULES_DIRS", []string{"./rules"})
	cfg.CitiesPath = getEnv("CITIES_PATH", "")
	cfg.Ayanamsha = getEnv("AYANAMSHA", string(ephemeris.ChitraAt180))

	cfg.PrecomputeCron = getEnv("PRECOMPUTE_CRON", "")
	cfg.PrecomputeCities = getEnvList("PRECOMPUTE_CITIES", []string{"bengaluru"})

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "text")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}

	switch c.Env {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("ENV must be one of: development, staging, production; got %q", c.Env))
	}

	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}

	if len(c.RulesDirs) == 0 {
		errs = append(errs, errors.New("RULES_DIRS needs at least one directory"))
	}

	if _, err := ephemeris.ParseAyanamsha(c.Ayanamsha); err != nil {
		errs = append(errs, fmt.Errorf("AYANAMSHA must be one of: chitra_at_180, tropical; got %q", c.Ayanamsha))
	}

	if c.PrecomputeCron != "" {
		if _, err := cron.ParseStandard(c.PrecomputeCron); err != nil {
			errs = append(errs, fmt.Errorf("PRECOMPUTE_CRON %q: %w", c.PrecomputeCron, err))
		}
		if len(c.PrecomputeCities) == 0 {
			errs = append(errs, errors.New("PRECOMPUTE_CITIES is required when PRECOMPUTE_CRON is set"))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error; got %q", c.LogLevel))
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be one of: json, text; got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// AyanamshaValue returns the parsed ayanamsha. Call after Validate.
func (c *Config) AyanamshaValue() ephemeris.Ayanamsha {
	a, _ := ephemeris.ParseAyanamsha(c.Ayanamsha)
	return a
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// getEnv reads an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt reads an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvList reads a comma-separated environment variable, dropping blank
// entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
