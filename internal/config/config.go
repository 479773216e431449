package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultSecret signs tokens and keys the password hash of the seed users.
const DefaultSecret = "This is not a production server"

// Config holds the application configuration.
type Config struct {
	Port          int           `validate:"min=1,max=65535"`
	IdentityField string        `validate:"required"`
	ServerSecret  string        `validate:"required"`
	SeedDir       string        // Replaces the embedded seed data when set
	RulesFile     string        // Replaces the embedded access rules when set
	JSONStoreDir  string        `validate:"required"`
	DatabasePath  string        `validate:"required"`
	LogLevel      string        `validate:"oneof=trace debug info warn error"`
	PasswordHash  string        `validate:"oneof=hmac bcrypt"`
	SessionTTL    time.Duration `validate:"min=0"`
	SessionSweep  string        `validate:"required"`
	Throttle      bool
}

// Load loads configuration from environment variables or sets defaults.
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "3030"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	ttl, err := time.ParseDuration(getEnv("SESSION_TTL", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	throttle, err := strconv.ParseBool(getEnv("THROTTLE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid THROTTLE: %w", err)
	}

	cfg := &Config{
		Port:          port,
		IdentityField: getEnv("IDENTITY_FIELD", "email"),
		ServerSecret:  getEnv("SERVER_SECRET", DefaultSecret),
		SeedDir:       getEnv("SEED_DIR", ""),
		RulesFile:     getEnv("RULES_FILE", ""),
		JSONStoreDir:  getEnv("JSONSTORE_DIR", "./data"),
		DatabasePath:  getEnv("DATABASE_PATH", ":memory:"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PasswordHash:  getEnv("PASSWORD_HASH", "hmac"),
		SessionTTL:    ttl,
		SessionSweep:  getEnv("SESSION_SWEEP", "@every 1m"),
		Throttle:      throttle,
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration after flags have been applied.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
