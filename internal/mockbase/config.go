package mockbase

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds the mock backend configuration
type Config struct {
	// Server configuration
	Host string
	Port int

	// API configuration
	APIKey          string
	JWTSecret       string
	TokenTTL        time.Duration
	RequestTimeout  int
	ShutdownTimeout int

	// PasswordCost is the bcrypt cost used for stored passwords
	PasswordCost int

	// MetricsPath serves the Prometheus registry; empty disables it
	MetricsPath string
}

// DefaultConfig returns a configuration suitable for tests
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		APIKey:          "ik_mockbase",
		JWTSecret:       "mockbase-secret",
		TokenTTL:        time.Hour,
		RequestTimeout:  30,
		ShutdownTimeout: 10,
		PasswordCost:    bcrypt.MinCost,
		MetricsPath:     "/metrics",
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	port, err := strconv.Atoi(getEnvOrDefault("MOCKBASE_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid MOCKBASE_PORT: %w", err)
	}

	ttl, err := time.ParseDuration(getEnvOrDefault("MOCKBASE_TOKEN_TTL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid MOCKBASE_TOKEN_TTL: %w", err)
	}

	requestTimeout, err := strconv.Atoi(getEnvOrDefault("MOCKBASE_REQUEST_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid MOCKBASE_REQUEST_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := strconv.Atoi(getEnvOrDefault("MOCKBASE_SHUTDOWN_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid MOCKBASE_SHUTDOWN_TIMEOUT: %w", err)
	}

	cost, err := strconv.Atoi(getEnvOrDefault("MOCKBASE_PASSWORD_COST", strconv.Itoa(bcrypt.DefaultCost)))
	if err != nil {
		return nil, fmt.Errorf("invalid MOCKBASE_PASSWORD_COST: %w", err)
	}

	cfg.Host = getEnvOrDefault("MOCKBASE_HOST", cfg.Host)
	cfg.Port = port
	cfg.APIKey = getEnvOrDefault("MOCKBASE_API_KEY", cfg.APIKey)
	cfg.JWTSecret = getEnvOrDefault("MOCKBASE_JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = ttl
	cfg.RequestTimeout = requestTimeout
	cfg.ShutdownTimeout = shutdownTimeout
	cfg.PasswordCost = cost
	cfg.MetricsPath = getEnvOrDefault("MOCKBASE_METRICS_PATH", cfg.MetricsPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills zero values with defaults
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = time.Hour
	}
	if c.PasswordCost < bcrypt.MinCost || c.PasswordCost > bcrypt.MaxCost {
		c.PasswordCost = bcrypt.DefaultCost
	}
	return nil
}

// Address returns the listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
