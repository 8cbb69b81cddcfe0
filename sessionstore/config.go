package sessionstore

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RedisConfig holds the Redis connection settings of a RedisStore
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	// Connection pool settings
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int

	// Namespace selects the key roost:session:{namespace}
	Namespace string
}

// RedisConfigFromEnv reads ROOST_REDIS_* variables
func RedisConfigFromEnv() (*RedisConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("ROOST_REDIS_PORT", "6379"))
	if err != nil {
		return nil, fmt.Errorf("invalid ROOST_REDIS_PORT: %w", err)
	}

	db, err := strconv.Atoi(getEnvOrDefault("ROOST_REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid ROOST_REDIS_DB: %w", err)
	}

	poolSize, err := strconv.Atoi(getEnvOrDefault("ROOST_REDIS_POOL_SIZE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid ROOST_REDIS_POOL_SIZE: %w", err)
	}

	dialTimeout, err := parseDuration(getEnvOrDefault("ROOST_REDIS_DIAL_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ROOST_REDIS_DIAL_TIMEOUT: %w", err)
	}

	return &RedisConfig{
		Host:            getEnvOrDefault("ROOST_REDIS_HOST", "localhost"),
		Port:            port,
		Password:        os.Getenv("ROOST_REDIS_PASSWORD"),
		DB:              db,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     dialTimeout,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        poolSize,
		Namespace:       getEnvOrDefault("ROOST_SESSION_NAMESPACE", DefaultNamespace),
	}, nil
}

// Address returns the Redis server address
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PostgresConfig holds the connection settings of a PostgresStore
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	Namespace string
}

// PostgresConfigFromEnv reads ROOST_POSTGRES_* variables
func PostgresConfigFromEnv() (*PostgresConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("ROOST_POSTGRES_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid ROOST_POSTGRES_PORT: %w", err)
	}

	maxConns, err := strconv.ParseInt(getEnvOrDefault("ROOST_POSTGRES_MAX_CONNS", "4"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid ROOST_POSTGRES_MAX_CONNS: %w", err)
	}

	minConns, err := strconv.ParseInt(getEnvOrDefault("ROOST_POSTGRES_MIN_CONNS", "0"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid ROOST_POSTGRES_MIN_CONNS: %w", err)
	}

	return &PostgresConfig{
		Host:            getEnvOrDefault("ROOST_POSTGRES_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("ROOST_POSTGRES_USER", "roost"),
		Password:        os.Getenv("ROOST_POSTGRES_PASSWORD"),
		Database:        getEnvOrDefault("ROOST_POSTGRES_DB", "roost"),
		SSLMode:         getEnvOrDefault("ROOST_POSTGRES_SSLMODE", "disable"),
		MaxConns:        int32(maxConns),
		MinConns:        int32(minConns),
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		Namespace:       getEnvOrDefault("ROOST_SESSION_NAMESPACE", DefaultNamespace),
	}, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	// bare integers are seconds
	if seconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid duration format: %s", s)
}
