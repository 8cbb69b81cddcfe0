package sdk

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Version is reported in the User-Agent header.
const Version = "0.4.0"

// Config holds the configuration for the roost client.
// BaseURL and APIKey are required; everything else has sensible defaults.
//
// Configuration can be built using the fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://myapp.us-east.example.app").
//	    WithAPIKey(os.Getenv("ROOST_API_KEY")).
//	    WithTimeout(10 * time.Second)
//
//	client, err := sdk.NewClient(config)
type Config struct {
	// BaseURL is the base URL of the backend, including scheme and host.
	BaseURL string

	// APIKey is the static project key. It authorizes requests whenever no
	// user session is active.
	APIKey string

	// Timeout is the HTTP request timeout.
	// This includes connection time, any redirects, and reading the response body.
	// Default: 30s
	Timeout time.Duration

	// TransportConfig holds HTTP transport settings.
	TransportConfig TransportConfig

	// HTTPClient replaces the client built from Timeout and TransportConfig.
	HTTPClient *http.Client

	// Headers are custom headers to include in all requests.
	// Authorization is managed by the client and cannot be overridden here.
	Headers map[string]string

	// Logger receives warnings and debug traces. The SDK never logs request
	// errors on the caller's behalf.
	// Default: logrus logger on stderr at warn level.
	Logger logrus.FieldLogger

	// Observer for monitoring operations.
	// If nil, NoopObserver is used.
	Observer Observer

	// RetryStrategy defines transport-level retries.
	// Default: NoRetryStrategy (every operation is exactly one round trip).
	RetryStrategy RetryStrategy

	// RetryMutations allows the retry strategy to repeat POST, PATCH, PUT and
	// DELETE requests. Only GET and HEAD are retried otherwise.
	RetryMutations bool

	// CircuitBreakerConfig holds circuit breaker settings.
	// If nil, circuit breaker is disabled.
	CircuitBreakerConfig *CircuitBreakerConfig

	// SessionStore persists the user session of the built-in AuthClient.
	// Default: MemorySessionStore.
	SessionStore SessionStore

	// AuthProvider replaces the built-in AuthClient as the source of
	// session-change notifications.
	AuthProvider AuthProvider

	// RefuseUnfilteredMutations makes Update and Delete without any filter
	// fail with ErrUnfilteredMutation instead of targeting every row.
	RefuseUnfilteredMutations bool
}

// TransportConfig holds HTTP transport configuration for connection pooling.
//
// Example:
//
//	config.TransportConfig = sdk.TransportConfig{
//	    MaxIdleConns:    200,
//	    MaxConnsPerHost: 50,
//	    IdleConnTimeout: 120 * time.Second,
//	}
type TransportConfig struct {
	// MaxIdleConns controls the maximum number of idle connections
	// across all hosts. Zero means no limit.
	// Default: 100
	MaxIdleConns int

	// MaxConnsPerHost controls the maximum connections per host.
	// Default: 10
	MaxConnsPerHost int

	// IdleConnTimeout is the maximum time an idle connection will remain idle
	// before closing itself. Zero means no limit.
	// Default: 90s
	IdleConnTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults. BaseURL and APIKey
// still have to be set.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("http://localhost:7130").
//	    WithAPIKey("ik_dev")
func DefaultConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		TransportConfig: TransportConfig{
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
		},
		Headers:       make(map[string]string),
		Observer:      &NoopObserver{},
		RetryStrategy: &NoRetryStrategy{},
	}
}

// ConfigFromEnv builds a Config from ROOST_BASE_URL, ROOST_API_KEY and
// ROOST_TIMEOUT (a Go duration such as "15s").
func ConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig().
		WithBaseURL(os.Getenv("ROOST_BASE_URL")).
		WithAPIKey(os.Getenv("ROOST_API_KEY"))

	if raw := os.Getenv("ROOST_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: ROOST_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// WithBaseURL sets the base URL of the backend. A trailing slash is removed.
func (c *Config) WithBaseURL(baseURL string) *Config {
	c.BaseURL = strings.TrimRight(baseURL, "/")
	return c
}

// WithAPIKey sets the static project API key.
func (c *Config) WithAPIKey(key string) *Config {
	c.APIKey = key
	return c
}

// WithTimeout sets the request timeout for all operations.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithHTTPClient uses the given client instead of building one.
func (c *Config) WithHTTPClient(client *http.Client) *Config {
	c.HTTPClient = client
	return c
}

// WithHeader adds a custom header to be sent with all requests.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithHeader("X-Tenant-ID", "tenant-123")
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// WithLogger sets the logger used for warnings and debug traces.
func (c *Config) WithLogger(logger logrus.FieldLogger) *Config {
	c.Logger = logger
	return c
}

// WithObserver sets a custom observer for monitoring SDK operations.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithObserver(sdk.NewCompositeObserver(
//	        sdk.NewLogObserver(logger),
//	        metrics.NewPrometheusObserver(prometheus.DefaultRegisterer, "myapp"),
//	    ))
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// WithRetries enables exponential backoff with up to maxRetries retries of
// idempotent requests. Zero restores the default of no retries.
func (c *Config) WithRetries(maxRetries int) *Config {
	if maxRetries <= 0 {
		c.RetryStrategy = &NoRetryStrategy{}
		return c
	}
	strategy := DefaultExponentialBackoff()
	strategy.MaxRetries = maxRetries
	c.RetryStrategy = strategy
	return c
}

// WithRetryStrategy sets a custom retry strategy.
func (c *Config) WithRetryStrategy(strategy RetryStrategy) *Config {
	c.RetryStrategy = strategy
	return c
}

// WithCircuitBreaker enables and configures circuit breaker protection.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithCircuitBreaker(sdk.CircuitBreakerConfig{
//	        FailureThreshold: 5,
//	        Timeout:          30 * time.Second,
//	    })
func (c *Config) WithCircuitBreaker(config CircuitBreakerConfig) *Config {
	c.CircuitBreakerConfig = &config
	return c
}

// WithSessionStore sets where the built-in AuthClient persists sessions.
//
// Example:
//
//	store := sessionstore.NewFileStore(filepath.Join(home, ".roost", "session.json"))
//	config := sdk.DefaultConfig().WithSessionStore(store)
func (c *Config) WithSessionStore(store SessionStore) *Config {
	c.SessionStore = store
	return c
}

// WithAuthProvider replaces the built-in AuthClient.
func (c *Config) WithAuthProvider(provider AuthProvider) *Config {
	c.AuthProvider = provider
	return c
}

// WithRefuseUnfilteredMutations makes Update and Delete without filters fail
// client-side.
func (c *Config) WithRefuseUnfilteredMutations() *Config {
	c.RefuseUnfilteredMutations = true
	return c
}

// Validate validates the configuration and sets defaults for missing values.
// This is called automatically by NewClient.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: base URL: %v", ErrInvalidConfig, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base URL must have a scheme and host", ErrInvalidConfig)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	if c.RetryStrategy == nil {
		c.RetryStrategy = &NoRetryStrategy{}
	}
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
	if c.SessionStore == nil {
		c.SessionStore = NewMemorySessionStore()
	}
	if c.CircuitBreakerConfig != nil {
		c.CircuitBreakerConfig.applyDefaults()
	}
	return nil
}

func defaultLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	logger.SetOutput(os.Stderr)
	return logger.WithField("component", "roost-sdk")
}

