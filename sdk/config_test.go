package sdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  DefaultConfig().WithBaseURL("http://localhost:7130").WithAPIKey("k"),
			wantErr: false,
		},
		{
			name:    "missing base URL",
			config:  DefaultConfig().WithAPIKey("k"),
			wantErr: true,
		},
		{
			name:    "base URL without scheme",
			config:  DefaultConfig().WithBaseURL("localhost:7130/x").WithAPIKey("k"),
			wantErr: true,
		},
		{
			name:    "base URL without host",
			config:  DefaultConfig().WithBaseURL("http://").WithAPIKey("k"),
			wantErr: true,
		},
		{
			name:    "missing API key",
			config:  DefaultConfig().WithBaseURL("http://localhost:7130"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateFillsDefaults(t *testing.T) {
	config := &Config{BaseURL: "https://app.example.app///", APIKey: "k"}
	require.NoError(t, config.Validate())

	assert.Equal(t, "https://app.example.app", config.BaseURL)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.NotNil(t, config.Headers)
	assert.IsType(t, &NoopObserver{}, config.Observer)
	assert.IsType(t, &NoRetryStrategy{}, config.RetryStrategy)
	assert.NotNil(t, config.Logger)
	assert.IsType(t, &MemorySessionStore{}, config.SessionStore)
	assert.Nil(t, config.CircuitBreakerConfig, "circuit breaking stays off by default")
}

func TestConfig_Builder(t *testing.T) {
	store := NewMemorySessionStore()
	observer := NewMetricsCollector()

	config := DefaultConfig().
		WithBaseURL("https://app.example.app/").
		WithAPIKey("k").
		WithTimeout(5*time.Second).
		WithHeader("X-Tenant-ID", "t1").
		WithObserver(observer).
		WithRetries(4).
		WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2}).
		WithSessionStore(store).
		WithRefuseUnfilteredMutations()

	assert.Equal(t, "https://app.example.app", config.BaseURL)
	assert.Equal(t, 5*time.Second, config.Timeout)
	assert.Equal(t, "t1", config.Headers["X-Tenant-ID"])
	assert.Same(t, observer, config.Observer)
	assert.Same(t, store, config.SessionStore)
	assert.True(t, config.RefuseUnfilteredMutations)

	backoff, ok := config.RetryStrategy.(*ExponentialBackoffStrategy)
	require.True(t, ok)
	assert.Equal(t, 4, backoff.MaxRetries)

	require.NoError(t, config.Validate())
	require.NotNil(t, config.CircuitBreakerConfig)
	assert.Equal(t, 2, config.CircuitBreakerConfig.FailureThreshold)
	assert.Equal(t, 2, config.CircuitBreakerConfig.SuccessThreshold)
	assert.Equal(t, 30*time.Second, config.CircuitBreakerConfig.Timeout)

	config.WithRetries(0)
	assert.IsType(t, &NoRetryStrategy{}, config.RetryStrategy)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("ROOST_BASE_URL", "http://localhost:7130/")
	t.Setenv("ROOST_API_KEY", "ik_env")
	t.Setenv("ROOST_TIMEOUT", "15s")

	config, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:7130", config.BaseURL)
	assert.Equal(t, "ik_env", config.APIKey)
	assert.Equal(t, 15*time.Second, config.Timeout)

	t.Setenv("ROOST_TIMEOUT", "soon")
	_, err = ConfigFromEnv()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewClient_NilConfigReadsEnv(t *testing.T) {
	t.Setenv("ROOST_BASE_URL", "")
	t.Setenv("ROOST_API_KEY", "")
	t.Setenv("ROOST_TIMEOUT", "")

	_, err := NewClient(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv("ROOST_BASE_URL", "http://localhost:7130")
	t.Setenv("ROOST_API_KEY", "ik_env")
	client, err := NewClient(nil)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "Bearer ik_env", client.Headers()["Authorization"])
}
