package telemetry

import (
	"os"
	"strconv"
)

// Config holds the telemetry settings shared by the roost binaries
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is a gRPC collector address; empty disables OTLP export
	OTLPEndpoint string
	// TracesFilePath writes finished spans as JSON lines instead of OTLP
	TracesFilePath string

	SamplingRate    float64
	LogLevel        string
	LogFormat       string // json or text
	MetricsInterval int    // seconds

	EnableTracing bool
	EnableMetrics bool
}

// DefaultConfig returns settings with tracing and metrics off
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName:     serviceName,
		ServiceVersion:  "dev",
		Environment:     "development",
		SamplingRate:    1.0,
		LogLevel:        "info",
		LogFormat:       "json",
		MetricsInterval: 10,
	}
}

// NewConfigFromEnv overlays environment variables on DefaultConfig
func NewConfigFromEnv(serviceName string) *Config {
	cfg := DefaultConfig(getEnv("OTEL_SERVICE_NAME", serviceName))
	cfg.ServiceVersion = getEnv("ROOST_VERSION", cfg.ServiceVersion)
	cfg.Environment = getEnv("ROOST_ENVIRONMENT", cfg.Environment)
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.TracesFilePath = os.Getenv("ROOST_TRACES_FILE")
	cfg.SamplingRate = getEnvFloat("OTEL_SAMPLING_RATE", cfg.SamplingRate)
	cfg.LogLevel = getEnv("ROOST_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("ROOST_LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsInterval = getEnvInt("ROOST_METRICS_INTERVAL", cfg.MetricsInterval)

	exporting := cfg.OTLPEndpoint != "" || cfg.TracesFilePath != ""
	cfg.EnableTracing = getEnvBool("ROOST_ENABLE_TRACING", exporting)
	cfg.EnableMetrics = getEnvBool("ROOST_ENABLE_METRICS", cfg.OTLPEndpoint != "")
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
