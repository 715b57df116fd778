package telemetry

import (
	"os"
	"strconv"
)

// Config holds the configuration for telemetry
type Config struct {
	OTLPEndpoint   string
	ServiceName    string
	Environment    string
	ServiceVersion string

	// LogFile enables rotated file output next to stdout
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	SamplingRate float64
	LogLevel     string

	EnableTracing bool
	EnableMetrics bool
}

// NewConfigFromEnv creates a new config from environment variables
func NewConfigFromEnv(serviceName string) *Config {
	return &Config{
		ServiceName:    getEnv("OTEL_SERVICE_NAME", serviceName),
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServiceVersion: getEnv("SERVICE_VERSION", "unknown"),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		LogFile:        os.Getenv("LOG_FILE"),
		LogMaxSizeMB:   getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups:  getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays:  getEnvInt("LOG_MAX_AGE_DAYS", 28),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SamplingRate:   getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
		EnableTracing:  getEnvBool("ENABLE_TRACING", false),
		EnableMetrics:  getEnvBool("ENABLE_METRICS", true),
	}
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
