package gateway

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Config holds the gateway configuration
type Config struct {
	Host string
	Port int

	// BackendURL is where every request under Prefix is forwarded
	BackendURL string
	// Prefix is the route the browser reaches the gateway on
	Prefix string
	// AllowOrigins lists the origins allowed cross-origin; empty means
	// same-origin only
	AllowOrigins []string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// HealthInterval is how often the backend is probed for /health
	HealthInterval time.Duration

	MetricsPath string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8888"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	requestTimeout, err := strconv.Atoi(getEnvOrDefault("REQUEST_TIMEOUT", "9"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := strconv.Atoi(getEnvOrDefault("SHUTDOWN_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	healthInterval, err := strconv.Atoi(getEnvOrDefault("HEALTH_INTERVAL", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEALTH_INTERVAL: %w", err)
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("ALLOW_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	cfg := &Config{
		Host:            getEnvOrDefault("HOST", "0.0.0.0"),
		Port:            port,
		BackendURL:      os.Getenv("BACKEND_URL"),
		Prefix:          getEnvOrDefault("GATEWAY_PREFIX", "/.netlify/functions/api"),
		AllowOrigins:    origins,
		RequestTimeout:  time.Duration(requestTimeout) * time.Second,
		ShutdownTimeout: time.Duration(shutdownTimeout) * time.Second,
		HealthInterval:  time.Duration(healthInterval) * time.Second,
		MetricsPath:     getEnvOrDefault("METRICS_PATH", "/metrics"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var routePath = regexp.MustCompile(`^/[^*:]*[^/*:]$`)

// Validate checks the configuration
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.BackendURL, validation.Required, is.URL),
		validation.Field(&c.Prefix, validation.Required, validation.Match(routePath)),
		validation.Field(&c.AllowOrigins, validation.Each(is.URL)),
		validation.Field(&c.RequestTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.HealthInterval, validation.Required),
		validation.Field(&c.MetricsPath, validation.Required, validation.Match(routePath)),
	)
	if err != nil {
		return fmt.Errorf("invalid gateway configuration: %w", err)
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
