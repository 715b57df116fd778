package signals

import (
	"os"
)

// Config holds the NATS connection used to publish client signals
type Config struct {
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// SubjectPrefix is prepended to the signal type, e.g.
	// "nestlink.signals.connectivity"
	SubjectPrefix string `yaml:"subject_prefix"`
	// Source identifies the publishing client in every message
	Source string `yaml:"source"`
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() *Config {
	host, _ := os.Hostname()
	return &Config{
		URL:           getEnvOrDefault("NATS_URL", "nats://localhost:4222"),
		Name:          getEnvOrDefault("NATS_NAME", "nestlink"),
		User:          os.Getenv("NATS_USER"),
		Password:      os.Getenv("NATS_PASSWORD"),
		SubjectPrefix: getEnvOrDefault("NESTLINK_SIGNAL_SUBJECT", "nestlink.signals"),
		Source:        getEnvOrDefault("NESTLINK_SIGNAL_SOURCE", host),
	}
}

// Enabled reports whether signals should be published at all
func (c *Config) Enabled() bool {
	return c.URL != "" && c.URL != "off"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
