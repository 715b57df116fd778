package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/birbparty/nestlink/internal/sessionstore"
	"github.com/birbparty/nestlink/internal/signals"
	"github.com/birbparty/nestlink/sdk"
)

// Config is the nestctl configuration file:
//
//	base_url: https://forum-api.example.com
//	gateway_url: https://forum.example.com/.netlify/functions/api
//	fallback_url: https://forum-backend.example.net
//	origin: https://forum.example.com
//	timeouts:
//	  direct: 10s
//	session:
//	  backend: redis
//	  redis:
//	    host: cache.internal
//	signals:
//	  url: nats://nats.internal:4222
type Config struct {
	BaseURL     string `yaml:"base_url"`
	GatewayURL  string `yaml:"gateway_url"`
	FallbackURL string `yaml:"fallback_url"`
	Origin      string `yaml:"origin"`
	// Deployed overrides deployment detection when set
	Deployed *bool `yaml:"deployed"`
	// Relays enables the public relay registry; default true
	Relays *bool `yaml:"relays"`

	Timeouts       Timeouts          `yaml:"timeouts"`
	HealthInterval time.Duration     `yaml:"health_interval"`
	Headers        map[string]string `yaml:"headers"`
	LogLevel       string            `yaml:"log_level"`

	Session sessionstore.Config `yaml:"session"`
	Signals signals.Config      `yaml:"signals"`
}

// Timeouts are the per-transport budgets; zero keeps the sdk default
type Timeouts struct {
	Direct   time.Duration `yaml:"direct"`
	Gateway  time.Duration `yaml:"gateway"`
	Fallback time.Duration `yaml:"fallback"`
	Relay    time.Duration `yaml:"relay"`
}

// DefaultConfigPath is read when no -config flag or NESTLINK_CONFIG is given
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "nestlink.yaml"
	}
	return filepath.Join(home, ".nestlink", "config.yaml")
}

// DefaultConfig returns the configuration used when no file exists
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  "http://localhost:8080",
		LogLevel: "warn",
		Session:  *sessionstore.DefaultConfig(),
		Signals: signals.Config{
			Name:          "nestctl",
			SubjectPrefix: "nestlink.signals",
		},
	}
}

// LoadConfig reads the YAML file at path and then applies NESTLINK_*
// environment overrides. An empty path falls back to NESTLINK_CONFIG and
// then DefaultConfigPath; only an explicitly named file must exist.
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = getEnvOrDefault("NESTLINK_CONFIG", "")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultConfigPath()
	}

	data, err := afero.ReadFile(fs, path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.BaseURL = getEnvOrDefault("NESTLINK_BASE_URL", c.BaseURL)
	c.GatewayURL = getEnvOrDefault("NESTLINK_GATEWAY_URL", c.GatewayURL)
	c.FallbackURL = getEnvOrDefault("NESTLINK_FALLBACK_URL", c.FallbackURL)
	c.Origin = getEnvOrDefault("NESTLINK_ORIGIN", c.Origin)
	c.LogLevel = getEnvOrDefault("NESTLINK_LOG_LEVEL", c.LogLevel)
	c.Signals.URL = getEnvOrDefault("NESTLINK_NATS_URL", c.Signals.URL)
	return c.Session.ApplyEnv()
}

// SDKConfig translates the file into an sdk configuration
func (c *Config) SDKConfig() *sdk.Config {
	sc := sdk.DefaultConfig().
		WithBaseURL(c.BaseURL).
		WithGatewayURL(c.GatewayURL).
		WithFallbackURL(c.FallbackURL).
		WithOrigin(c.Origin)

	if c.Deployed != nil {
		sc.WithDeployed(*c.Deployed)
	}
	if c.Relays != nil && !*c.Relays {
		sc.WithRelays()
	}
	if c.Timeouts.Direct > 0 {
		sc.DirectTimeout = c.Timeouts.Direct
	}
	if c.Timeouts.Gateway > 0 {
		sc.GatewayTimeout = c.Timeouts.Gateway
	}
	if c.Timeouts.Fallback > 0 {
		sc.FallbackTimeout = c.Timeouts.Fallback
	}
	if c.Timeouts.Relay > 0 {
		sc.RelayTimeout = c.Timeouts.Relay
	}
	if c.HealthInterval > 0 {
		sc.WithHealthInterval(c.HealthInterval)
	}
	for k, v := range c.Headers {
		sc.WithHeader(k, v)
	}
	return sc
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
