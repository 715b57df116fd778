package sdk

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
)

// Config holds the configuration for the access layer.
// All fields except BaseURL are optional and have sensible defaults.
//
// Configuration can be built using the fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://forum-api.example.com/api").
//	    WithGatewayURL("https://forum.example.com/.netlify/functions/api").
//	    WithFallbackURL("https://forum-backend.example.net/api").
//	    WithOrigin("https://forum.example.com")
//
//	client, err := sdk.NewClient(config)
type Config struct {
	// BaseURL is the primary backend address used by the direct transport.
	// Default: "http://localhost:8080"
	BaseURL string

	// GatewayURL is the same-origin forwarding endpoint. Empty disables the
	// gateway transport.
	GatewayURL string

	// FallbackURL is the absolute backend address tried after the gateway.
	// It is also the target that public relays wrap. Empty disables both the
	// fallback and the relay transports.
	FallbackURL string

	// Origin is the origin the client runs under (the page origin in a
	// browser). When set, the native transports enforce CORS the way a
	// browser would.
	Origin string

	// Deployed forces the deployment context. When nil it is detected: the
	// client is local when the Origin (or BaseURL) host is a loopback host.
	Deployed *bool

	// DirectTimeout is the direct transport budget. Default: 10s
	DirectTimeout time.Duration
	// GatewayTimeout is the gateway transport budget. Default: 10s
	GatewayTimeout time.Duration
	// FallbackTimeout is the fallback transport budget. Default: 15s
	FallbackTimeout time.Duration
	// RelayTimeout is the budget of each individual relay. Default: 15s
	RelayTimeout time.Duration

	// Relays is the ordered relay registry. Default: DefaultRelays()
	Relays []Relay

	// StripPrefixes are removed from logical paths. Default: DefaultStripPrefixes
	StripPrefixes []string

	// LoginPath is the login endpoint, exempt from session invalidation.
	// Default: "/auth/login"
	LoginPath string

	// HealthPath is the liveness endpoint probed by the monitor.
	// Default: "/health"
	HealthPath string

	// HealthInterval is the monitor's re-probe interval. Default: 30s
	HealthInterval time.Duration

	// Headers are custom headers sent with every request.
	Headers map[string]string

	// UserAgent is sent by native transports.
	UserAgent string

	// TransportConfig holds HTTP connection pooling settings.
	TransportConfig TransportConfig

	// Logger receives escalation diagnostics. Default: logrus.StandardLogger()
	Logger logrus.FieldLogger

	// Observer for monitoring operations. Default: NoopObserver
	Observer Observer

	// SessionStore holds the authenticated session. Default: an in-memory store
	SessionStore SessionStore
}

// TransportConfig holds HTTP transport configuration for connection pooling.
type TransportConfig struct {
	// MaxIdleConns controls the maximum number of idle connections
	// across all hosts. Default: 100
	MaxIdleConns int

	// MaxConnsPerHost controls the maximum connections per host.
	// Default: 10
	MaxConnsPerHost int

	// IdleConnTimeout is the maximum time an idle connection will remain idle
	// before closing itself. Default: 90s
	IdleConnTimeout time.Duration
}

// DefaultConfig returns a Config with the budgets the escalation chain is
// designed around: 10s for direct and gateway, 15s for fallback and each
// relay, 30s between health probes.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "http://localhost:8080",
		DirectTimeout:   10 * time.Second,
		GatewayTimeout:  10 * time.Second,
		FallbackTimeout: 15 * time.Second,
		RelayTimeout:    15 * time.Second,
		Relays:          DefaultRelays(),
		StripPrefixes:   append([]string(nil), DefaultStripPrefixes...),
		LoginPath:       "/auth/login",
		HealthPath:      "/health",
		HealthInterval:  30 * time.Second,
		Headers:         make(map[string]string),
		UserAgent:       "nestlink-go-sdk/1.0.0",
		TransportConfig: TransportConfig{
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
		},
		Observer: &NoopObserver{},
	}
}

// WithBaseURL sets the primary backend address
func (c *Config) WithBaseURL(u string) *Config {
	c.BaseURL = u
	return c
}

// WithGatewayURL sets the same-origin gateway address
func (c *Config) WithGatewayURL(u string) *Config {
	c.GatewayURL = u
	return c
}

// WithFallbackURL sets the absolute fallback backend address
func (c *Config) WithFallbackURL(u string) *Config {
	c.FallbackURL = u
	return c
}

// WithOrigin sets the client origin used for CORS checks
func (c *Config) WithOrigin(origin string) *Config {
	c.Origin = origin
	return c
}

// WithDeployed forces the deployment context instead of detecting it
func (c *Config) WithDeployed(deployed bool) *Config {
	c.Deployed = &deployed
	return c
}

// WithRelays replaces the relay registry. Pass nothing to disable relays.
func (c *Config) WithRelays(relays ...Relay) *Config {
	c.Relays = relays
	return c
}

// WithHeader adds a custom header to be sent with all requests.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithHeader("X-Client", "forum-web")
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// WithLogger sets the logger used for escalation diagnostics
func (c *Config) WithLogger(logger logrus.FieldLogger) *Config {
	c.Logger = logger
	return c
}

// WithObserver sets a custom observer for monitoring SDK operations.
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// WithSessionStore sets where the session is persisted
func (c *Config) WithSessionStore(store SessionStore) *Config {
	c.SessionStore = store
	return c
}

// WithHealthInterval sets the monitor's re-probe interval
func (c *Config) WithHealthInterval(d time.Duration) *Config {
	c.HealthInterval = d
	return c
}

// IsDeployed reports whether the client runs in a deployed (non-local)
// context. Only deployed clients fall back to the gateway.
func (c *Config) IsDeployed() bool {
	if c.Deployed != nil {
		return *c.Deployed
	}
	ref := c.Origin
	if ref == "" {
		ref = c.BaseURL
	}
	u, err := url.Parse(ref)
	if err != nil {
		return true
	}
	return !isLoopbackHost(u.Hostname())
}

func isLoopbackHost(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// absoluteURL accepts empty strings and absolute http(s) URLs
var absoluteURL = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https scheme")
	}
	if u.Host == "" {
		return errors.New("must have a host")
	}
	return nil
})

// Validate validates the configuration and sets defaults for missing values.
// This is called automatically by NewClient.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, absoluteURL),
		validation.Field(&c.GatewayURL, absoluteURL),
		validation.Field(&c.FallbackURL, absoluteURL),
		validation.Field(&c.Origin, absoluteURL),
		validation.Field(&c.DirectTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.GatewayTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.FallbackTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RelayTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.HealthInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.DirectTimeout == 0 {
		c.DirectTimeout = 10 * time.Second
	}
	if c.GatewayTimeout == 0 {
		c.GatewayTimeout = 10 * time.Second
	}
	if c.FallbackTimeout == 0 {
		c.FallbackTimeout = 15 * time.Second
	}
	if c.RelayTimeout == 0 {
		c.RelayTimeout = 15 * time.Second
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.StripPrefixes == nil {
		c.StripPrefixes = append([]string(nil), DefaultStripPrefixes...)
	}
	if c.LoginPath == "" {
		c.LoginPath = "/auth/login"
	}
	if c.HealthPath == "" {
		c.HealthPath = "/health"
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	if c.SessionStore == nil {
		c.SessionStore = NewMemorySessionStore()
	}
	return nil
}
