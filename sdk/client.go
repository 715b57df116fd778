package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Client is the high-level entry point of the access layer. Every call goes
// through the escalation controller, so callers never pick a transport.
// All methods are safe for concurrent use.
//
// Example:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithBaseURL("https://forum-api.example.com").
//	    WithGatewayURL("https://forum.example.com/.netlify/functions/api").
//	    WithFallbackURL("https://forum-backend.example.net"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	var threads []Thread
//	if err := client.Get(ctx, "/forum/discussions", &threads); err != nil {
//	    if sdk.IsUnreachable(err) {
//	        // show the simulation banner
//	    }
//	}
type Client interface {
	// Do sends a descriptor and returns the raw result.
	Do(ctx context.Context, desc RequestDescriptor) (TransportResult, error)

	// Get fetches path and decodes the JSON payload into dest.
	// dest may be nil to discard the payload.
	Get(ctx context.Context, path string, dest interface{}) error

	// Post sends body to path and decodes the answer into dest.
	//
	// Example:
	//
	//	var created struct{ ID string `json:"id"` }
	//	err := client.Post(ctx, "/forum/discussions", NewThread{Title: "Hi"}, &created)
	Post(ctx context.Context, path string, body, dest interface{}) error

	// Put replaces the resource at path.
	Put(ctx context.Context, path string, body, dest interface{}) error

	// Delete removes the resource at path.
	Delete(ctx context.Context, path string, dest interface{}) error

	// Login posts credentials to the login endpoint and stores the session
	// from the answer. A rejected login leaves any existing session alone.
	Login(ctx context.Context, credentials interface{}) (*Session, error)

	// Logout destroys the local session.
	Logout(ctx context.Context) error

	// Session returns the current session, nil when logged out.
	Session(ctx context.Context) (*Session, error)

	// Health runs one health probe now and returns the resulting state.
	Health(ctx context.Context) Connectivity

	// Monitor returns the health monitor; run it with Monitor().Run(ctx).
	Monitor() *HealthMonitor

	// Signals returns the bus that carries authentication and
	// connectivity signals.
	Signals() *SignalBus

	// State returns the shared escalation state.
	State() *EscalationState

	// Close releases pooled connections. Close is safe to call multiple times.
	Close() error
}

// client is the concrete implementation of the Client interface
type client struct {
	config     *Config
	store      SessionStore
	controller *Controller
	monitor    *HealthMonitor
	signals    *SignalBus
	mu         sync.RWMutex
	closed     bool
}

// NewClient creates a client with its own escalation state and signal bus.
// If config is nil, default configuration values will be used.
func NewClient(config *Config) (Client, error) {
	return NewClientWithTransports(config, nil)
}

// NewClientWithTransports creates a client whose controller uses the given
// transports instead of building them from config. Transports are placed by
// Role, so order does not matter.
func NewClientWithTransports(config *Config, transports []Transport) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	state := NewEscalationState()
	signals := NewSignalBus().WithLogger(config.Logger)
	normalizer := NewPathNormalizer(config.StripPrefixes)
	auth := NewAuthAttacher(config.SessionStore, signals, normalizer.Normalize(config.LoginPath), config.Logger)
	controller := NewController(config, state, auth, transports...)

	return &client{
		config:     config,
		store:      config.SessionStore,
		controller: controller,
		monitor:    NewHealthMonitor(controller, config, state, signals),
		signals:    signals,
	}, nil
}

// Do sends a descriptor through the controller
func (c *client) Do(ctx context.Context, desc RequestDescriptor) (TransportResult, error) {
	if err := c.checkClosed(); err != nil {
		return TransportResult{Kind: KindUnknown}, err
	}
	return c.controller.Do(ctx, desc)
}

func (c *client) call(ctx context.Context, method, path string, body, dest interface{}) error {
	result, err := c.Do(ctx, NewRequest(method, path, body))
	if err != nil {
		return err
	}
	return result.Decode(dest)
}

// Get fetches path
func (c *client) Get(ctx context.Context, path string, dest interface{}) error {
	return c.call(ctx, http.MethodGet, path, nil, dest)
}

// Post sends body to path
func (c *client) Post(ctx context.Context, path string, body, dest interface{}) error {
	return c.call(ctx, http.MethodPost, path, body, dest)
}

// Put replaces the resource at path
func (c *client) Put(ctx context.Context, path string, body, dest interface{}) error {
	return c.call(ctx, http.MethodPut, path, body, dest)
}

// Delete removes the resource at path
func (c *client) Delete(ctx context.Context, path string, dest interface{}) error {
	return c.call(ctx, http.MethodDelete, path, nil, dest)
}

// Login authenticates and persists the session
func (c *client) Login(ctx context.Context, credentials interface{}) (*Session, error) {
	result, err := c.Do(ctx, NewRequest(http.MethodPost, c.config.LoginPath, credentials))
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(result.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}
	session, err := DecodeSession(payload)
	if err != nil {
		return nil, err
	}
	if err := c.store.Write(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	c.config.Logger.WithField("user_id", session.UserID).Info("logged in")
	return &session, nil
}

// Logout clears the session
func (c *client) Logout(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	return c.store.Clear(ctx)
}

// Session returns the current session
func (c *client) Session(ctx context.Context) (*Session, error) {
	return c.store.Read(ctx)
}

// Health probes the backend once
func (c *client) Health(ctx context.Context) Connectivity {
	if c.checkClosed() != nil {
		return c.monitor.State()
	}
	return c.monitor.Check(ctx)
}

// Monitor returns the health monitor
func (c *client) Monitor() *HealthMonitor {
	return c.monitor
}

// Signals returns the signal bus
func (c *client) Signals() *SignalBus {
	return c.signals
}

// State returns the escalation state
func (c *client) State() *EscalationState {
	return c.controller.State()
}

// Close closes the client and releases resources
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	closeIdle(c.config)
	return nil
}

// checkClosed checks if the client is closed
func (c *client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClosed
	}
	return nil
}
