package sdk

import (
	"sync"
	"time"
)

// Observer provides hooks for monitoring access layer operations.
// Implement this interface to track escalation behavior, export metrics,
// or integrate with your observability stack.
//
// Observer methods are called on the request goroutine and should be fast
// and non-blocking.
//
// Example implementation:
//
//	type LogObserver struct {
//	    logger *log.Logger
//	}
//
//	func (o *LogObserver) OnAttempt(method, path, transport string, d time.Duration, err error) {
//	    if err != nil {
//	        o.logger.Printf("[%s] %s %s failed after %v: %v", transport, method, path, d, err)
//	    }
//	}
//
//	config := sdk.DefaultConfig().
//	    WithObserver(&LogObserver{logger: log.Default()})
type Observer interface {
	// OnRequestStart is called when a logical call enters the controller.
	//
	// Parameters:
	//   - method: HTTP method (GET, POST, PUT, DELETE)
	//   - path: Canonical logical path (e.g., "/forum/discussions")
	OnRequestStart(method, path string)

	// OnRequestEnd is called when a logical call completes, after every
	// transport it needed.
	//
	// Parameters:
	//   - method: HTTP method
	//   - path: Canonical logical path
	//   - duration: Time taken across all attempts
	//   - err: Error if the call failed, nil on success
	OnRequestEnd(method, path string, duration time.Duration, err error)

	// OnAttempt is called once per transport tried.
	//
	// Parameters:
	//   - method: HTTP method
	//   - path: Canonical logical path
	//   - transport: Transport name ("direct", "gateway", "fallback", "relay")
	//   - duration: Time taken by this attempt
	//   - err: The classified failure, nil when the attempt succeeded
	OnAttempt(method, path, transport string, duration time.Duration, err error)

	// OnGatewayPreferred is called once, when the direct transport is
	// abandoned for the rest of the process lifetime.
	OnGatewayPreferred()

	// OnConnectivityChange is called when the health monitor changes state.
	OnConnectivityChange(oldState, newState Connectivity)
}

// NoopObserver is a no-op implementation of Observer that does nothing.
// This is the default observer used when none is configured.
type NoopObserver struct{}

// OnRequestStart does nothing
func (n *NoopObserver) OnRequestStart(method, path string) {}

// OnRequestEnd does nothing
func (n *NoopObserver) OnRequestEnd(method, path string, duration time.Duration, err error) {}

// OnAttempt does nothing
func (n *NoopObserver) OnAttempt(method, path, transport string, duration time.Duration, err error) {
}

// OnGatewayPreferred does nothing
func (n *NoopObserver) OnGatewayPreferred() {}

// OnConnectivityChange does nothing
func (n *NoopObserver) OnConnectivityChange(oldState, newState Connectivity) {}

// MetricsCollector is a simple in-memory metrics implementation.
// It counts requests, errors, per-transport attempts and failures, and
// connectivity changes.
//
// Note: This implementation stores all data in memory and is primarily
// intended for debugging and testing. internal/telemetry provides a
// Prometheus-backed observer for production use.
//
// Example:
//
//	metrics := sdk.NewMetricsCollector()
//	client, _ := sdk.NewClient(sdk.DefaultConfig().WithObserver(metrics))
//	// Use client...
//	snapshot := metrics.GetMetrics()
//	fmt.Printf("Gateway attempts: %v\n", snapshot["attempts"].(map[string]int64)["gateway"])
type MetricsCollector struct {
	mu                  sync.RWMutex
	requestCount        map[string]int64
	latencies           map[string][]time.Duration
	errorCount          map[string]int64
	attemptCount        map[string]int64
	attemptFailures     map[string]int64
	gatewayPreferred    bool
	connectivityChanges int64
	connectivity        Connectivity
}

// NewMetricsCollector creates a new metrics collector. It is safe for
// concurrent use.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		requestCount:    make(map[string]int64),
		latencies:       make(map[string][]time.Duration),
		errorCount:      make(map[string]int64),
		attemptCount:    make(map[string]int64),
		attemptFailures: make(map[string]int64),
	}
}

// OnRequestStart increments request count
func (m *MetricsCollector) OnRequestStart(method, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[method+" "+path]++
}

// OnRequestEnd records request duration and errors
func (m *MetricsCollector) OnRequestEnd(method, path string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + path
	m.latencies[key] = append(m.latencies[key], duration)
	if err != nil {
		m.errorCount[key]++
	}
}

// OnAttempt counts attempts and failures per transport
func (m *MetricsCollector) OnAttempt(method, path, transport string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attemptCount[transport]++
	if err != nil {
		m.attemptFailures[transport]++
	}
}

// OnGatewayPreferred records the flag flip
func (m *MetricsCollector) OnGatewayPreferred() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gatewayPreferred = true
}

// OnConnectivityChange tracks state changes
func (m *MetricsCollector) OnConnectivityChange(oldState, newState Connectivity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectivityChanges++
	m.connectivity = newState
}

// GetMetrics returns a snapshot of current metrics.
// The returned map is a copy and safe to read without locks.
//
// The metrics include:
//   - "requests": Map of "METHOD path" to request count
//   - "latencies": Map of "METHOD path" to latency measurements
//   - "errors": Map of "METHOD path" to error count
//   - "attempts": Map of transport to attempt count
//   - "attempt_failures": Map of transport to failed attempt count
//   - "gateway_preferred": Whether the direct transport was abandoned
//   - "connectivity_changes": Number of monitor state changes
//   - "connectivity": Last monitor state as a string
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latenciesCopy := make(map[string][]time.Duration)
	for k, v := range m.latencies {
		latenciesCopy[k] = append([]time.Duration(nil), v...)
	}

	return map[string]interface{}{
		"requests":             copyCounts(m.requestCount),
		"latencies":            latenciesCopy,
		"errors":               copyCounts(m.errorCount),
		"attempts":             copyCounts(m.attemptCount),
		"attempt_failures":     copyCounts(m.attemptFailures),
		"gateway_preferred":    m.gatewayPreferred,
		"connectivity_changes": m.connectivityChanges,
		"connectivity":         m.connectivity.String(),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// CompositeObserver allows multiple observers to be combined into one.
// All observer methods are called on each child observer in order.
// If an observer panics, it's caught to prevent affecting other observers.
//
// Example:
//
//	observer := sdk.NewCompositeObserver(
//	    sdk.NewMetricsCollector(),
//	    telemetry.NewPrometheusObserver(prometheus.DefaultRegisterer),
//	)
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer that delegates to multiple observers.
func NewCompositeObserver(observers ...Observer) Observer {
	return &CompositeObserver{observers: observers}
}

func (c *CompositeObserver) each(fn func(Observer)) {
	for _, obs := range c.observers {
		func() {
			defer func() {
				// Observer panicked, ignore
				_ = recover()
			}()
			fn(obs)
		}()
	}
}

// OnRequestStart notifies all observers of request start
func (c *CompositeObserver) OnRequestStart(method, path string) {
	c.each(func(o Observer) { o.OnRequestStart(method, path) })
}

// OnRequestEnd notifies all observers of request completion
func (c *CompositeObserver) OnRequestEnd(method, path string, duration time.Duration, err error) {
	c.each(func(o Observer) { o.OnRequestEnd(method, path, duration, err) })
}

// OnAttempt notifies all observers
func (c *CompositeObserver) OnAttempt(method, path, transport string, duration time.Duration, err error) {
	c.each(func(o Observer) { o.OnAttempt(method, path, transport, duration, err) })
}

// OnGatewayPreferred notifies all observers
func (c *CompositeObserver) OnGatewayPreferred() {
	c.each(func(o Observer) { o.OnGatewayPreferred() })
}

// OnConnectivityChange notifies all observers
func (c *CompositeObserver) OnConnectivityChange(oldState, newState Connectivity) {
	c.each(func(o Observer) { o.OnConnectivityChange(oldState, newState) })
}
