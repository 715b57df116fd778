package sdk

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Connectivity is the health monitor's view of the backend
type Connectivity int

const (
	// ConnectivityUnknown is the state before the first probe completed
	ConnectivityUnknown Connectivity = iota
	// ConnectivityHealthy means the last probe reached the backend
	ConnectivityHealthy
	// ConnectivityDegraded means the last probe exhausted every transport;
	// the application is in simulation mode
	ConnectivityDegraded
)

// String returns the string representation of the connectivity state
func (c Connectivity) String() string {
	switch c {
	case ConnectivityHealthy:
		return "healthy"
	case ConnectivityDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Prober issues the liveness call. *Controller satisfies it.
type Prober interface {
	Do(ctx context.Context, desc RequestDescriptor) (TransportResult, error)
}

// HealthMonitor classifies connectivity by probing the health endpoint
// through the full escalation path: once when Run starts, then on a fixed
// interval, and whenever Check is called. A failed probe does not shorten
// the interval.
type HealthMonitor struct {
	prober   Prober
	path     string
	interval time.Duration
	state    *EscalationState
	signals  *SignalBus
	observer Observer
	logger   logrus.FieldLogger

	mu      sync.Mutex
	current Connectivity
}

// NewHealthMonitor creates a monitor in the Unknown state
func NewHealthMonitor(prober Prober, config *Config, state *EscalationState, signals *SignalBus) *HealthMonitor {
	m := &HealthMonitor{
		prober:   prober,
		path:     config.HealthPath,
		interval: config.HealthInterval,
		state:    state,
		signals:  signals,
		observer: config.Observer,
		logger:   config.Logger,
	}
	if m.observer == nil {
		m.observer = &NoopObserver{}
	}
	if m.logger == nil {
		m.logger = logrus.StandardLogger()
	}
	if m.state == nil {
		m.state = NewEscalationState()
	}
	return m
}

// Run probes immediately and then every interval until ctx is done
func (m *HealthMonitor) Run(ctx context.Context) {
	// The constant ticker sends its first tick right away, which is the
	// eager startup probe
	ticker := backoff.NewTicker(backoff.WithContext(backoff.NewConstantBackOff(m.interval), ctx))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticker.C:
			if !ok {
				return
			}
			m.Check(ctx)
		}
	}
}

// Check runs one probe now and returns the resulting state. Signals are only
// emitted when the state changes.
func (m *HealthMonitor) Check(ctx context.Context) Connectivity {
	_, err := m.prober.Do(ctx, NewRequest(http.MethodGet, m.path, nil))
	if ctx.Err() != nil {
		// An abandoned probe says nothing about the backend
		return m.State()
	}

	next := ConnectivityHealthy
	if err != nil {
		next = ConnectivityDegraded
	}
	m.state.MarkHealthCheck(time.Now())
	m.state.SetSimulationMode(next == ConnectivityDegraded)

	m.mu.Lock()
	prev := m.current
	m.current = next
	m.mu.Unlock()

	if prev != next {
		entry := m.logger.WithFields(logrus.Fields{
			"from": prev.String(),
			"to":   next.String(),
		})
		if err != nil {
			entry.WithError(err).Warn("backend unreachable, entering simulation mode")
		} else {
			entry.Info("backend reachable")
		}
		m.observer.OnConnectivityChange(prev, next)
		if m.signals != nil {
			m.signals.Emit(Signal{Type: SignalConnectivity, Connectivity: next})
		}
	}
	return next
}

// State returns the last classified state
func (m *HealthMonitor) State() Connectivity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
