package sdk

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProber fails while down is set and records the monitor state it
// saw before each probe
type scriptedProber struct {
	mu      sync.Mutex
	down    bool
	probes  int
	paths   []string
	monitor *HealthMonitor
	seen    []Connectivity
}

func (p *scriptedProber) Do(ctx context.Context, desc RequestDescriptor) (TransportResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	p.paths = append(p.paths, desc.Method+" "+desc.Path)
	if p.monitor != nil {
		p.seen = append(p.seen, p.monitor.State())
	}
	if p.down {
		return TransportResult{Kind: KindNetwork}, newEscalationError(desc.Method, desc.Path, []Attempt{
			{Transport: "direct", Err: NewError(KindNetwork, "connection refused", nil)},
		})
	}
	return successResult("direct", http.StatusOK, []byte(`{"status":"healthy"}`)), nil
}

func (p *scriptedProber) setDown(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = down
}

func (p *scriptedProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}

func newTestMonitor(t *testing.T, prober *scriptedProber, interval time.Duration) (*HealthMonitor, *EscalationState, *[]Signal, *sync.Mutex) {
	t.Helper()
	config := DefaultConfig().WithLogger(newTestLogger()).WithHealthInterval(interval)
	require.NoError(t, config.Validate())

	state := NewEscalationState()
	bus := NewSignalBus()
	var mu sync.Mutex
	var signals []Signal
	bus.Subscribe(func(s Signal) {
		mu.Lock()
		defer mu.Unlock()
		signals = append(signals, s)
	})

	m := NewHealthMonitor(prober, config, state, bus)
	prober.monitor = m
	return m, state, &signals, &mu
}

func TestHealthMonitor_Check(t *testing.T) {
	prober := &scriptedProber{}
	m, state, signals, mu := newTestMonitor(t, prober, time.Hour)
	ctx := context.Background()

	assert.Equal(t, ConnectivityUnknown, m.State())

	assert.Equal(t, ConnectivityHealthy, m.Check(ctx))
	assert.Equal(t, ConnectivityHealthy, m.Check(ctx))
	assert.False(t, state.SimulationMode())
	assert.False(t, state.LastHealthCheck().IsZero())

	prober.setDown(true)
	assert.Equal(t, ConnectivityDegraded, m.Check(ctx))
	assert.True(t, state.SimulationMode())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *signals, 2)
	assert.Equal(t, ConnectivityHealthy, (*signals)[0].Connectivity)
	assert.Equal(t, ConnectivityDegraded, (*signals)[1].Connectivity)
	for _, s := range *signals {
		assert.Equal(t, SignalConnectivity, s.Type)
	}
	assert.Equal(t, []string{"GET /health", "GET /health", "GET /health"}, prober.paths)
}

func TestHealthMonitor_ThreeFailingTicksStayDegraded(t *testing.T) {
	prober := &scriptedProber{down: true}
	m, state, signals, mu := newTestMonitor(t, prober, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	// Eager probe plus three ticks
	require.Eventually(t, func() bool { return prober.count() >= 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, ConnectivityDegraded, m.State())
	assert.True(t, state.SimulationMode())

	prober.mu.Lock()
	seen := append([]Connectivity(nil), prober.seen...)
	prober.mu.Unlock()
	assert.Equal(t, ConnectivityUnknown, seen[0])
	for _, c := range seen[1:] {
		assert.Equal(t, ConnectivityDegraded, c)
	}

	mu.Lock()
	require.Len(t, *signals, 1)
	assert.Equal(t, ConnectivityDegraded, (*signals)[0].Connectivity)
	mu.Unlock()

	// Recovery is only reported after a successful probe
	prober.setDown(false)
	require.Eventually(t, func() bool { return m.State() == ConnectivityHealthy }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, state.SimulationMode())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *signals, 2)
	assert.Equal(t, ConnectivityHealthy, (*signals)[1].Connectivity)
}

func TestHealthMonitor_RunProbesEagerly(t *testing.T) {
	prober := &scriptedProber{}
	m, _, _, _ := newTestMonitor(t, prober, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool { return prober.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return m.State() == ConnectivityHealthy }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return prober.count() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestHealthMonitor_CanceledProbeKeepsState(t *testing.T) {
	prober := &scriptedProber{}
	m, _, signals, mu := newTestMonitor(t, prober, time.Hour)
	require.Equal(t, ConnectivityHealthy, m.Check(context.Background()))

	prober.setDown(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, ConnectivityHealthy, m.Check(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, *signals, 1)
}

func TestConnectivity_String(t *testing.T) {
	assert.Equal(t, "unknown", ConnectivityUnknown.String())
	assert.Equal(t, "healthy", ConnectivityHealthy.String())
	assert.Equal(t, "degraded", ConnectivityDegraded.String())
	assert.True(t, errors.Is(newEscalationError("GET", "/health", nil), ErrBackendUnreachable))
}
