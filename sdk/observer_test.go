package sdk

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCollector(t *testing.T) {
	m := NewMetricsCollector()

	m.OnRequestStart("GET", "/forum/discussions")
	m.OnAttempt("GET", "/forum/discussions", "direct", 5*time.Millisecond, errors.New("blocked"))
	m.OnAttempt("GET", "/forum/discussions", "gateway", 8*time.Millisecond, nil)
	m.OnGatewayPreferred()
	m.OnRequestEnd("GET", "/forum/discussions", 13*time.Millisecond, nil)

	m.OnRequestStart("POST", "/forum/discussions")
	m.OnAttempt("POST", "/forum/discussions", "gateway", time.Millisecond, errors.New("down"))
	m.OnRequestEnd("POST", "/forum/discussions", time.Millisecond, errors.New("down"))

	m.OnConnectivityChange(ConnectivityUnknown, ConnectivityDegraded)

	snapshot := m.GetMetrics()
	assert.Equal(t, int64(1), snapshot["requests"].(map[string]int64)["GET /forum/discussions"])
	assert.Equal(t, int64(1), snapshot["errors"].(map[string]int64)["POST /forum/discussions"])
	assert.Equal(t, int64(0), snapshot["errors"].(map[string]int64)["GET /forum/discussions"])
	assert.Equal(t, map[string]int64{"direct": 1, "gateway": 2}, snapshot["attempts"])
	assert.Equal(t, map[string]int64{"direct": 1, "gateway": 1}, snapshot["attempt_failures"])
	assert.Equal(t, true, snapshot["gateway_preferred"])
	assert.Equal(t, int64(1), snapshot["connectivity_changes"])
	assert.Equal(t, "degraded", snapshot["connectivity"])
	assert.Len(t, snapshot["latencies"].(map[string][]time.Duration)["GET /forum/discussions"], 1)

	// The snapshot is a copy
	snapshot["attempts"].(map[string]int64)["direct"] = 99
	assert.Equal(t, int64(1), m.GetMetrics()["attempts"].(map[string]int64)["direct"])
}

type panickingObserver struct {
	NoopObserver
}

func (p *panickingObserver) OnAttempt(method, path, transport string, duration time.Duration, err error) {
	panic("observer bug")
}

func TestCompositeObserver_SurvivesPanics(t *testing.T) {
	first := NewMetricsCollector()
	last := NewMetricsCollector()
	composite := NewCompositeObserver(first, &panickingObserver{}, last)

	assert.NotPanics(t, func() {
		composite.OnAttempt("GET", "/health", "direct", time.Millisecond, nil)
	})
	composite.OnGatewayPreferred()

	for _, m := range []*MetricsCollector{first, last} {
		snapshot := m.GetMetrics()
		assert.Equal(t, int64(1), snapshot["attempts"].(map[string]int64)["direct"])
		assert.Equal(t, true, snapshot["gateway_preferred"])
	}
}
