package telemetry

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/birbparty/nestlink/sdk"
)

// PrometheusObserver exports escalation behavior as Prometheus metrics.
// It implements sdk.Observer.
//
//	observer := telemetry.NewPrometheusObserver(prometheus.DefaultRegisterer)
//	client, _ := sdk.NewClient(sdk.DefaultConfig().WithObserver(observer))
type PrometheusObserver struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	attemptsTotal    *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	escalationsTotal *prometheus.CounterVec
	gatewayPreferred prometheus.Gauge
	connectivity     prometheus.Gauge
	connectivityFlip *prometheus.CounterVec
}

// NewPrometheusObserver registers the access layer metrics on reg
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	f := promauto.With(reg)
	return &PrometheusObserver{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nestlink_requests_total",
			Help: "Logical calls by method and outcome",
		}, []string{"method", "outcome"}),

		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nestlink_request_duration_seconds",
			Help:    "Duration of logical calls across every attempt",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60},
		}, []string{"method"}),

		attemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nestlink_attempts_total",
			Help: "Transport attempts by transport and error kind",
		}, []string{"transport", "kind"}),

		attemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nestlink_attempt_duration_seconds",
			Help:    "Duration of single transport attempts",
			Buckets: prometheus.DefBuckets,
		}, []string{"transport"}),

		escalationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nestlink_escalations_total",
			Help: "Failed attempts that moved the call to the next transport",
		}, []string{"from"}),

		gatewayPreferred: f.NewGauge(prometheus.GaugeOpts{
			Name: "nestlink_gateway_preferred",
			Help: "1 once the direct transport has been abandoned",
		}),

		connectivity: f.NewGauge(prometheus.GaugeOpts{
			Name: "nestlink_connectivity",
			Help: "Health monitor state: 0 unknown, 1 healthy, 2 degraded",
		}),

		connectivityFlip: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nestlink_connectivity_changes_total",
			Help: "Health monitor state changes by new state",
		}, []string{"state"}),
	}
}

// OnRequestStart is a no-op; calls are counted when they end
func (p *PrometheusObserver) OnRequestStart(method, path string) {}

// OnRequestEnd records the outcome of a logical call
func (p *PrometheusObserver) OnRequestEnd(method, path string, duration time.Duration, err error) {
	outcome := "success"
	switch {
	case sdk.IsUnreachable(err):
		outcome = "unreachable"
	case err != nil:
		outcome = "error"
	}
	p.requestsTotal.WithLabelValues(method, outcome).Inc()
	p.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// OnAttempt records one transport attempt
func (p *PrometheusObserver) OnAttempt(method, path, transport string, duration time.Duration, err error) {
	kind := sdk.KindNone
	var sdkErr *sdk.Error
	if errors.As(err, &sdkErr) {
		kind = sdkErr.Kind
		if sdkErr.Escalatable() {
			p.escalationsTotal.WithLabelValues(transport).Inc()
		}
	} else if err != nil {
		kind = sdk.KindUnknown
	}
	p.attemptsTotal.WithLabelValues(transport, kind.String()).Inc()
	p.attemptDuration.WithLabelValues(transport).Observe(duration.Seconds())
}

// OnGatewayPreferred flips the gauge
func (p *PrometheusObserver) OnGatewayPreferred() {
	p.gatewayPreferred.Set(1)
}

// OnConnectivityChange tracks the monitor state
func (p *PrometheusObserver) OnConnectivityChange(oldState, newState sdk.Connectivity) {
	p.connectivity.Set(float64(newState))
	p.connectivityFlip.WithLabelValues(newState.String()).Inc()
}

// HTTPMetrics are the gateway's request metrics
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
}

// NewHTTPMetrics registers the gateway metrics on reg
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	f := promauto.With(reg)
	return &HTTPMetrics{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nestlink_gateway_requests_total",
			Help: "Total number of gateway requests",
		}, []string{"method", "status"}),

		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nestlink_gateway_request_duration_seconds",
			Help:    "Duration of gateway requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),

		upstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nestlink_gateway_upstream_errors_total",
			Help: "Forwarding failures by reason",
		}, []string{"reason"}),
	}
}

// RecordRequest records a served request
func (m *HTTPMetrics) RecordRequest(method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordUpstreamError records a request the backend never answered
func (m *HTTPMetrics) RecordUpstreamError(reason string) {
	m.upstreamErrors.WithLabelValues(reason).Inc()
}
