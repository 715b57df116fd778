package sdk

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/birbparty/nestlink/sdk"

// EscalationState is the state shared by every call of one client.
// gatewayPreferred only ever goes from false to true: once the direct
// transport has proven unreachable, later calls start at the gateway for the
// rest of the process lifetime.
type EscalationState struct {
	gatewayPreferred atomic.Bool
	simulationMode   atomic.Bool
	lastHealthCheck  atomic.Int64
}

// NewEscalationState creates a fresh state: direct first, not simulating
func NewEscalationState() *EscalationState {
	return &EscalationState{}
}

// PreferGateway sets the gateway flag. It reports whether this call is the
// one that flipped it.
func (s *EscalationState) PreferGateway() bool {
	return s.gatewayPreferred.CompareAndSwap(false, true)
}

// GatewayPreferred reports whether calls skip the direct transport
func (s *EscalationState) GatewayPreferred() bool {
	return s.gatewayPreferred.Load()
}

// SetSimulationMode records whether the backend is currently unreachable
func (s *EscalationState) SetSimulationMode(on bool) {
	s.simulationMode.Store(on)
}

// SimulationMode reports whether the last health probe failed
func (s *EscalationState) SimulationMode() bool {
	return s.simulationMode.Load()
}

// MarkHealthCheck records when a health probe completed
func (s *EscalationState) MarkHealthCheck(at time.Time) {
	s.lastHealthCheck.Store(at.UnixNano())
}

// LastHealthCheck returns when the last probe completed, zero if never
func (s *EscalationState) LastHealthCheck() time.Time {
	n := s.lastHealthCheck.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Controller runs one logical call through the transports in a fixed order:
// direct, gateway, fallback, then relays for GET. Transports are tried one
// at a time; the next one is only tried after a network, timeout, cors or
// 404 failure.
type Controller struct {
	normalizer *PathNormalizer
	auth       *AuthAttacher
	state      *EscalationState
	deployed   bool

	direct   Transport
	gateway  Transport
	fallback Transport
	relay    Transport

	logger   logrus.FieldLogger
	observer Observer
	tracer   trace.Tracer
}

// NewController wires a controller. When transports is empty the default
// set is built from config: direct always, gateway when GatewayURL is set,
// fallback when FallbackURL is set, relays when FallbackURL and Relays are
// set. Otherwise each transport is placed by its Role.
func NewController(config *Config, state *EscalationState, auth *AuthAttacher, transports ...Transport) *Controller {
	if state == nil {
		state = NewEscalationState()
	}
	c := &Controller{
		normalizer: NewPathNormalizer(config.StripPrefixes),
		auth:       auth,
		state:      state,
		deployed:   config.IsDeployed(),
		logger:     config.Logger,
		observer:   config.Observer,
		tracer:     otel.Tracer(tracerName),
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	if c.observer == nil {
		c.observer = &NoopObserver{}
	}

	if len(transports) == 0 {
		transports = defaultTransports(config)
	}
	for _, t := range transports {
		switch t.Role() {
		case RoleDirect:
			c.direct = t
		case RoleGateway:
			c.gateway = t
		case RoleFallback:
			c.fallback = t
		case RoleRelay:
			c.relay = t
		}
	}
	return c
}

func defaultTransports(config *Config) []Transport {
	transports := []Transport{NewDirectTransport(config)}
	if config.GatewayURL != "" {
		transports = append(transports, NewGatewayTransport(config))
	}
	if config.FallbackURL != "" {
		transports = append(transports, NewFallbackTransport(config))
		if len(config.Relays) > 0 {
			transports = append(transports, NewRelayTransport(config))
		}
	}
	return transports
}

// State returns the shared escalation state
func (c *Controller) State() *EscalationState {
	return c.state
}

// Normalize exposes the controller's path normalizer
func (c *Controller) Normalize(path string) string {
	return c.normalizer.Normalize(path)
}

// plan returns the transports to try for method, in order. The gateway is
// only part of the chain in a deployed context or once it is preferred.
func (c *Controller) plan(method string) []Transport {
	preferred := c.state.GatewayPreferred()
	plan := make([]Transport, 0, 4)
	if c.direct != nil && !preferred {
		plan = append(plan, c.direct)
	}
	if c.gateway != nil && (preferred || c.deployed) {
		plan = append(plan, c.gateway)
	}
	if c.fallback != nil {
		plan = append(plan, c.fallback)
	}
	if c.relay != nil && method == http.MethodGet {
		plan = append(plan, c.relay)
	}
	return plan
}

// Do performs one logical call. On success the result carries the payload
// and err is nil. A terminal failure (auth rejection, a non-404 server error,
// anything unclassified) is returned as *Error right away; running out of
// transports returns *EscalationError.
func (c *Controller) Do(ctx context.Context, desc RequestDescriptor) (TransportResult, error) {
	canonical := c.normalizer.Normalize(desc.Path)
	desc = desc.WithPath(canonical)
	if err := desc.Validate(); err != nil {
		return TransportResult{Kind: KindUnknown}, err
	}

	attached, session := c.auth.Attach(ctx, desc)
	req, err := prepare(attached, canonical, uuid.NewString())
	if err != nil {
		return TransportResult{Kind: KindUnknown}, err
	}

	ctx, span := c.tracer.Start(ctx, "nestlink "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("nestlink.path", canonical),
			attribute.String("nestlink.request_id", req.RequestID),
			attribute.Bool("nestlink.gateway_preferred", c.state.GatewayPreferred()),
		))
	defer span.End()

	start := time.Now()
	c.observer.OnRequestStart(req.Method, canonical)

	result, err := c.escalate(ctx, req, session)

	c.observer.OnRequestEnd(req.Method, canonical, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("nestlink.transport", result.Transport))
		span.SetStatus(codes.Ok, "")
	}
	return result, err
}

func (c *Controller) escalate(ctx context.Context, req PreparedRequest, session *Session) (TransportResult, error) {
	plan := c.plan(req.Method)
	if len(plan) == 0 {
		e := NewError(KindUnknown, "no transport configured", nil)
		e.Op = req.Op()
		return failureResult("none", e), e
	}

	attempts := make([]Attempt, 0, len(plan))
	for _, t := range plan {
		if err := ctx.Err(); err != nil {
			e := NewError(KindUnknown, "request canceled by caller", err)
			e.Op = req.Op()
			return failureResult(t.Name(), e), e
		}

		result, took := c.attempt(ctx, t, req)
		if result.Success {
			if len(attempts) > 0 {
				c.logger.WithFields(logrus.Fields{
					"transport":  result.Transport,
					"method":     req.Method,
					"path":       req.Canonical,
					"attempts":   len(attempts) + 1,
					"request_id": req.RequestID,
				}).Info("request succeeded after escalation")
			}
			return result, nil
		}

		failure := result.Err
		attempts = append(attempts, Attempt{Transport: t.Name(), Duration: took, Err: failure})
		c.logger.WithFields(logrus.Fields{
			"transport":   failure.Transport,
			"method":      req.Method,
			"path":        req.Canonical,
			"error_kind":  failure.Kind.String(),
			"status":      failure.Status,
			"duration_ms": took.Milliseconds(),
			"request_id":  req.RequestID,
		}).Warn(failure.Message)

		if t.Role() == RoleDirect && c.deployed && isConnectivityFailure(failure.Kind) {
			if c.state.PreferGateway() {
				c.logger.WithField("path", req.Canonical).Info("direct transport unreachable, routing later calls through the gateway")
				c.observer.OnGatewayPreferred()
			}
		}

		if !failure.Escalatable() {
			c.auth.OnResponse(ctx, req.Canonical, session, result)
			return result, failure
		}
	}

	ee := newEscalationError(req.Method, req.Canonical, attempts)
	c.logger.WithFields(logrus.Fields{
		"method":     req.Method,
		"path":       req.Canonical,
		"attempts":   len(attempts),
		"request_id": req.RequestID,
	}).Error(ee.Details())
	return failureResult(ee.Last.Transport, ee.Last), ee
}

// attempt sends req through one transport inside its own span
func (c *Controller) attempt(ctx context.Context, t Transport, req PreparedRequest) (TransportResult, time.Duration) {
	ctx, span := c.tracer.Start(ctx, "nestlink.attempt "+t.Name(),
		trace.WithAttributes(attribute.String("nestlink.transport", t.Name())))
	defer span.End()

	began := time.Now()
	result := t.Send(ctx, req)
	took := time.Since(began)

	var err error
	if !result.Success {
		if result.Err == nil {
			result = failureResult(t.Name(), NewError(result.Kind, "transport reported failure without detail", nil))
		}
		err = result.Err
		span.SetAttributes(attribute.String("nestlink.error_kind", result.Kind.String()))
		if result.StatusCode != 0 {
			span.SetAttributes(attribute.Int("http.status_code", result.StatusCode))
		}
		span.SetStatus(codes.Error, result.Err.Message)
	}
	c.observer.OnAttempt(req.Method, req.Canonical, t.Name(), took, err)
	return result, took
}

// isConnectivityFailure reports kinds that say the transport itself could
// not be reached, as opposed to the backend answering with an error
func isConnectivityFailure(kind ErrorKind) bool {
	return kind == KindNetwork || kind == KindCors || kind == KindTimeout
}
