package gateway

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/birbparty/nestlink/internal/telemetry"
)

// forwardedHeaders are copied from the browser request to the backend.
// Origin and cookies stay behind: the backend sees a server-to-server call.
var forwardedHeaders = []string{
	fiber.HeaderAuthorization,
	fiber.HeaderContentType,
	fiber.HeaderAccept,
	fiber.HeaderUserAgent,
}

// Forwarder relays requests under the gateway prefix to the backend
type Forwarder struct {
	backend string
	timeout time.Duration
	client  *fasthttp.Client
	metrics *telemetry.HTTPMetrics
	logger  logrus.FieldLogger
}

// NewForwarder creates a forwarder for cfg.BackendURL
func NewForwarder(cfg *Config, metrics *telemetry.HTTPMetrics, logger logrus.FieldLogger) *Forwarder {
	return &Forwarder{
		backend: strings.TrimRight(cfg.BackendURL, "/"),
		timeout: cfg.RequestTimeout,
		client: &fasthttp.Client{
			Name:                     "nestlink-gateway",
			MaxConnsPerHost:          256,
			MaxIdleConnDuration:      90 * time.Second,
			DisablePathNormalizing:   true,
			NoDefaultUserAgentHeader: true,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// target builds the backend URL for the wildcard part of the route
func (f *Forwarder) target(rest string, query []byte) string {
	var b strings.Builder
	b.WriteString(f.backend)
	b.WriteByte('/')
	b.WriteString(strings.TrimLeft(rest, "/"))
	if len(query) > 0 {
		b.WriteByte('?')
		b.Write(query)
	}
	return b.String()
}

// Handle forwards method, path, query, body and Authorization, and copies
// the backend's status and body back unchanged
func (f *Forwarder) Handle(c *fiber.Ctx) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	target := f.target(c.Params("*"), c.Request().URI().QueryString())
	req.SetRequestURI(target)
	req.Header.SetMethod(c.Method())
	for _, h := range forwardedHeaders {
		if v := c.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	if id := c.GetRespHeader(fiber.HeaderXRequestID); id != "" {
		req.Header.Set(fiber.HeaderXRequestID, id)
	}
	req.Header.Set(fiber.HeaderXForwardedFor, c.IP())
	if body := c.Body(); len(body) > 0 {
		req.SetBody(body)
	}

	if err := f.client.DoTimeout(req, resp, f.timeout); err != nil {
		return f.fail(c, target, err)
	}

	c.Status(resp.StatusCode())
	if ct := resp.Header.ContentType(); len(ct) > 0 {
		c.Set(fiber.HeaderContentType, string(ct))
	}
	// resp goes back to the pool when we return
	return c.Send(append([]byte(nil), resp.Body()...))
}

func (f *Forwarder) fail(c *fiber.Ctx, target string, err error) error {
	status, code, reason := fiber.StatusBadGateway, ErrCodeBackendUnreachable, "unreachable"
	if isTimeout(err) {
		status, code, reason = fiber.StatusGatewayTimeout, ErrCodeBackendTimeout, "timeout"
	}
	f.metrics.RecordUpstreamError(reason)

	f.logger.WithFields(logrus.Fields{
		"method":     c.Method(),
		"target":     target,
		"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
	}).WithError(err).Warn("backend request failed")

	return c.Status(status).JSON(NewErrorResponseWithDetails("backend request failed", code, err.Error()))
}

func isTimeout(err error) bool {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
