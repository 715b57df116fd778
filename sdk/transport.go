package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"
)

// TransportRole tells the controller where a transport sits in the
// escalation order.
type TransportRole int

const (
	// RoleDirect targets the primary base address
	RoleDirect TransportRole = iota
	// RoleGateway targets the same-origin forwarding function
	RoleGateway
	// RoleFallback targets the hard-coded absolute backend address
	RoleFallback
	// RoleRelay goes through public CORS relays, GET only
	RoleRelay
)

// String returns the string representation of the role
func (r TransportRole) String() string {
	switch r {
	case RoleDirect:
		return "direct"
	case RoleGateway:
		return "gateway"
	case RoleFallback:
		return "fallback"
	case RoleRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// Transport physically delivers a prepared request. Implementations enforce
// their own time budget and always report through TransportResult; they never
// return Go errors.
type Transport interface {
	Name() string
	Role() TransportRole
	Send(ctx context.Context, req PreparedRequest) TransportResult
}

// rawResponse is what a platform doer hands back
type rawResponse struct {
	Status int
	Header http.Header
	Body   []byte
	// corsEnforced is set when the platform already applied CORS
	corsEnforced bool
}

// doer performs one HTTP exchange. native.go implements it with net/http,
// wasm.go with the browser's fetch API.
type doer interface {
	do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*rawResponse, error)
}

// httpTransport is the direct, gateway and fallback transport. They only
// differ in base address, budget, and role.
type httpTransport struct {
	name    string
	role    TransportRole
	base    string
	timeout time.Duration
	origin  string
	headers map[string]string
	client  doer
}

// NewDirectTransport targets the primary base address
func NewDirectTransport(config *Config) Transport {
	return newHTTPTransport("direct", RoleDirect, config.BaseURL, config.DirectTimeout, config)
}

// NewGatewayTransport targets the same-origin gateway
func NewGatewayTransport(config *Config) Transport {
	return newHTTPTransport("gateway", RoleGateway, config.GatewayURL, config.GatewayTimeout, config)
}

// NewFallbackTransport targets the absolute fallback backend address
func NewFallbackTransport(config *Config) Transport {
	return newHTTPTransport("fallback", RoleFallback, config.FallbackURL, config.FallbackTimeout, config)
}

func newHTTPTransport(name string, role TransportRole, base string, timeout time.Duration, config *Config) *httpTransport {
	return &httpTransport{
		name:    name,
		role:    role,
		base:    base,
		timeout: timeout,
		origin:  config.Origin,
		headers: config.Headers,
		client:  newDoer(config),
	}
}

func (t *httpTransport) Name() string        { return t.name }
func (t *httpTransport) Role() TransportRole { return t.role }

// Send performs the request against base + canonical path
func (t *httpTransport) Send(ctx context.Context, req PreparedRequest) TransportResult {
	target := JoinBase(t.base, req.Canonical)
	headers := buildHeaders(t.headers, req)

	resp, err := exchange(ctx, t.client, t.timeout, req.Method, target, headers, req.Encoded())
	if err != nil {
		err.Op = req.Op()
		return failureResult(t.name, err)
	}
	if cerr := checkCORS(t.origin, target, resp); cerr != nil {
		cerr.Op = req.Op()
		return failureResult(t.name, cerr)
	}
	return classifyResponse(t.name, req, resp)
}

// exchange runs one doer call under its own budget. The deferred cancel
// releases the budget timer no matter how the call ends.
func exchange(ctx context.Context, client doer, timeout time.Duration, method, target string, headers map[string]string, body []byte) (*rawResponse, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.do(attemptCtx, method, target, headers, body)
	if err == nil {
		return resp, nil
	}
	return nil, classifyError(ctx, attemptCtx, err)
}

// classifyError maps a doer failure onto an ErrorKind
func classifyError(parent, attempt context.Context, err error) *Error {
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr
	}
	if parent.Err() != nil {
		// The caller gave up; this is not the transport's fault
		return NewError(KindUnknown, "request canceled by caller", parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || attempt.Err() == context.DeadlineExceeded {
		return NewError(KindTimeout, "transport budget exceeded", err)
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return NewError(KindTimeout, "transport budget exceeded", err)
	}
	return NewError(KindNetwork, err.Error(), err)
}

func buildHeaders(defaults map[string]string, req PreparedRequest) map[string]string {
	headers := map[string]string{
		"Accept": "application/json",
	}
	if req.Encoded() != nil {
		headers["Content-Type"] = "application/json"
	}
	for k, v := range defaults {
		headers[k] = v
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	if req.RequestID != "" {
		headers["X-Request-ID"] = req.RequestID
	}
	return headers
}

// checkCORS emulates browser enforcement: a cross-origin response is only
// readable when it allows our origin. Same-origin targets and clients without
// an origin are never blocked.
func checkCORS(origin, target string, resp *rawResponse) *Error {
	if origin == "" || resp.corsEnforced || sameOrigin(origin, target) {
		return nil
	}
	allowed := resp.Header.Get("Access-Control-Allow-Origin")
	if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), strings.TrimRight(origin, "/")) {
		return nil
	}
	return NewError(KindCors, "response does not allow origin "+origin, nil)
}

func sameOrigin(origin, target string) bool {
	origin = strings.TrimRight(strings.ToLower(origin), "/")
	target = strings.ToLower(target)
	return target == origin || strings.HasPrefix(target, origin+"/")
}

// classifyResponse turns an HTTP answer into a result: 2xx success,
// 401/403 auth rejection, anything else a server error carrying its status.
// A 2xx body that is neither valid JSON nor declared as something else (an
// HTML page from a captive portal, or JSON that does not parse) is Unknown.
func classifyResponse(transport string, req PreparedRequest, resp *rawResponse) TransportResult {
	if resp.Status < 200 || resp.Status >= 300 {
		err := newStatusError(resp.Status, resp.Body)
		err.Op = req.Op()
		return failureResult(transport, err)
	}
	if len(resp.Body) > 0 && !json.Valid(resp.Body) && unreadableBody(resp.Header) {
		err := NewError(KindUnknown, "unexpected non-JSON response body", nil)
		err.Status = resp.Status
		err.Op = req.Op()
		return failureResult(transport, err)
	}
	return successResult(transport, resp.Status, resp.Body)
}

// unreadableBody reports whether a non-JSON 2xx body means the answer did not
// come from the backend's API: an HTML page, or a body claiming to be JSON.
// Plain text and other declared types are taken as the backend's answer.
func unreadableBody(header http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		return true
	}
	return mediaType == "text/html" || mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
