package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// Relay is one public cross-origin relay service. Wrap builds the relay URL
// for a fully-qualified target, Unwrap extracts the target's answer from the
// relay's answer.
type Relay interface {
	Name() string
	Wrap(target string) string
	Unwrap(raw []byte) (Unwrapped, error)
}

// Unwrapped is the target's answer as reported by a relay. Status and
// ContentType are zero when the relay passes the target through untouched;
// the relay's own response then stands for the target's.
type Unwrapped struct {
	Body        []byte
	Status      int
	ContentType string
}

// prefixRelay covers every relay that works by prefixing the target URL.
// When field is set the relay answers with a JSON envelope and the target's
// body is the string in that field.
type prefixRelay struct {
	name   string
	prefix string
	encode bool
	field  string
}

// NewPrefixRelay creates a relay that prefixes the (optionally URL-encoded)
// target. field names the JSON envelope field holding the body, "" for relays
// that pass the body through untouched.
func NewPrefixRelay(name, prefix string, encode bool, field string) Relay {
	return &prefixRelay{name: name, prefix: prefix, encode: encode, field: field}
}

// DefaultRelays returns the ordered relay registry
func DefaultRelays() []Relay {
	return []Relay{
		NewPrefixRelay("allorigins", "https://api.allorigins.win/get?url=", true, "contents"),
		NewPrefixRelay("corsproxy", "https://corsproxy.io/?", true, ""),
		NewPrefixRelay("codetabs", "https://api.codetabs.com/v1/proxy?quest=", true, ""),
	}
}

func (r *prefixRelay) Name() string { return r.name }

func (r *prefixRelay) Wrap(target string) string {
	if r.encode {
		return r.prefix + url.QueryEscape(target)
	}
	return r.prefix + target
}

// envelopeStatus is the target metadata enveloping relays report next to
// the body, e.g. allorigins' {"status": {"http_code": 404}}
type envelopeStatus struct {
	HTTPCode    int    `json:"http_code"`
	ContentType string `json:"content_type"`
}

func (r *prefixRelay) Unwrap(raw []byte) (Unwrapped, error) {
	if r.field == "" {
		return Unwrapped{Body: raw}, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Unwrapped{}, fmt.Errorf("%s: malformed envelope: %w", r.name, err)
	}
	inner, ok := envelope[r.field]
	if !ok {
		return Unwrapped{}, fmt.Errorf("%s: envelope has no %q field", r.name, r.field)
	}
	if string(bytes.TrimSpace(inner)) == "null" {
		return Unwrapped{}, fmt.Errorf("%s: target returned no content", r.name)
	}

	var out Unwrapped
	if meta, ok := envelope["status"]; ok {
		var st envelopeStatus
		if err := json.Unmarshal(meta, &st); err == nil {
			out.Status = st.HTTPCode
			out.ContentType = st.ContentType
		}
	}

	// The field is normally a JSON string holding the target's body
	var body string
	if err := json.Unmarshal(inner, &body); err != nil {
		out.Body = inner
		return out, nil
	}
	out.Body = []byte(body)
	return out, nil
}

// RelayTransport tries each relay in registry order until one returns a
// 2xx. Failing relays are skipped, never retried. It only serves GET and
// never forwards the Authorization header to third parties.
type RelayTransport struct {
	target  string
	relays  []Relay
	timeout time.Duration
	headers map[string]string
	client  doer
	logger  logrus.FieldLogger
}

// NewRelayTransport wraps FallbackURL + canonical path in each relay
func NewRelayTransport(config *Config) *RelayTransport {
	return &RelayTransport{
		target:  config.FallbackURL,
		relays:  config.Relays,
		timeout: config.RelayTimeout,
		headers: config.Headers,
		client:  newDoer(config),
		logger:  config.Logger,
	}
}

func (t *RelayTransport) Name() string        { return "relay" }
func (t *RelayTransport) Role() TransportRole { return RoleRelay }

// Relays returns the registry in the order it is tried
func (t *RelayTransport) Relays() []Relay {
	return t.relays
}

// Send walks the registry. The result of the first relay that answers 2xx
// with a readable body wins; when every relay fails the last failure is
// reported, as a Network failure if no relay produced anything better.
func (t *RelayTransport) Send(ctx context.Context, req PreparedRequest) TransportResult {
	if req.Method != http.MethodGet {
		err := NewError(KindUnknown, "relays only serve GET requests", nil)
		err.Op = req.Op()
		return failureResult(t.Name(), err)
	}
	if len(t.relays) == 0 {
		err := NewError(KindNetwork, "no relays configured", nil)
		err.Op = req.Op()
		return failureResult(t.Name(), err)
	}

	target := JoinBase(t.target, req.Canonical)
	headers := map[string]string{"Accept": "application/json"}
	for k, v := range t.headers {
		headers[k] = v
	}
	if req.RequestID != "" {
		headers["X-Request-ID"] = req.RequestID
	}

	var last *Error
	for _, relay := range t.relays {
		if ctx.Err() != nil {
			break
		}
		name := t.Name() + ":" + relay.Name()
		result := t.try(ctx, relay, target, headers, req)
		if result.Success {
			result.Transport = name
			return result
		}
		result.Err.Transport = name
		last = result.Err

		if t.logger != nil {
			t.logger.WithFields(logrus.Fields{
				"relay":      relay.Name(),
				"path":       req.Canonical,
				"error_kind": result.Kind.String(),
				"status":     result.StatusCode,
				"request_id": req.RequestID,
			}).Debug("relay failed, trying next")
		}
	}

	if last == nil {
		last = NewError(KindUnknown, "request canceled by caller", ctx.Err())
	}
	if last.Kind != KindTimeout && last.Kind != KindUnknown {
		// A relay's own status says nothing about the backend; report the
		// exhausted list as unreachable
		wrapped := NewError(KindNetwork, "every relay failed: "+last.Message, last)
		wrapped.Status = last.Status
		last = wrapped
	}
	last.Op = req.Op()
	return failureResult(t.Name(), last)
}

func (t *RelayTransport) try(ctx context.Context, relay Relay, target string, headers map[string]string, req PreparedRequest) TransportResult {
	resp, err := exchange(ctx, t.client, t.timeout, http.MethodGet, relay.Wrap(target), headers, nil)
	if err != nil {
		err.Op = req.Op()
		return failureResult(relay.Name(), err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		serr := newStatusError(resp.Status, resp.Body)
		serr.Op = req.Op()
		return failureResult(relay.Name(), serr)
	}
	unwrapped, uerr := relay.Unwrap(resp.Body)
	if uerr != nil {
		e := NewError(KindUnknown, uerr.Error(), uerr)
		e.Op = req.Op()
		return failureResult(relay.Name(), e)
	}

	answer := &rawResponse{Status: resp.Status, Header: resp.Header, Body: unwrapped.Body}
	if unwrapped.Status != 0 {
		answer.Status = unwrapped.Status
	}
	if unwrapped.ContentType != "" || unwrapped.Status != 0 {
		// The relay's own headers describe the envelope, not the target
		answer.Header = http.Header{}
		if unwrapped.ContentType != "" {
			answer.Header.Set("Content-Type", unwrapped.ContentType)
		}
	}
	return classifyResponse(relay.Name(), req, answer)
}
