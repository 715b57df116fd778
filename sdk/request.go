package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// RequestDescriptor describes one logical API call independent of the
// transport that ends up serving it. It is a value type: every derived form
// (normalized path, auth header) is a new copy, so a rewrite done for one
// transport never leaks into another.
//
// Example:
//
//	req := sdk.NewRequest(http.MethodPost, "/forum/discussions", map[string]string{
//	    "title": "Spring migration",
//	})
type RequestDescriptor struct {
	Method  string
	Path    string
	Body    interface{}
	Headers map[string]string
}

// NewRequest builds a descriptor with an empty header set
func NewRequest(method, path string, body interface{}) RequestDescriptor {
	return RequestDescriptor{
		Method:  strings.ToUpper(method),
		Path:    path,
		Body:    body,
		Headers: map[string]string{},
	}
}

// WithHeader returns a copy of the descriptor with the header set
func (r RequestDescriptor) WithHeader(key, value string) RequestDescriptor {
	headers := make(map[string]string, len(r.Headers)+1)
	for k, v := range r.Headers {
		headers[k] = v
	}
	headers[key] = value
	r.Headers = headers
	return r
}

// WithPath returns a copy of the descriptor with a different path
func (r RequestDescriptor) WithPath(path string) RequestDescriptor {
	r.Path = path
	return r
}

// Header returns a header value, matching the name case-insensitively
func (r RequestDescriptor) Header(key string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Validate checks the method is one of GET/POST/PUT/DELETE
func (r RequestDescriptor) Validate() error {
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return fmt.Errorf("%w: unsupported method %q", ErrInvalidRequest, r.Method)
	}
	if r.Method == http.MethodGet && r.Body != nil {
		return fmt.Errorf("%w: GET cannot carry a body", ErrInvalidRequest)
	}
	return nil
}

// Op returns "METHOD /path" for logs and errors
func (r RequestDescriptor) Op() string {
	return r.Method + " " + r.Path
}

// PreparedRequest is what a transport receives: the descriptor after
// normalization and auth attachment, with the body already encoded.
type PreparedRequest struct {
	RequestDescriptor
	// Canonical is the normalized logical path
	Canonical string
	// RequestID correlates every attempt of one logical call
	RequestID string
	// body is the JSON-encoded body, nil when there is none
	body []byte
}

// Encoded returns the JSON body bytes
func (p PreparedRequest) Encoded() []byte {
	return p.body
}

func prepare(desc RequestDescriptor, canonical, requestID string) (PreparedRequest, error) {
	p := PreparedRequest{
		RequestDescriptor: desc,
		Canonical:         canonical,
		RequestID:         requestID,
	}
	if desc.Body != nil {
		switch b := desc.Body.(type) {
		case []byte:
			p.body = b
		case json.RawMessage:
			p.body = b
		default:
			data, err := json.Marshal(desc.Body)
			if err != nil {
				return p, fmt.Errorf("%w: failed to marshal request body: %v", ErrInvalidRequest, err)
			}
			p.body = data
		}
	}
	return p, nil
}

// TransportResult is the uniform outcome every transport reports, so the
// controller never needs transport-specific branches.
type TransportResult struct {
	Success    bool
	StatusCode int
	Payload    json.RawMessage
	Kind       ErrorKind
	Err        *Error
	Transport  string
}

func successResult(transport string, status int, payload []byte) TransportResult {
	return TransportResult{
		Success:    true,
		StatusCode: status,
		Payload:    json.RawMessage(payload),
		Kind:       KindNone,
		Transport:  transport,
	}
}

func failureResult(transport string, err *Error) TransportResult {
	err.Transport = transport
	return TransportResult{
		StatusCode: err.Status,
		Kind:       err.Kind,
		Err:        err,
		Transport:  transport,
	}
}

// Decode unmarshals the payload into dest. An empty payload leaves dest
// untouched.
func (r TransportResult) Decode(dest interface{}) error {
	if dest == nil || len(r.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Payload, dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
