package sdk

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Common errors returned by the SDK. These can be used with errors.Is()
// to check for specific failure classes regardless of which transport
// produced them.
//
// Example:
//
//	_, err := client.Get(ctx, "/forum/discussions", &threads)
//	if errors.Is(err, sdk.ErrBackendUnreachable) {
//	    // every transport failed, show the simulation banner
//	} else if errors.Is(err, sdk.ErrAuthRejected) {
//	    // session was dropped, send the user to the login page
//	}
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidRequest is returned for descriptors that cannot be sent
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNetwork is returned when the remote end could not be reached
	ErrNetwork = errors.New("network error")

	// ErrTimeout is returned when a transport exceeded its time budget
	ErrTimeout = errors.New("request timeout")

	// ErrCors is returned when a response was blocked by cross-origin policy
	ErrCors = errors.New("blocked by cross-origin policy")

	// ErrAuthRejected is returned for 401/403 responses
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrServerError is returned for any other 4xx/5xx response
	ErrServerError = errors.New("server error")

	// ErrBackendUnreachable is returned when every transport was exhausted
	ErrBackendUnreachable = errors.New("backend unreachable")

	// ErrClosed is returned by a closed client
	ErrClosed = errors.New("client is closed")
)

// ErrorKind classifies a transport failure. The escalation controller only
// looks at the kind (and, for server errors, the status) to decide whether to
// try the next transport.
type ErrorKind int

const (
	// KindNone marks a successful result
	KindNone ErrorKind = iota
	// KindNetwork covers connection refused, DNS failures, resets
	KindNetwork
	// KindTimeout covers an exceeded transport budget
	KindTimeout
	// KindCors covers responses the client is not allowed to read cross-origin
	KindCors
	// KindAuthRejected covers 401 and 403 responses
	KindAuthRejected
	// KindServerError covers every other 4xx/5xx response
	KindServerError
	// KindUnknown covers everything that could not be classified
	KindUnknown
)

// String returns the string representation of the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindCors:
		return "cors"
	case KindAuthRejected:
		return "auth_rejected"
	case KindServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Error is a single classified transport failure.
//
// Example:
//
//	var sdkErr *sdk.Error
//	if errors.As(err, &sdkErr) {
//	    log.Printf("%s failed via %s: %s (status %d)",
//	        sdkErr.Op, sdkErr.Transport, sdkErr.Kind, sdkErr.Status)
//	}
type Error struct {
	// Kind categorizes the failure for escalation decisions
	Kind ErrorKind `json:"kind"`
	// Status is the HTTP status when the server answered, 0 otherwise
	Status int `json:"status,omitempty"`
	// Message is a human-readable description
	Message string `json:"message"`
	// Transport names the transport that produced the failure
	Transport string `json:"transport,omitempty"`
	// Op is "METHOD /path" of the logical call
	Op string `json:"op,omitempty"`
	// Timestamp is when the failure was observed
	Timestamp time.Time `json:"timestamp"`
	// wrapped is the underlying error, if any
	wrapped error
}

// NewError creates a classified error
func NewError(kind ErrorKind, message string, wrapped error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
		wrapped:   wrapped,
	}
}

// newStatusError classifies an HTTP status the way every transport does
func newStatusError(status int, body []byte) *Error {
	kind := KindServerError
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		kind = KindAuthRejected
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	err := NewError(kind, msg, nil)
	err.Status = status
	return err
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Transport != "" {
		b.WriteString(" via ")
		b.WriteString(e.Transport)
	}
	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteString(")")
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is implements errors.Is against the kind sentinels
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindNetwork:
		return target == ErrNetwork
	case KindTimeout:
		return target == ErrTimeout
	case KindCors:
		return target == ErrCors
	case KindAuthRejected:
		return target == ErrAuthRejected
	case KindServerError:
		return target == ErrServerError
	}
	return false
}

// Escalatable reports whether the next transport may be tried after this
// failure: network, timeout, cors and 404.
func (e *Error) Escalatable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindCors:
		return true
	case KindServerError:
		return e.Status == http.StatusNotFound
	}
	return false
}

// informativeness ranks failures; the highest one is surfaced to callers.
// A status from the server beats any transport-level failure.
func (e *Error) informativeness() int {
	switch e.Kind {
	case KindAuthRejected, KindServerError:
		if e.Status == http.StatusNotFound {
			return 4
		}
		return 5
	case KindTimeout:
		return 3
	case KindCors:
		return 2
	case KindNetwork:
		return 1
	}
	return 0
}

// Attempt records one transport try inside an escalation chain
type Attempt struct {
	Transport string
	Duration  time.Duration
	Err       *Error
}

// EscalationError is returned when every applicable transport failed.
// All attempts are kept for diagnostics; Last is the most informative one
// and is what errors.As/Is resolve to.
type EscalationError struct {
	Method   string
	Path     string
	Attempts []Attempt
	Last     *Error
	all      *multierror.Error
}

func newEscalationError(method, path string, attempts []Attempt) *EscalationError {
	ee := &EscalationError{Method: method, Path: path, Attempts: attempts}
	for _, a := range attempts {
		ee.all = multierror.Append(ee.all, a.Err)
		if ee.Last == nil || a.Err.informativeness() >= ee.Last.informativeness() {
			ee.Last = a.Err
		}
	}
	return ee
}

// Error implements the error interface
func (e *EscalationError) Error() string {
	head := fmt.Sprintf("%s %s: all transports exhausted", e.Method, e.Path)
	if e.IsMutation() {
		head = fmt.Sprintf("%s %s was not applied: the backend is unreachable, retry once connectivity is restored", e.Method, e.Path)
	}
	if e.Last == nil {
		return head
	}
	return head + ": " + e.Last.Error()
}

// Unwrap exposes the most informative underlying failure
func (e *EscalationError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// Is matches ErrBackendUnreachable
func (e *EscalationError) Is(target error) bool {
	return target == ErrBackendUnreachable
}

// IsMutation reports whether the failed call would have changed server state
func (e *EscalationError) IsMutation() bool {
	return e.Method != http.MethodGet
}

// Details returns every attempt's failure joined in order
func (e *EscalationError) Details() string {
	if e.all == nil {
		return ""
	}
	e.all.ErrorFormat = func(errs []error) string {
		parts := make([]string, len(errs))
		for i, err := range errs {
			parts[i] = err.Error()
		}
		return strings.Join(parts, "; ")
	}
	return e.all.Error()
}

// IsAuthRejected reports whether err is a 401/403 failure
func IsAuthRejected(err error) bool {
	return errors.Is(err, ErrAuthRejected)
}

// IsUnreachable reports whether err means no transport could reach the backend
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrBackendUnreachable)
}

// StatusCode extracts the HTTP status from err, 0 when there was none
func StatusCode(err error) int {
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.Status
	}
	return 0
}
