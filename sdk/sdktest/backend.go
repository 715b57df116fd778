// Package sdktest provides configurable HTTP doubles of the forum backend
// and of public CORS relays, for testing code that uses the sdk package.
package sdktest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// HandlerFunc answers a request with a status and a JSON-encodable body
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (int, interface{})

// RecordedRequest stores information about a received request
type RecordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
	Time    time.Time
}

// Backend is a test HTTP server speaking the backend's JSON contract
type Backend struct {
	*httptest.Server
	mu           sync.RWMutex
	handlers     map[string]HandlerFunc
	allowOrigin  string
	requestCount atomic.Int32
	requests     []RecordedRequest
}

// NewBackend starts a backend with the default forum handlers:
// GET /health, POST /auth/login, GET and POST /forum/discussions,
// GET /social/profile (requires "Bearer valid-token").
func NewBackend() *Backend {
	b := &Backend{
		handlers: make(map[string]HandlerFunc),
		requests: make([]RecordedRequest, 0),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handleRequest)

	b.Server = httptest.NewServer(mux)
	b.setupDefaultHandlers()

	return b
}

func (b *Backend) setupDefaultHandlers() {
	b.Handle("GET /health", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"service": "forum-api",
		}
	})

	b.Handle("POST /auth/login", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		var creds struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret" {
			return http.StatusUnauthorized, map[string]string{"error": "invalid credentials"}
		}
		return http.StatusOK, map[string]interface{}{
			"token": "valid-token",
			"user": map[string]interface{}{
				"id":   42,
				"role": "member",
				"name": "Ada",
			},
		}
	})

	b.Handle("GET /forum/discussions", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, []map[string]interface{}{
			{"id": "d-1", "title": "Welcome"},
			{"id": "d-2", "title": "Spring migration"},
		}
	})

	b.Handle("POST /forum/discussions", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["title"] == nil {
			return http.StatusUnprocessableEntity, map[string]string{"error": "title is required"}
		}
		return http.StatusCreated, map[string]interface{}{
			"id":    "d-3",
			"title": body["title"],
		}
	})

	b.Handle("GET /social/profile", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		if r.Header.Get("Authorization") != "Bearer valid-token" {
			return http.StatusUnauthorized, map[string]string{"error": "token expired"}
		}
		return http.StatusOK, map[string]interface{}{
			"id":           "42",
			"display_name": "Ada",
		}
	})
}

// Handle registers a handler for "METHOD /path". A pattern ending in "/"
// also matches every path below it.
func (b *Backend) Handle(pattern string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pattern] = handler
}

// AllowOrigin makes every response carry Access-Control-Allow-Origin
func (b *Backend) AllowOrigin(origin string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowOrigin = origin
}

func (b *Backend) handleRequest(w http.ResponseWriter, r *http.Request) {
	body := make([]byte, 0)
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	b.mu.Lock()
	b.requests = append(b.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
		Body:    body,
		Time:    time.Now(),
	})
	allowOrigin := b.allowOrigin
	b.mu.Unlock()

	b.requestCount.Add(1)

	pattern := r.Method + " " + r.URL.Path
	b.mu.RLock()
	handler, exact := b.handlers[pattern]
	if !exact {
		for p, h := range b.handlers {
			if strings.HasSuffix(p, "/") && strings.HasPrefix(pattern, p) {
				handler = h
				break
			}
		}
	}
	b.mu.RUnlock()

	if allowOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
	}

	if handler == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "Not found",
			"code":  "NOT_FOUND",
		})
		return
	}

	status, response := handler(w, r)
	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// RequestCount returns the total number of requests received
func (b *Backend) RequestCount() int {
	return int(b.requestCount.Load())
}

// Requests returns all recorded requests
func (b *Backend) Requests() []RecordedRequest {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]RecordedRequest, len(b.requests))
	copy(result, b.requests)
	return result
}

// Reset clears all recorded requests
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requestCount.Store(0)
	b.requests = b.requests[:0]
}

// WithErrorResponse sets up a handler that returns an error status
func (b *Backend) WithErrorResponse(pattern string, statusCode int, errorMsg string) {
	b.Handle(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return statusCode, map[string]string{
			"error": errorMsg,
			"code":  http.StatusText(statusCode),
		}
	})
}

// WithDelayedResponse sets up a handler that delays before responding
func (b *Backend) WithDelayedResponse(pattern string, delay time.Duration, handler HandlerFunc) {
	b.Handle(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
		}
		return handler(w, r)
	})
}

// WithFailingHealth makes /health fail the first n probes
func (b *Backend) WithFailingHealth(n int) {
	var probes atomic.Int32
	b.Handle("GET /health", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		if int(probes.Add(1)) <= n {
			return http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"}
		}
		return http.StatusOK, map[string]string{"status": "healthy"}
	})
}

// Close shuts down the backend
func (b *Backend) Close() {
	if b.Server != nil {
		b.Server.Close()
	}
}
