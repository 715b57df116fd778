package sdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prepared(t *testing.T, method, path string, body interface{}) PreparedRequest {
	t.Helper()
	req, err := prepare(NewRequest(method, path, body), path, "req-1")
	require.NoError(t, err)
	return req
}

func directTo(t *testing.T, base string, mutate func(c *Config)) Transport {
	t.Helper()
	config := DefaultConfig().WithBaseURL(base)
	if mutate != nil {
		mutate(config)
	}
	require.NoError(t, config.Validate())
	return NewDirectTransport(config)
}

func TestHTTPTransport_Classification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		success     bool
		kind        ErrorKind
	}{
		{name: "ok", status: http.StatusOK, body: `{"ok":true}`, success: true, kind: KindNone},
		{name: "no content", status: http.StatusNoContent, success: true, kind: KindNone},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"expired"}`, kind: KindAuthRejected},
		{name: "forbidden", status: http.StatusForbidden, body: `{}`, kind: KindAuthRejected},
		{name: "not found", status: http.StatusNotFound, body: `{}`, kind: KindServerError},
		{name: "internal", status: http.StatusInternalServerError, body: `{}`, kind: KindServerError},
		{name: "html page", status: http.StatusOK, body: `<html>maintenance</html>`, kind: KindUnknown},
		{name: "plain text", status: http.StatusOK, contentType: "text/plain; charset=utf-8", body: `OK`, success: true, kind: KindNone},
		{name: "malformed json", status: http.StatusOK, contentType: "application/json", body: `{"ok":`, kind: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			result := directTo(t, server.URL, nil).Send(context.Background(), prepared(t, http.MethodGet, "/forum/discussions", nil))

			assert.Equal(t, tt.success, result.Success)
			assert.Equal(t, tt.kind, result.Kind)
			assert.Equal(t, tt.status, result.StatusCode)
			assert.Equal(t, "direct", result.Transport)
			if !tt.success {
				require.NotNil(t, result.Err)
				assert.Equal(t, "GET /forum/discussions", result.Err.Op)
			}
		})
	}
}

func TestHTTPTransport_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	transport := directTo(t, server.URL, func(c *Config) { c.DirectTimeout = 50 * time.Millisecond })

	start := time.Now()
	result := transport.Send(context.Background(), prepared(t, http.MethodGet, "/forum/discussions", nil))

	assert.Equal(t, KindTimeout, result.Kind)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHTTPTransport_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	result := directTo(t, base, nil).Send(context.Background(), prepared(t, http.MethodGet, "/health", nil))

	assert.False(t, result.Success)
	assert.Equal(t, KindNetwork, result.Kind)
}

func TestHTTPTransport_CallerCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := directTo(t, server.URL, nil).Send(ctx, prepared(t, http.MethodGet, "/health", nil))
	assert.Equal(t, KindUnknown, result.Kind)
}

func TestHTTPTransport_CorsEmulation(t *testing.T) {
	tests := []struct {
		name   string
		allow  string
		origin func(serverURL string) string
		kind   ErrorKind
	}{
		{name: "no origin configured", origin: func(string) string { return "" }, kind: KindNone},
		{name: "missing allow header", origin: func(string) string { return "https://forum.example" }, kind: KindCors},
		{name: "other origin allowed", allow: "https://elsewhere.example", origin: func(string) string { return "https://forum.example" }, kind: KindCors},
		{name: "origin allowed", allow: "https://forum.example", origin: func(string) string { return "https://forum.example" }, kind: KindNone},
		{name: "wildcard", allow: "*", origin: func(string) string { return "https://forum.example" }, kind: KindNone},
		{name: "same origin", origin: func(u string) string { return u }, kind: KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.allow != "" {
					w.Header().Set("Access-Control-Allow-Origin", tt.allow)
				}
				_, _ = w.Write([]byte(`[]`))
			}))
			defer server.Close()

			transport := directTo(t, server.URL, func(c *Config) { c.Origin = tt.origin(server.URL) })
			result := transport.Send(context.Background(), prepared(t, http.MethodGet, "/forum/discussions", nil))

			assert.Equal(t, tt.kind, result.Kind)
		})
	}
}

func TestHTTPTransport_Headers(t *testing.T) {
	var (
		mu   sync.Mutex
		seen http.Header
		path string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = r.Header.Clone()
		path = r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"d-3"}`))
	}))
	defer server.Close()

	transport := directTo(t, server.URL+"/api", func(c *Config) {
		c.Headers["X-Client"] = "forum-web"
		c.Origin = server.URL
	})
	req := prepared(t, http.MethodPost, "/forum/discussions", map[string]string{"title": "Hi"})
	req.Headers["Authorization"] = "Bearer valid-token"

	result := transport.Send(context.Background(), req)
	require.True(t, result.Success)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/api/forum/discussions", path)
	assert.Equal(t, "application/json", seen.Get("Content-Type"))
	assert.Equal(t, "application/json", seen.Get("Accept"))
	assert.Equal(t, "req-1", seen.Get("X-Request-ID"))
	assert.Equal(t, "forum-web", seen.Get("X-Client"))
	assert.Equal(t, "Bearer valid-token", seen.Get("Authorization"))
	assert.Equal(t, server.URL, seen.Get("Origin"))
	assert.Equal(t, "nestlink-go-sdk/1.0.0", seen.Get("User-Agent"))
}

func TestTransportRole_String(t *testing.T) {
	assert.Equal(t, "direct", RoleDirect.String())
	assert.Equal(t, "gateway", RoleGateway.String())
	assert.Equal(t, "fallback", RoleFallback.String())
	assert.Equal(t, "relay", RoleRelay.String())
	assert.Equal(t, "unknown", TransportRole(42).String())
}
