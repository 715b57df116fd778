package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/nestlink/sdk"
	"github.com/birbparty/nestlink/sdk/sdktest"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig(backendURL string) *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            8888,
		BackendURL:      backendURL,
		Prefix:          "/.netlify/functions/api",
		AllowOrigins:    []string{"http://localhost:3000"},
		RequestTimeout:  200 * time.Millisecond,
		ShutdownTimeout: time.Second,
		HealthInterval:  time.Minute,
		MetricsPath:     "/metrics",
	}
}

func newTestServer(t *testing.T, backendURL string) *Server {
	t.Helper()
	s, err := New(testConfig(backendURL), prometheus.NewRegistry(), quietLogger())
	require.NoError(t, err)
	return s
}

func deadURL() string {
	server := httptest.NewServer(http.NotFoundHandler())
	u := server.URL
	server.Close()
	return u
}

func TestGateway_ForwardsGet(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()
	s := newTestServer(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/.netlify/functions/api/forum/discussions?page=2", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var threads []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&threads))
	assert.Len(t, threads, 2)

	recorded := backend.Requests()
	require.Len(t, recorded, 1)
	assert.Equal(t, "/forum/discussions", recorded[0].Path)
	assert.Equal(t, "page=2", recorded[0].Query)
	assert.Equal(t, resp.Header.Get("X-Request-ID"), recorded[0].Headers.Get("X-Request-ID"))
	assert.Empty(t, recorded[0].Headers.Get("Origin"))
}

func TestGateway_ForwardsPostWithAuthorization(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()
	s := newTestServer(t, backend.URL)

	req := httptest.NewRequest(http.MethodPost, "/.netlify/functions/api/forum/discussions", strings.NewReader(`{"title":"Spring migration"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer valid-token")
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "d-3", created["id"])

	recorded := backend.Requests()
	require.Len(t, recorded, 1)
	assert.Equal(t, http.MethodPost, recorded[0].Method)
	assert.Equal(t, "Bearer valid-token", recorded[0].Headers.Get("Authorization"))
	assert.JSONEq(t, `{"title":"Spring migration"}`, string(recorded[0].Body))
}

func TestGateway_PassesBackendErrorsThrough(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()
	s := newTestServer(t, backend.URL)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/.netlify/functions/api/social/profile", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "token expired")
}

func TestGateway_BackendFailures(t *testing.T) {
	slow := sdktest.NewBackend()
	defer slow.Close()
	slow.WithDelayedResponse("GET /forum/discussions", time.Second, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, []string{}
	})

	tests := []struct {
		name    string
		backend string
		status  int
		code    string
	}{
		{name: "unreachable", backend: deadURL(), status: http.StatusBadGateway, code: ErrCodeBackendUnreachable},
		{name: "timeout", backend: slow.URL, status: http.StatusGatewayTimeout, code: ErrCodeBackendTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.backend)

			resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/.netlify/functions/api/forum/discussions", nil), 2000)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestGateway_Health(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()

	resp, err := newTestServer(t, backend.URL).App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Backend)

	resp, err = newTestServer(t, deadURL()).App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), 2000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGateway_MetricsAndNotFound(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()
	s := newTestServer(t, backend.URL)

	_, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/.netlify/functions/api/health", nil))
	require.NoError(t, err)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "nestlink_gateway_requests_total")

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// A deployed sdk client whose direct route is down reaches the backend
// through a running gateway and sticks to it.
func TestGateway_ServesSDKGatewayTransport(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()
	s := newTestServer(t, backend.URL)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.App().Listener(ln) }()
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	client, err := sdk.NewClient(sdk.DefaultConfig().
		WithBaseURL(deadURL()).
		WithGatewayURL("http://"+ln.Addr().String()+"/.netlify/functions/api").
		WithDeployed(true).
		WithRelays().
		WithLogger(quietLogger()))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	_, err = client.Login(ctx, map[string]string{"email": "ada@example.com", "password": "secret"})
	require.NoError(t, err)
	assert.True(t, client.State().GatewayPreferred())

	profile, err := sdk.GetJSON[map[string]interface{}](ctx, client, "/api/social/profile")
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile["display_name"])
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing backend", mutate: func(c *Config) { c.BackendURL = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "prefix without slash", mutate: func(c *Config) { c.Prefix = "api" }, wantErr: true},
		{name: "prefix with trailing slash", mutate: func(c *Config) { c.Prefix = "/api/" }, wantErr: true},
		{name: "bad origin", mutate: func(c *Config) { c.AllowOrigins = []string{"not a url"} }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://backend.internal:8080")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://backend.internal:8080")
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOW_ORIGINS", "http://localhost:3000, https://forum.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/.netlify/functions/api", cfg.Prefix)
	assert.Equal(t, []string{"http://localhost:3000", "https://forum.example"}, cfg.AllowOrigins)
	assert.Equal(t, 9*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())

	t.Setenv("BACKEND_URL", "")
	_, err = LoadConfig()
	assert.Error(t, err)
}
