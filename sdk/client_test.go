package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/nestlink/sdk/sdktest"
)

func newTestClient(t *testing.T, config *Config) Client {
	t.Helper()
	config.WithLogger(newTestLogger()).WithRelays()
	c, err := NewClient(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func deadURL() string {
	server := httptest.NewServer(http.NotFoundHandler())
	u := server.URL
	server.Close()
	return u
}

func TestClient_CreateDiscussionOnFirstAttempt(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()

	client := newTestClient(t, DefaultConfig().WithBaseURL(backend.URL))

	var created struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	err := client.Post(context.Background(), "/api/forum/discussions", map[string]string{
		"title": "Spring migration",
		"body":  "Who is in?",
	}, &created)

	require.NoError(t, err)
	assert.Equal(t, "d-3", created.ID)
	assert.Equal(t, "Spring migration", created.Title)
	require.Equal(t, 1, backend.RequestCount())
	assert.Equal(t, "/forum/discussions", backend.Requests()[0].Path)
}

func TestClient_ValidationErrorIsNotEscalated(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()
	fallback := sdktest.NewBackend()
	defer fallback.Close()

	client := newTestClient(t, DefaultConfig().WithBaseURL(backend.URL).WithFallbackURL(fallback.URL))

	err := client.Post(context.Background(), "/forum/discussions", map[string]string{}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, http.StatusUnprocessableEntity, StatusCode(err))
	assert.Equal(t, 0, fallback.RequestCount())
}

func TestClient_LoginStoresSession(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()

	client := newTestClient(t, DefaultConfig().WithBaseURL(backend.URL))
	ctx := context.Background()

	session, err := client.Login(ctx, map[string]string{"email": "ada@example.com", "password": "secret"})
	require.NoError(t, err)
	assert.Equal(t, "valid-token", session.Token)
	assert.Equal(t, "42", session.UserID)
	assert.Equal(t, "member", session.Role)
	assert.Equal(t, "Ada", session.DisplayName)

	var profile struct {
		DisplayName string `json:"display_name"`
	}
	require.NoError(t, client.Get(ctx, "/social/profile", &profile))
	assert.Equal(t, "Ada", profile.DisplayName)

	require.NoError(t, client.Logout(ctx))
	current, err := client.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestClient_RejectedLoginKeepsExistingSession(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()

	client := newTestClient(t, DefaultConfig().WithBaseURL(backend.URL))
	ctx := context.Background()

	var signals []Signal
	client.Signals().Subscribe(func(s Signal) { signals = append(signals, s) })

	_, err := client.Login(ctx, map[string]string{"email": "ada@example.com", "password": "secret"})
	require.NoError(t, err)

	_, err = client.Login(ctx, map[string]string{"email": "ada@example.com", "password": "wrong"})
	require.Error(t, err)
	assert.True(t, IsAuthRejected(err))

	current, err := client.Session(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "valid-token", current.Token)
	assert.Empty(t, signals)
}

func TestClient_RejectedTokenRequiresAuthentication(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()

	store := NewMemorySessionStore()
	require.NoError(t, store.Write(context.Background(), Session{Token: "stale-token", UserID: "42"}))

	client := newTestClient(t, DefaultConfig().WithBaseURL(backend.URL).WithSessionStore(store))

	var (
		mu      sync.Mutex
		signals []Signal
	)
	client.Signals().Subscribe(func(s Signal) {
		mu.Lock()
		defer mu.Unlock()
		signals = append(signals, s)
	})

	err := client.Get(context.Background(), "/social/profile", nil)
	require.Error(t, err)
	assert.True(t, IsAuthRejected(err))

	current, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, signals, 1)
	assert.Equal(t, SignalAuthenticationRequired, signals[0].Type)
	assert.Equal(t, "/social/profile", signals[0].Path)

	recorded := backend.Requests()
	require.Len(t, recorded, 1)
	assert.Equal(t, "Bearer stale-token", recorded[0].Headers.Get("Authorization"))
}

func TestClient_UnreachableDirectFallsBack(t *testing.T) {
	fallback := sdktest.NewBackend()
	defer fallback.Close()

	client := newTestClient(t, DefaultConfig().
		WithBaseURL(deadURL()).
		WithFallbackURL(fallback.URL).
		WithDeployed(false))

	result, err := client.Do(context.Background(), NewRequest(http.MethodGet, "/forum/discussions", nil))
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Transport)
	assert.False(t, client.State().GatewayPreferred())
}

func TestClient_DeployedClientPrefersGateway(t *testing.T) {
	gateway := sdktest.NewBackend()
	defer gateway.Close()

	client := newTestClient(t, DefaultConfig().
		WithBaseURL(deadURL()).
		WithGatewayURL(gateway.URL+"/.netlify/functions/api").
		WithDeployed(true))
	gateway.Handle("GET /.netlify/functions/api/forum/discussions", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, []string{}
	})
	ctx := context.Background()

	result, err := client.Do(ctx, NewRequest(http.MethodGet, "/forum/discussions", nil))
	require.NoError(t, err)
	assert.Equal(t, "gateway", result.Transport)
	assert.True(t, client.State().GatewayPreferred())

	result, err = client.Do(ctx, NewRequest(http.MethodGet, "/forum/discussions", nil))
	require.NoError(t, err)
	assert.Equal(t, "gateway", result.Transport)
}

func TestClient_EverythingUnreachable(t *testing.T) {
	client := newTestClient(t, DefaultConfig().
		WithBaseURL(deadURL()).
		WithFallbackURL(deadURL()).
		WithDeployed(false))

	err := client.Post(context.Background(), "/forum/discussions", map[string]string{"title": "Hi"}, nil)

	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
	var ee *EscalationError
	require.True(t, errors.As(err, &ee))
	assert.Len(t, ee.Attempts, 2)
	assert.Contains(t, err.Error(), "was not applied")
}

func TestClient_Health(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()
	backend.WithFailingHealth(1)

	client := newTestClient(t, DefaultConfig().WithBaseURL(backend.URL))
	ctx := context.Background()

	assert.Equal(t, ConnectivityDegraded, client.Health(ctx))
	assert.True(t, client.State().SimulationMode())

	assert.Equal(t, ConnectivityHealthy, client.Health(ctx))
	assert.False(t, client.State().SimulationMode())
	assert.False(t, client.State().LastHealthCheck().IsZero())
}

func TestClient_HealthAcceptsPlainTextLiveness(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	}))
	defer server.Close()

	client := newTestClient(t, DefaultConfig().WithBaseURL(server.URL))

	assert.Equal(t, ConnectivityHealthy, client.Health(context.Background()))
	assert.False(t, client.State().SimulationMode())
}

func TestClient_TypedHelpers(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()

	client := newTestClient(t, DefaultConfig().WithBaseURL(backend.URL))
	ctx := context.Background()

	type discussion struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	threads, err := GetJSON[[]discussion](ctx, client, "/forum/discussions")
	require.NoError(t, err)
	assert.Len(t, threads, 2)
	assert.Equal(t, "Welcome", threads[0].Title)

	created, err := PostJSON[discussion](ctx, client, "/forum/discussions", map[string]string{"title": "New"})
	require.NoError(t, err)
	assert.Equal(t, "d-3", created.ID)

	_, err = GetJSON[discussion](ctx, client, "/forum/missing")
	assert.ErrorIs(t, err, ErrServerError)
}

func TestClient_Close(t *testing.T) {
	backend := sdktest.NewBackend()
	defer backend.Close()

	client := newTestClient(t, DefaultConfig().WithBaseURL(backend.URL))

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	err := client.Get(context.Background(), "/forum/discussions", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, client.Logout(context.Background()), ErrClosed)
	assert.Equal(t, 0, backend.RequestCount())
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(DefaultConfig().WithBaseURL("not a url"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
