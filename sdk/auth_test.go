package sdk

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func rejected(status int) TransportResult {
	return failureResult("direct", newStatusError(status, nil))
}

func TestAuthAttacher_Attach(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	a := NewAuthAttacher(store, NewSignalBus(), "/auth/login", newTestLogger())
	desc := NewRequest(http.MethodGet, "/social/profile", nil)

	t.Run("no session", func(t *testing.T) {
		out, s := a.Attach(ctx, desc)
		assert.Nil(t, s)
		_, ok := out.Header("Authorization")
		assert.False(t, ok)
	})

	t.Run("with session", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, Session{Token: "abc"}))
		out, s := a.Attach(ctx, desc)
		require.NotNil(t, s)
		assert.Equal(t, "abc", s.Token)
		v, ok := out.Header("authorization")
		assert.True(t, ok)
		assert.Equal(t, "Bearer abc", v)

		// The original descriptor is not modified
		_, ok = desc.Header("Authorization")
		assert.False(t, ok)
	})
}

func TestAuthAttacher_OnResponse(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		path        string
		result      TransportResult
		wantCleared bool
	}{
		{name: "401 clears", path: "/social/profile", result: rejected(http.StatusUnauthorized), wantCleared: true},
		{name: "403 clears", path: "/admin/users", result: rejected(http.StatusForbidden), wantCleared: true},
		{name: "401 on login leaves session", path: "/auth/login", result: rejected(http.StatusUnauthorized)},
		{name: "500 leaves session", path: "/social/profile", result: rejected(http.StatusInternalServerError)},
		{name: "success leaves session", path: "/social/profile", result: successResult("direct", 200, []byte(`{}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemorySessionStore()
			bus := NewSignalBus()
			var fired int
			bus.Subscribe(func(s Signal) {
				if s.Type == SignalAuthenticationRequired {
					fired++
				}
			})
			a := NewAuthAttacher(store, bus, "/auth/login", newTestLogger())
			require.NoError(t, store.Write(ctx, Session{Token: "tok"}))
			attached, _ := store.Read(ctx)

			cleared := a.OnResponse(ctx, tt.path, attached, tt.result)
			assert.Equal(t, tt.wantCleared, cleared)

			s, err := store.Read(ctx)
			require.NoError(t, err)
			if tt.wantCleared {
				assert.Nil(t, s)
				assert.Equal(t, 1, fired)
			} else {
				assert.NotNil(t, s)
				assert.Equal(t, 0, fired)
			}
		})
	}
}

func TestAuthAttacher_ConcurrentRejectionsClearOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	bus := NewSignalBus()
	var fired int
	bus.Subscribe(func(Signal) { fired++ })
	a := NewAuthAttacher(store, bus, "/auth/login", newTestLogger())

	require.NoError(t, store.Write(ctx, Session{Token: "old"}))
	attached, _ := store.Read(ctx)

	// Two in-flight requests carrying the same token are both rejected
	assert.True(t, a.OnResponse(ctx, "/forum/discussions", attached, rejected(401)))
	assert.False(t, a.OnResponse(ctx, "/social/profile", attached, rejected(401)))
	assert.Equal(t, 1, fired)
}

func TestAuthAttacher_RejectionDoesNotClearNewerSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	a := NewAuthAttacher(store, NewSignalBus(), "/auth/login", newTestLogger())

	require.NoError(t, store.Write(ctx, Session{Token: "old"}))
	attached, _ := store.Read(ctx)
	// The user logs in again while a request with the old token is in flight
	require.NoError(t, store.Write(ctx, Session{Token: "new"}))

	assert.False(t, a.OnResponse(ctx, "/social/profile", attached, rejected(401)))
	s, _ := store.Read(ctx)
	require.NotNil(t, s)
	assert.Equal(t, "new", s.Token)
}

func TestAuthAttacher_NoAttachedSession(t *testing.T) {
	a := NewAuthAttacher(NewMemorySessionStore(), NewSignalBus(), "/auth/login", newTestLogger())
	assert.False(t, a.OnResponse(context.Background(), "/social/profile", nil, rejected(401)))
}

// mockStore is a SessionStore without compare-and-clear
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Read(ctx context.Context) (*Session, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*Session)
	return s, args.Error(1)
}

func (m *mockStore) Write(ctx context.Context, s Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockStore) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestAuthAttacher_PlainStoreFallback(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("Read", mock.Anything).Return(&Session{Token: "tok"}, nil)
	store.On("Clear", mock.Anything).Return(nil).Once()

	a := NewAuthAttacher(store, nil, "/auth/login", newTestLogger())
	assert.True(t, a.OnResponse(ctx, "/social/profile", &Session{Token: "tok"}, rejected(401)))
	store.AssertExpectations(t)
}

func TestAuthAttacher_StoreReadErrorSendsUnauthenticated(t *testing.T) {
	store := &mockStore{}
	store.On("Read", mock.Anything).Return(nil, errors.New("disk on fire"))

	a := NewAuthAttacher(store, nil, "/auth/login", newTestLogger())
	out, s := a.Attach(context.Background(), NewRequest(http.MethodGet, "/forum/discussions", nil))
	assert.Nil(t, s)
	_, ok := out.Header("Authorization")
	assert.False(t, ok)
}
