package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"
)

// Session is the authenticated user the client acts for. Every outgoing
// request reads it; only login, logout, and an auth rejection change it.
type Session struct {
	Token       string    `json:"token" mapstructure:"token"`
	UserID      string    `json:"user_id" mapstructure:"user_id"`
	Role        string    `json:"role" mapstructure:"role"`
	DisplayName string    `json:"display_name" mapstructure:"display_name"`
	ExpiresAt   time.Time `json:"expires_at,omitempty" mapstructure:"-"`
}

// Expired reports whether the token's exp claim has passed
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// SessionStore persists the current session. Read returns a copy, so
// concurrent requests never observe a partially written token.
// Read returns (nil, nil) when nobody is logged in.
type SessionStore interface {
	Read(ctx context.Context) (*Session, error)
	Write(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// MemorySessionStore keeps the session in process memory
type MemorySessionStore struct {
	current atomic.Pointer[Session]
}

// NewMemorySessionStore creates an empty in-memory store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

// Read returns a copy of the current session
func (m *MemorySessionStore) Read(ctx context.Context) (*Session, error) {
	s := m.current.Load()
	if s == nil {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// Write replaces the current session
func (m *MemorySessionStore) Write(ctx context.Context, s Session) error {
	if s.Token == "" {
		return errors.New("session token cannot be empty")
	}
	m.current.Store(&s)
	return nil
}

// Clear removes the current session
func (m *MemorySessionStore) Clear(ctx context.Context) error {
	m.current.Store(nil)
	return nil
}

// CompareAndClear clears the session only if it still holds token
func (m *MemorySessionStore) CompareAndClear(ctx context.Context, token string) (bool, error) {
	for {
		s := m.current.Load()
		if s == nil || s.Token != token {
			return false, nil
		}
		if m.current.CompareAndSwap(s, nil) {
			return true, nil
		}
	}
}

// sessionClaims are the claims the backend puts in its bearer tokens
type sessionClaims struct {
	jwt.RegisteredClaims
	Role        string `json:"role"`
	DisplayName string `json:"name"`
}

// SessionFromToken builds a session from a bearer token's claims. The
// signature is not verified: the backend is the only party that trusts the
// token, the client just needs its subject and expiry.
func SessionFromToken(token string) (Session, error) {
	var claims sessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Session{}, fmt.Errorf("failed to parse session token: %w", err)
	}
	s := Session{
		Token:       token,
		UserID:      claims.Subject,
		Role:        claims.Role,
		DisplayName: claims.DisplayName,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// DecodeSession extracts a session from a login response payload. The
// payload may be flat or nest the user under "user"; fields missing from the
// payload are filled from the token's claims when the token is a JWT.
//
// Example payloads:
//
//	{"token": "...", "user_id": "42", "role": "admin", "display_name": "Ada"}
//	{"token": "...", "user": {"id": "42", "role": "member", "name": "Ada"}}
func DecodeSession(payload map[string]interface{}) (Session, error) {
	var s Session
	if err := mapstructure.WeakDecode(payload, &s); err != nil {
		return Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	if user, ok := payload["user"].(map[string]interface{}); ok {
		var nested struct {
			ID          string `mapstructure:"id"`
			Role        string `mapstructure:"role"`
			Name        string `mapstructure:"name"`
			DisplayName string `mapstructure:"display_name"`
		}
		if err := mapstructure.WeakDecode(user, &nested); err != nil {
			return Session{}, fmt.Errorf("failed to decode session user: %w", err)
		}
		if s.UserID == "" {
			s.UserID = nested.ID
		}
		if s.Role == "" {
			s.Role = nested.Role
		}
		if s.DisplayName == "" {
			s.DisplayName = nested.DisplayName
		}
		if s.DisplayName == "" {
			s.DisplayName = nested.Name
		}
	}
	if s.Token == "" {
		return Session{}, errors.New("login response carries no token")
	}
	if fromToken, err := SessionFromToken(s.Token); err == nil {
		if s.UserID == "" {
			s.UserID = fromToken.UserID
		}
		if s.Role == "" {
			s.Role = fromToken.Role
		}
		if s.DisplayName == "" {
			s.DisplayName = fromToken.DisplayName
		}
		s.ExpiresAt = fromToken.ExpiresAt
	}
	return s, nil
}
