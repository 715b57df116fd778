package sdk

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
)

// compareAndClearer is implemented by stores that can clear a session only if
// it still holds a given token. Stores without it fall back to read-compare-
// clear, which is good enough for single-user clients.
type compareAndClearer interface {
	CompareAndClear(ctx context.Context, token string) (bool, error)
}

// AuthAttacher injects the session's bearer token into outgoing requests and
// drops the session when the backend rejects it.
type AuthAttacher struct {
	store     SessionStore
	signals   *SignalBus
	loginPath string
	logger    logrus.FieldLogger
}

// NewAuthAttacher creates an attacher. loginPath must already be canonical.
func NewAuthAttacher(store SessionStore, signals *SignalBus, loginPath string, logger logrus.FieldLogger) *AuthAttacher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthAttacher{
		store:     store,
		signals:   signals,
		loginPath: loginPath,
		logger:    logger,
	}
}

// Attach returns a copy of desc carrying "Authorization: Bearer <token>" when
// a session exists, along with the session snapshot that was used. Without a
// session desc comes back unchanged and the snapshot is nil. A store read
// error is logged and treated as "no session".
func (a *AuthAttacher) Attach(ctx context.Context, desc RequestDescriptor) (RequestDescriptor, *Session) {
	s, err := a.store.Read(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("session store read failed, sending request unauthenticated")
		return desc, nil
	}
	if s == nil || s.Token == "" {
		return desc, nil
	}
	return desc.WithHeader("Authorization", "Bearer "+s.Token), s
}

// OnResponse reacts to a final result. A 401/403 on anything but the login
// call destroys the session that was attached to the request and emits
// SignalAuthenticationRequired. It reports whether the session was cleared.
//
// The login guard matters: a wrong password on login must not wipe a
// different session left over from earlier.
func (a *AuthAttacher) OnResponse(ctx context.Context, canonical string, attached *Session, result TransportResult) bool {
	if result.StatusCode != http.StatusUnauthorized && result.StatusCode != http.StatusForbidden {
		return false
	}
	if canonical == a.loginPath {
		return false
	}
	if attached == nil {
		// Nothing was sent, so there is nothing to invalidate
		return false
	}

	cleared, err := a.clear(ctx, attached.Token)
	if err != nil {
		a.logger.WithError(err).WithField("path", canonical).Error("failed to clear rejected session")
		return false
	}
	if !cleared {
		return false
	}

	a.logger.WithFields(logrus.Fields{
		"path":   canonical,
		"status": result.StatusCode,
	}).Info("session rejected by backend, re-authentication required")

	if a.signals != nil {
		a.signals.Emit(Signal{Type: SignalAuthenticationRequired, Path: canonical})
	}
	return true
}

func (a *AuthAttacher) clear(ctx context.Context, token string) (bool, error) {
	if cac, ok := a.store.(compareAndClearer); ok {
		return cac.CompareAndClear(ctx, token)
	}
	current, err := a.store.Read(ctx)
	if err != nil {
		return false, err
	}
	if current == nil || current.Token != token {
		return false, nil
	}
	return true, a.store.Clear(ctx)
}
