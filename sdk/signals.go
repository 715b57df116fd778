package sdk

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SignalType identifies what a Signal announces
type SignalType int

const (
	// SignalAuthenticationRequired fires after the session was destroyed
	// because the backend rejected it
	SignalAuthenticationRequired SignalType = iota
	// SignalConnectivity fires when the health monitor changes state
	SignalConnectivity
)

// String returns the string representation of the signal type
func (t SignalType) String() string {
	switch t {
	case SignalAuthenticationRequired:
		return "authentication_required"
	case SignalConnectivity:
		return "connectivity"
	default:
		return "unknown"
	}
}

// Signal is what presentation code subscribes to
type Signal struct {
	Type SignalType
	// Connectivity is set for SignalConnectivity
	Connectivity Connectivity
	// Path is the logical path whose response dropped the session, set for
	// SignalAuthenticationRequired
	Path string
	At   time.Time
}

// SignalBus fans signals out to subscribers. Handlers run synchronously on
// the emitting goroutine, in subscription order; they must not block.
//
// Example:
//
//	unsubscribe := client.Signals().Subscribe(func(s sdk.Signal) {
//	    if s.Type == sdk.SignalAuthenticationRequired {
//	        redirectToLogin()
//	    }
//	})
//	defer unsubscribe()
type SignalBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(Signal)
	order    []int
	logger   logrus.FieldLogger
}

// NewSignalBus creates a bus with no subscribers
func NewSignalBus() *SignalBus {
	return &SignalBus{handlers: make(map[int]func(Signal))}
}

// WithLogger sets where panicking subscribers are reported
func (b *SignalBus) WithLogger(logger logrus.FieldLogger) *SignalBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// Subscribe registers fn and returns a function that removes it
func (b *SignalBus) Subscribe(fn func(Signal)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit delivers s to every subscriber. A panicking subscriber is logged and
// does not stop delivery to the others.
func (b *SignalBus) Emit(s Signal) {
	if s.At.IsZero() {
		s.At = time.Now()
	}
	b.mu.RLock()
	handlers := make([]func(Signal), 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	logger := b.logger
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil && logger != nil {
					logger.WithFields(logrus.Fields{
						"signal": s.Type.String(),
						"panic":  fmt.Sprint(r),
					}).Error("signal subscriber panicked")
				}
			}()
			h(s)
		}()
	}
}
