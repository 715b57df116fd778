// Package signals forwards sdk signals to NATS so operators can watch
// session drops and simulation-mode changes across many clients.
package signals

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/nestlink/sdk"
)

// Publisher is the part of *nats.Conn the forwarder needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect opens a NATS connection that reconnects forever
func Connect(cfg *Config, logger logrus.FieldLogger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.WithError(err).Error("NATS error")
		}),
	}

	if cfg.User != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Forwarder publishes every signal of a bus to "<prefix>.<signal type>"
type Forwarder struct {
	pub    Publisher
	prefix string
	source string
	logger logrus.FieldLogger
}

// NewForwarder creates a forwarder publishing through pub
func NewForwarder(pub Publisher, cfg *Config, logger logrus.FieldLogger) *Forwarder {
	return &Forwarder{
		pub:    pub,
		prefix: cfg.SubjectPrefix,
		source: cfg.Source,
		logger: logger,
	}
}

// Subject returns the subject a signal type is published on
func (f *Forwarder) Subject(t sdk.SignalType) string {
	return f.prefix + "." + t.String()
}

// Attach subscribes to bus. The returned function detaches the forwarder.
func (f *Forwarder) Attach(bus *sdk.SignalBus) (detach func()) {
	return bus.Subscribe(func(s sdk.Signal) {
		if err := f.Forward(s); err != nil {
			f.logger.WithError(err).WithField("signal", s.Type.String()).Warn("failed to publish signal")
		}
	})
}

// Forward publishes one signal. nats.Conn buffers while disconnected, so
// this never blocks the emitting goroutine.
func (f *Forwarder) Forward(s sdk.Signal) error {
	data, err := NewMessage(s, f.source).Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	if err := f.pub.Publish(f.Subject(s.Type), data); err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}
	return nil
}

// Watch subscribes to every signal under the prefix and hands decoded
// messages to fn
func Watch(nc *nats.Conn, prefix string, fn func(*Message)) (*nats.Subscription, error) {
	return nc.Subscribe(prefix+".>", func(msg *nats.Msg) {
		m, err := UnmarshalMessage(msg.Data)
		if err != nil {
			return
		}
		fn(m)
	})
}
