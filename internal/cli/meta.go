// Package cli implements the nestctl commands. Every command talks to the
// backend through an sdk.Client, so it escalates exactly like a browser
// client would.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mitchellh/cli"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/birbparty/nestlink/internal/sessionstore"
	"github.com/birbparty/nestlink/internal/signals"
	"github.com/birbparty/nestlink/sdk"
)

const (
	// cliUsage is the exit code for invalid arguments
	cliUsage = 2
	// exitDegraded is returned by health when the backend is unreachable
	exitDegraded = 3
)

// Meta holds what every command shares
type Meta struct {
	UI     cli.Ui
	Logger *logrus.Logger
	Fs     afero.Fs

	// Context returns the context a command runs under. Default: canceled
	// on SIGINT/SIGTERM.
	Context func() (context.Context, context.CancelFunc)

	configPath     string
	healthInterval time.Duration
}

func (m *Meta) flagSet(name string) *flag.FlagSet {
	f := flag.NewFlagSet(name, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	f.StringVar(&m.configPath, "config", "", "Path to the nestctl config file.")
	return f
}

func (m *Meta) context() (context.Context, context.CancelFunc) {
	if m.Context != nil {
		return m.Context()
	}
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// session is an opened client and the resources behind it
type session struct {
	client sdk.Client
	store  sessionstore.Store
	nc     *nats.Conn
	cfg    *Config
}

func (s *session) Close() {
	_ = s.client.Close()
	_ = s.store.Close()
	if s.nc != nil {
		_ = s.nc.Drain()
	}
}

// open loads the config, opens the session store, and builds the client.
// When signals are configured, every client signal is also published to NATS.
func (m *Meta) open() (*session, error) {
	cfg, err := LoadConfig(m.Fs, m.configPath)
	if err != nil {
		return nil, err
	}
	if m.healthInterval > 0 {
		cfg.HealthInterval = m.healthInterval
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		m.Logger.SetLevel(level)
	}

	store, err := sessionstore.Open(&cfg.Session, m.Fs)
	if err != nil {
		return nil, err
	}

	client, err := sdk.NewClient(cfg.SDKConfig().
		WithSessionStore(store).
		WithLogger(m.Logger))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	s := &session{client: client, store: store, cfg: cfg}
	if cfg.Signals.Enabled() {
		nc, err := signals.Connect(&cfg.Signals, m.Logger)
		if err != nil {
			// Signals are best effort; the command itself still works
			m.Logger.WithError(err).Warn("signal forwarding disabled")
		} else {
			s.nc = nc
			signals.NewForwarder(nc, &cfg.Signals, m.Logger).Attach(client.Signals())
		}
	}
	return s, nil
}

// Commands returns the nestctl command table
func Commands(meta *Meta) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"call": func() (cli.Command, error) {
			return &CallCommand{Meta: meta}, nil
		},
		"login": func() (cli.Command, error) {
			return &LoginCommand{Meta: meta}, nil
		},
		"logout": func() (cli.Command, error) {
			return &LogoutCommand{Meta: meta}, nil
		},
		"session": func() (cli.Command, error) {
			return &SessionCommand{Meta: meta}, nil
		},
		"health": func() (cli.Command, error) {
			return &HealthCommand{Meta: meta}, nil
		},
	}
}
