package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/birbparty/nestlink/internal/gateway"
	"github.com/birbparty/nestlink/internal/signals"
	"github.com/birbparty/nestlink/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telCfg := telemetry.NewConfigFromEnv("nestlink-gateway")
	if err := telemetry.Init(ctx, telCfg); err != nil {
		telemetry.L().WithError(err).Fatal("Failed to initialize telemetry")
	}
	log := telemetry.L()

	cfg, err := gateway.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server, err := gateway.New(cfg, reg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create gateway")
	}

	// Connectivity changes of the backend are published for dashboards
	sigCfg := signals.NewConfigFromEnv()
	if sigCfg.Enabled() {
		nc, err := signals.Connect(sigCfg, log)
		if err != nil {
			log.WithError(err).Warn("NATS unavailable, connectivity signals are not published")
		} else {
			defer nc.Drain()
			detach := signals.NewForwarder(nc, sigCfg, log).Attach(server.Signals())
			defer detach()
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", cfg.Addr()).
			WithField("backend", cfg.BackendURL).
			WithField("prefix", cfg.Prefix).
			Info("Gateway listening")
		return server.Listen()
	})

	g.Go(func() error {
		server.Monitor().Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("Gateway stopped with error")
		_ = telemetry.Shutdown(context.Background())
		os.Exit(1)
	}

	_ = telemetry.Shutdown(context.Background())
	log.Info("Gateway shutdown complete")
}
