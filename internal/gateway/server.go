// Package gateway is the same-origin forwarding function that the sdk's
// gateway transport targets. It is served from the page's origin, so the
// browser never applies cross-origin policy to it.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/nestlink/internal/telemetry"
	"github.com/birbparty/nestlink/sdk"
)

// BackendHealth reports the backend's reachability. *sdk.HealthMonitor
// satisfies it.
type BackendHealth interface {
	State() sdk.Connectivity
	Check(ctx context.Context) sdk.Connectivity
}

// Server is the gateway's fiber app plus the backend monitor behind /health
type Server struct {
	cfg     *Config
	app     *fiber.App
	health  BackendHealth
	monitor *sdk.HealthMonitor
	backend sdk.Client
	started time.Time
}

// New builds the gateway. The registry receives the HTTP metrics and the
// metrics of the sdk client used to probe the backend.
func New(cfg *Config, reg *prometheus.Registry, logger logrus.FieldLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := sdk.NewClient(sdk.DefaultConfig().
		WithBaseURL(cfg.BackendURL).
		WithRelays().
		WithHealthInterval(cfg.HealthInterval).
		WithLogger(logger).
		WithObserver(telemetry.NewPrometheusObserver(reg)))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		health:  backend.Monitor(),
		monitor: backend.Monitor(),
		backend: backend,
		started: time.Now(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "nestlink gateway",
		ReadTimeout:           cfg.RequestTimeout + time.Second,
		WriteTimeout:          cfg.RequestTimeout + time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	metrics := telemetry.NewHTTPMetrics(reg)
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(telemetry.FiberMetricsMiddleware(metrics))
	s.app.Use(telemetry.FiberLoggingMiddleware(logger))
	if len(cfg.AllowOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins:  strings.Join(cfg.AllowOrigins, ","),
			AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
			AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			ExposeHeaders: "X-Request-ID",
		}))
	}

	s.app.Get("/health", s.handleHealth)
	s.app.Get(cfg.MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	s.app.All(cfg.Prefix+"/*", NewForwarder(cfg, metrics, logger).Handle)

	s.app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(NewErrorResponse("Endpoint not found", ErrCodeNotFound))
	})

	return s, nil
}

// App returns the fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Monitor returns the backend health monitor; run it alongside the server
func (s *Server) Monitor() *sdk.HealthMonitor {
	return s.monitor
}

// Signals returns the bus the backend monitor reports connectivity changes on
func (s *Server) Signals() *sdk.SignalBus {
	return s.backend.Signals()
}

// Listen serves until Shutdown is called
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Addr())
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.backend.Close()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	state := s.health.State()
	if state == sdk.ConnectivityUnknown {
		state = s.health.Check(c.UserContext())
	}

	resp := HealthResponse{
		Status:  "healthy",
		Service: "nestlink-gateway",
		Backend: state.String(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if state != sdk.ConnectivityHealthy {
		resp.Status = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

func errorHandler(logger logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"
		errCode := ErrCodeInternalError

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
			if code == fiber.StatusNotFound {
				errCode = ErrCodeNotFound
			}
		}

		logger.WithFields(logrus.Fields{
			"path":   c.Path(),
			"method": c.Method(),
		}).WithError(err).Error("request error")

		return c.Status(code).JSON(NewErrorResponse(message, errCode))
	}
}
