package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Init initializes logging and tracing
func Init(ctx context.Context, cfg *Config) error {
	InitLogger(cfg)

	if err := InitTracing(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	L().WithFields(logrus.Fields{
		"service":     cfg.ServiceName,
		"version":     cfg.ServiceVersion,
		"environment": cfg.Environment,
		"tracing":     cfg.EnableTracing,
		"log_file":    cfg.LogFile,
	}).Info("Telemetry initialized")

	return nil
}

// Shutdown gracefully shuts down all telemetry components
func Shutdown(ctx context.Context) error {
	if err := CloseTracing(ctx); err != nil {
		L().WithError(err).Error("Failed to close tracing")
	}
	if err := CloseLogger(); err != nil {
		L().WithError(err).Error("Failed to close logger")
	}
	return nil
}

// FiberMetricsMiddleware records a span and the request metrics for every
// gateway request
func FiberMetricsMiddleware(metrics *HTTPMetrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		ctx, span := StartSpan(c.UserContext(), fmt.Sprintf("gateway %s", c.Method()))
		defer span.End()
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		metrics.RecordRequest(c.Method(), status, time.Since(start))

		span.SetAttributes(
			semconv.HTTPMethodKey.String(c.Method()),
			semconv.HTTPTargetKey.String(c.Path()),
			semconv.HTTPStatusCodeKey.Int(status),
		)
		switch {
		case err != nil:
			span.RecordError(err)
			SetErrorStatus(ctx, err.Error())
		case status >= 500:
			SetErrorStatus(ctx, fmt.Sprintf("HTTP %d", status))
		default:
			SetOKStatus(ctx)
		}

		return err
	}
}

// FiberLoggingMiddleware logs every request with its request id
func FiberLoggingMiddleware(logger logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.IP(),
			"request_id":  c.GetRespHeader(fiber.HeaderXRequestID),
		})

		if err != nil {
			entry.WithError(err).Error("Request failed")
		} else if c.Response().StatusCode() >= 500 {
			entry.Warn("Request completed with error status")
		} else {
			entry.Info("Request completed")
		}

		return err
	}
}
