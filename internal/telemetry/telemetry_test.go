package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/nestlink/sdk"
)

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_MAX_SIZE_MB", "5")
	t.Setenv("ENABLE_TRACING", "true")
	t.Setenv("OTEL_SAMPLING_RATE", "0.25")

	cfg := NewConfigFromEnv("nestlink-gateway")

	assert.Equal(t, "nestlink-gateway", cfg.ServiceName)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.LogMaxSizeMB)
	assert.True(t, cfg.EnableTracing)
	assert.Equal(t, 0.25, cfg.SamplingRate)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestNewLogger_ServiceFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{ServiceName: "nestlink-gateway", ServiceVersion: "1.2.3", Environment: "test", LogLevel: "info"}

	logger, file := NewLogger(cfg, &buf)
	assert.Nil(t, file)

	logger.WithField("transport", "gateway").Info("attempt failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "attempt failed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "nestlink-gateway", entry["service.name"])
	assert.Equal(t, "1.2.3", entry["service.version"])
	assert.Equal(t, "gateway", entry["transport"])
	assert.Contains(t, entry, "@timestamp")
}

func TestNewLogger_RotatedFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "gateway.log")
	cfg := &Config{ServiceName: "nestlink", LogLevel: "warn", LogFile: path, LogMaxSizeMB: 1}

	logger, file := NewLogger(cfg, &buf)
	require.NotNil(t, file)
	defer file.Close()

	logger.Info("dropped by level")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped by level")
	assert.Contains(t, buf.String(), "kept")
	assert.FileExists(t, path)
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	observer := NewPrometheusObserver(reg)

	cors := sdk.NewError(sdk.KindCors, "blocked", nil)
	observer.OnAttempt("GET", "/forum/discussions", "direct", 10*time.Millisecond, cors)
	observer.OnAttempt("GET", "/forum/discussions", "gateway", 20*time.Millisecond, nil)
	observer.OnRequestEnd("GET", "/forum/discussions", 30*time.Millisecond, nil)
	observer.OnRequestEnd("POST", "/forum/discussions", time.Second, errors.New("boom"))
	observer.OnGatewayPreferred()
	observer.OnConnectivityChange(sdk.ConnectivityUnknown, sdk.ConnectivityDegraded)

	assert.Equal(t, 1.0, testutil.ToFloat64(observer.attemptsTotal.WithLabelValues("direct", "cors")))
	assert.Equal(t, 1.0, testutil.ToFloat64(observer.attemptsTotal.WithLabelValues("gateway", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(observer.escalationsTotal.WithLabelValues("direct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(observer.requestsTotal.WithLabelValues("GET", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(observer.requestsTotal.WithLabelValues("POST", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(observer.gatewayPreferred))
	assert.Equal(t, 2.0, testutil.ToFloat64(observer.connectivity))
	assert.Equal(t, 1.0, testutil.ToFloat64(observer.connectivityFlip.WithLabelValues("degraded")))
}

func TestFiberMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewHTTPMetrics(reg)
	var buf bytes.Buffer
	logger, _ := NewLogger(&Config{LogLevel: "info"}, &buf)

	app := fiber.New()
	app.Use(FiberMetricsMiddleware(metrics))
	app.Use(FiberLoggingMiddleware(logger))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })
	app.Get("/fail", func(c *fiber.Ctx) error { return fiber.NewError(http.StatusBadGateway, "backend down") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("GET", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("GET", "502")))
	assert.Contains(t, buf.String(), "Request completed")
	assert.Contains(t, buf.String(), "Request failed")
}
