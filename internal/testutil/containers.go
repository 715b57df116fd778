// Package testutil starts the backing services integration tests run
// against. Callers skip these tests under -short.
package testutil

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Endpoint is a started container's reachable host and port
type Endpoint struct {
	Host string
	Port int
}

// URL returns scheme://host:port
func (e Endpoint) URL(scheme string) string {
	return fmt.Sprintf("%s://%s:%d", scheme, e.Host, e.Port)
}

// StartPostgres runs postgres:15-alpine with user/password/database all set
// to "nestlink" and terminates it when the test ends
func StartPostgres(t *testing.T) Endpoint {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("nestlink"),
		postgres.WithUsername("nestlink"),
		postgres.WithPassword("nestlink"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	return endpoint(t, ctx, container, "5432/tcp")
}

// StartRedis runs redis:7-alpine
func StartRedis(t *testing.T) Endpoint {
	t.Helper()
	ctx := context.Background()

	container, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	return endpoint(t, ctx, container, "6379/tcp")
}

// StartNATS runs a plain NATS server
func StartNATS(t *testing.T) Endpoint {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor: wait.ForLog("Server is ready").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start nats container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	return endpoint(t, ctx, container, "4222/tcp")
}

func endpoint(t *testing.T, ctx context.Context, container testcontainers.Container, port nat.Port) Endpoint {
	t.Helper()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("failed to get mapped port %s: %v", port, err)
	}
	n, err := strconv.Atoi(mapped.Port())
	if err != nil {
		t.Fatalf("invalid mapped port %q: %v", mapped.Port(), err)
	}
	return Endpoint{Host: host, Port: n}
}
