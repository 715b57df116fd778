package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/birbparty/nestlink/sdk"
)

type discussion struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func main() {
	metrics := sdk.NewMetricsCollector()

	config := sdk.DefaultConfig().
		WithBaseURL(envOr("NESTLINK_BASE_URL", "http://localhost:8080")).
		WithGatewayURL(os.Getenv("NESTLINK_GATEWAY_URL")).
		WithFallbackURL(os.Getenv("NESTLINK_FALLBACK_URL")).
		WithObserver(metrics)

	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	client.Signals().Subscribe(func(s sdk.Signal) {
		switch s.Type {
		case sdk.SignalAuthenticationRequired:
			fmt.Printf("! session rejected on %s, please log in again\n", s.Path)
		case sdk.SignalConnectivity:
			fmt.Printf("! connectivity is now %s\n", s.Connectivity)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Println("Checking backend health...")
	if state := client.Health(ctx); state != sdk.ConnectivityHealthy {
		fmt.Printf("Backend is %s, results may come from a fallback route\n", state)
	}

	fmt.Println("\n--- Login ---")
	session, err := client.Login(ctx, map[string]string{
		"email":    envOr("NESTLINK_EMAIL", "ada@example.com"),
		"password": envOr("NESTLINK_PASSWORD", "secret"),
	})
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	fmt.Printf("Logged in as %s (%s)\n", session.DisplayName, session.Role)

	fmt.Println("\n--- List discussions ---")
	threads, err := sdk.GetJSON[[]discussion](ctx, client, "/forum/discussions")
	if err != nil {
		log.Fatalf("Failed to list discussions: %v", err)
	}
	for _, d := range threads {
		fmt.Printf("  %s  %s\n", d.ID, d.Title)
	}

	fmt.Println("\n--- Create a discussion ---")
	created, err := sdk.PostJSON[discussion](ctx, client, "/forum/discussions", map[string]string{
		"title": "Spring migration",
		"body":  "Who is in?",
	})
	switch {
	case sdk.IsUnreachable(err):
		// Mutations are never relayed; nothing was written
		fmt.Printf("Not created: %v\n", err)
	case err != nil:
		var sdkErr *sdk.Error
		if errors.As(err, &sdkErr) {
			log.Fatalf("Create rejected by %s with status %d: %s", sdkErr.Transport, sdkErr.Status, sdkErr.Message)
		}
		log.Fatalf("Create failed: %v", err)
	default:
		fmt.Printf("Created %s\n", created.ID)
	}

	if err := client.Logout(ctx); err != nil {
		log.Printf("Logout failed: %v", err)
	}

	fmt.Println("\n--- Metrics ---")
	snapshot := metrics.GetMetrics()
	fmt.Printf("attempts per transport: %v\n", snapshot["attempts"])
	fmt.Printf("failed attempts:        %v\n", snapshot["attempt_failures"])
	fmt.Printf("gateway preferred:      %v\n", client.State().GatewayPreferred())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
