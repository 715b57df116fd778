// Package sdk is the resilient API access layer of nestlink. It reaches a
// JSON backend from restricted client environments (a browser page compiled
// to WASM, or a native process that has to behave like one) when the direct
// route is blocked by cross-origin policy, outages, or gateway failures.
//
// # Escalation
//
// Every logical call enters the Controller, which normalizes the path,
// attaches the session's bearer token, and then tries transports strictly one
// after another:
//
//	direct -> gateway -> fallback -> relays (GET only)
//
// The next transport is only tried after a network, timeout, or cross-origin
// failure, or a 404. Authentication rejections, other server errors, and
// unclassified failures are returned immediately.
//
// The first time the direct transport cannot be reached from a deployed
// (non-local) context, the client starts every later call at the gateway.
// This flag is sticky for the lifetime of the EscalationState.
//
// # Basic Usage
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithBaseURL("https://forum-api.example.com").
//	    WithGatewayURL("https://forum.example.com/.netlify/functions/api").
//	    WithFallbackURL("https://forum-backend.example.net").
//	    WithOrigin("https://forum.example.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if _, err := client.Login(ctx, map[string]string{
//	    "email":    "ada@example.com",
//	    "password": "secret",
//	}); err != nil {
//	    log.Fatal(err)
//	}
//
//	var threads []Thread
//	err = client.Get(ctx, "/forum/discussions", &threads)
//
// # Signals
//
// Presentation code subscribes to the SignalBus instead of polling:
//
//	client.Signals().Subscribe(func(s sdk.Signal) {
//	    switch s.Type {
//	    case sdk.SignalAuthenticationRequired:
//	        showLogin()
//	    case sdk.SignalConnectivity:
//	        setSimulationBanner(s.Connectivity == sdk.ConnectivityDegraded)
//	    }
//	})
//	go client.Monitor().Run(ctx)
//
// # Error Handling
//
// Failures are classified into an ErrorKind and can be matched with
// errors.Is against ErrNetwork, ErrTimeout, ErrCors, ErrAuthRejected,
// ErrServerError and ErrBackendUnreachable. When every transport failed the
// error is an *EscalationError that keeps all attempts for diagnostics.
//
// # WASM Support
//
// Built with GOOS=js GOARCH=wasm the transports use the browser's fetch API,
// and CORS is enforced by the browser itself. Native builds use net/http and
// emulate CORS enforcement when Config.Origin is set.
package sdk
