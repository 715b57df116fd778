//go:build wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"
	"time"

	"github.com/birbparty/nestlink/sdk"
)

// clientWrapper exposes an sdk.Client to page scripts
type clientWrapper struct {
	client sdk.Client
	cancel context.CancelFunc
}

func main() {
	nestlink := make(map[string]interface{})
	nestlink["newClient"] = js.FuncOf(newClient)
	js.Global().Set("nestlink", nestlink)

	fmt.Println("nestlink WASM loaded")

	// Keep the program running
	select {}
}

// newClient creates a client from a JavaScript config object:
//
//	nestlink.newClient({
//	  baseURL: "https://forum-api.example.com",
//	  gatewayURL: "/.netlify/functions/api",
//	  fallbackURL: "https://forum-backend.example.net",
//	})
func newClient(this js.Value, args []js.Value) interface{} {
	if len(args) != 1 {
		return jsError("newClient requires exactly one argument")
	}

	opts := args[0]
	origin := js.Global().Get("location").Get("origin").String()
	config := sdk.DefaultConfig().
		WithOrigin(origin).
		WithSessionStore(&localStorageStore{key: "nestlink.session"})

	if v := opts.Get("baseURL"); !v.IsUndefined() {
		config.BaseURL = v.String()
	}
	if v := opts.Get("gatewayURL"); !v.IsUndefined() {
		config.GatewayURL = absolute(origin, v.String())
	}
	if v := opts.Get("fallbackURL"); !v.IsUndefined() {
		config.FallbackURL = v.String()
	}
	if v := opts.Get("healthIntervalMs"); !v.IsUndefined() {
		config.HealthInterval = time.Duration(v.Int()) * time.Millisecond
	}

	client, err := sdk.NewClient(config)
	if err != nil {
		return jsError(fmt.Sprintf("failed to create client: %v", err))
	}

	w := &clientWrapper{client: client}

	clientObj := make(map[string]interface{})
	clientObj["get"] = js.FuncOf(w.get)
	clientObj["post"] = js.FuncOf(w.send("POST"))
	clientObj["put"] = js.FuncOf(w.send("PUT"))
	clientObj["delete"] = js.FuncOf(w.del)
	clientObj["login"] = js.FuncOf(w.login)
	clientObj["logout"] = js.FuncOf(w.logout)
	clientObj["onSignal"] = js.FuncOf(w.onSignal)
	clientObj["startMonitor"] = js.FuncOf(w.startMonitor)
	clientObj["stopMonitor"] = js.FuncOf(w.stopMonitor)

	return clientObj
}

func absolute(origin, u string) string {
	if len(u) > 0 && u[0] == '/' {
		return origin + u
	}
	return u
}

// get fetches a path and resolves with the decoded payload
func (w *clientWrapper) get(this js.Value, args []js.Value) interface{} {
	return jsPromise(func() (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("get requires exactly one argument: path")
		}

		var result interface{}
		if err := w.client.Get(context.Background(), args[0].String(), &result); err != nil {
			return nil, err
		}
		return goValueToJS(result), nil
	})
}

// send returns the binding for a method that carries a body
func (w *clientWrapper) send(method string) func(js.Value, []js.Value) interface{} {
	return func(this js.Value, args []js.Value) interface{} {
		return jsPromise(func() (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("%s requires exactly two arguments: path and body", method)
			}

			result, err := w.client.Do(context.Background(), sdk.NewRequest(method, args[0].String(), jsValueToGo(args[1])))
			if err != nil {
				return nil, err
			}
			var out interface{}
			if err := result.Decode(&out); err != nil {
				return nil, err
			}
			return goValueToJS(out), nil
		})
	}
}

func (w *clientWrapper) del(this js.Value, args []js.Value) interface{} {
	return jsPromise(func() (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("delete requires exactly one argument: path")
		}
		if err := w.client.Delete(context.Background(), args[0].String(), nil); err != nil {
			return nil, err
		}
		return js.Undefined(), nil
	})
}

// login resolves with the session's public fields
func (w *clientWrapper) login(this js.Value, args []js.Value) interface{} {
	return jsPromise(func() (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("login requires exactly one argument: credentials")
		}

		session, err := w.client.Login(context.Background(), jsValueToGo(args[0]))
		if err != nil {
			return nil, err
		}
		return goValueToJS(map[string]string{
			"userId":      session.UserID,
			"role":        session.Role,
			"displayName": session.DisplayName,
		}), nil
	})
}

func (w *clientWrapper) logout(this js.Value, args []js.Value) interface{} {
	return jsPromise(func() (interface{}, error) {
		if err := w.client.Logout(context.Background()); err != nil {
			return nil, err
		}
		return js.Undefined(), nil
	})
}

// onSignal registers a callback and returns an unsubscribe function.
// The callback receives {type, connectivity, path}.
func (w *clientWrapper) onSignal(this js.Value, args []js.Value) interface{} {
	if len(args) != 1 || args[0].Type() != js.TypeFunction {
		return jsError("onSignal requires a callback")
	}
	callback := args[0]

	unsubscribe := w.client.Signals().Subscribe(func(s sdk.Signal) {
		callback.Invoke(goValueToJS(map[string]string{
			"type":         s.Type.String(),
			"connectivity": s.Connectivity.String(),
			"path":         s.Path,
		}))
	})

	var release js.Func
	release = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		unsubscribe()
		release.Release()
		return nil
	})
	return release
}

func (w *clientWrapper) startMonitor(this js.Value, args []js.Value) interface{} {
	if w.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.client.Monitor().Run(ctx)
	return nil
}

func (w *clientWrapper) stopMonitor(this js.Value, args []js.Value) interface{} {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	return nil
}

// localStorageStore persists the session in window.localStorage so a page
// reload keeps the user logged in
type localStorageStore struct {
	key string
}

func (s *localStorageStore) storage() js.Value {
	return js.Global().Get("localStorage")
}

func (s *localStorageStore) Read(ctx context.Context) (*sdk.Session, error) {
	raw := s.storage().Call("getItem", s.key)
	if raw.IsNull() || raw.IsUndefined() {
		return nil, nil
	}
	var session sdk.Session
	if err := json.Unmarshal([]byte(raw.String()), &session); err != nil {
		return nil, fmt.Errorf("corrupt stored session: %w", err)
	}
	return &session, nil
}

func (s *localStorageStore) Write(ctx context.Context, session sdk.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	s.storage().Call("setItem", s.key, string(data))
	return nil
}

func (s *localStorageStore) Clear(ctx context.Context) error {
	s.storage().Call("removeItem", s.key)
	return nil
}

// jsPromise creates a JavaScript promise from a Go function
func jsPromise(fn func() (interface{}, error)) js.Value {
	promise := js.Global().Get("Promise")

	return promise.New(js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolve := args[0]
		reject := args[1]

		go func() {
			result, err := fn()
			if err != nil {
				reject.Invoke(jsError(err.Error()))
			} else {
				resolve.Invoke(result)
			}
		}()

		return nil
	}))
}

// jsError creates a JavaScript Error object
func jsError(message string) js.Value {
	return js.Global().Get("Error").New(message)
}

// jsValueToGo converts a JavaScript value to a Go value
func jsValueToGo(val js.Value) interface{} {
	switch val.Type() {
	case js.TypeNull, js.TypeUndefined:
		return nil
	case js.TypeBoolean:
		return val.Bool()
	case js.TypeNumber:
		return val.Float()
	case js.TypeString:
		return val.String()
	case js.TypeObject:
		jsonStr := js.Global().Get("JSON").Call("stringify", val).String()
		var result interface{}
		_ = json.Unmarshal([]byte(jsonStr), &result)
		return result
	default:
		return nil
	}
}

// goValueToJS converts a Go value to a JavaScript value
func goValueToJS(val interface{}) js.Value {
	if val == nil {
		return js.Null()
	}

	jsonBytes, err := json.Marshal(val)
	if err != nil {
		return js.Null()
	}

	return js.Global().Get("JSON").Call("parse", string(jsonBytes))
}
