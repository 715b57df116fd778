//go:build wasm

package sdk

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"syscall/js"
)

// fetchDoer performs requests with the browser's fetch API. The browser
// enforces CORS itself, so a rejected fetch is reported as a CORS failure:
// from inside the page a blocked cross-origin read and a dropped connection
// look the same, and both escalate identically.
type fetchDoer struct{}

func newDoer(config *Config) doer {
	return &fetchDoer{}
}

func (d *fetchDoer) do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*rawResponse, error) {
	fetchFunc := js.Global().Get("fetch")
	if !fetchFunc.Truthy() {
		return nil, NewError(KindUnknown, "fetch API not available", nil)
	}

	abort := js.Global().Get("AbortController").New()

	jsHeaders := map[string]interface{}{}
	for k, v := range headers {
		jsHeaders[k] = v
	}
	opts := map[string]interface{}{
		"method":      method,
		"headers":     jsHeaders,
		"mode":        "cors",
		"credentials": "same-origin",
		"signal":      abort.Get("signal"),
	}
	if body != nil {
		opts["body"] = string(body)
	}

	type fetchResult struct {
		resp *rawResponse
		err  error
	}
	resultChan := make(chan fetchResult, 1)

	var onResponse, onText, onError js.Func
	release := func() {
		onResponse.Release()
		onText.Release()
		onError.Release()
	}

	status := 0
	respHeaders := http.Header{}
	onText = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resultChan <- fetchResult{resp: &rawResponse{
			Status: status,
			Header: respHeaders,
			Body:   []byte(args[0].String()),

			corsEnforced: true,
		}}
		return nil
	})
	onResponse = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		response := args[0]
		status = response.Get("status").Int()
		// Headers readable from script; CORS was already enforced by fetch
		respHeaders.Set("Content-Type", response.Get("headers").Call("get", "content-type").String())
		response.Call("text").Call("then", onText).Call("catch", onError)
		return nil
	})
	onError = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		msg := "failed to fetch"
		if len(args) > 0 && args[0].Get("message").Truthy() {
			msg = args[0].Get("message").String()
		}
		resultChan <- fetchResult{err: classifyFetchRejection(msg)}
		return nil
	})

	fetchFunc.Invoke(url, js.ValueOf(opts)).Call("then", onResponse).Call("catch", onError)

	select {
	case <-ctx.Done():
		abort.Call("abort")
		// Wait for the aborted promise to settle before releasing callbacks
		<-resultChan
		release()
		return nil, ctx.Err()
	case r := <-resultChan:
		release()
		return r.resp, r.err
	}
}

// classifyFetchRejection maps a fetch TypeError message onto a kind
func classifyFetchRejection(msg string) error {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "abort") {
		return fmt.Errorf("fetch aborted: %s", msg)
	}
	return NewError(KindCors, msg, nil)
}

func closeIdle(config *Config) {}
