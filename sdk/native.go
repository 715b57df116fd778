//go:build !wasm

package sdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// sharedTransports keeps one connection pool per TransportConfig so the
// direct, gateway, fallback and relay transports of a client reuse
// connections instead of each dialing its own.
var (
	sharedTransportsMu sync.Mutex
	sharedTransports   = map[TransportConfig]*http.Transport{}
)

func pooledTransport(cfg TransportConfig) *http.Transport {
	sharedTransportsMu.Lock()
	defer sharedTransportsMu.Unlock()

	if t, ok := sharedTransports[cfg]; ok {
		return t
	}
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	sharedTransports[cfg] = t
	return t
}

// nativeDoer performs requests with net/http. Budgets come from the context,
// so the client itself has no timeout.
type nativeDoer struct {
	client    *http.Client
	userAgent string
	origin    string
}

func newDoer(config *Config) doer {
	return &nativeDoer{
		client:    &http.Client{Transport: pooledTransport(config.TransportConfig)},
		userAgent: config.UserAgent,
		origin:    config.Origin,
	}
}

func (d *nativeDoer) do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*rawResponse, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, NewError(KindUnknown, fmt.Sprintf("failed to create request: %v", err), err)
	}

	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	if d.origin != "" {
		req.Header.Set("Origin", d.origin)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &rawResponse{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   respBody,
	}, nil
}

// closeIdle releases pooled connections for the given config
func closeIdle(config *Config) {
	pooledTransport(config.TransportConfig).CloseIdleConnections()
}
