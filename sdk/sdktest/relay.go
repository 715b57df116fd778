package sdktest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
)

// Relay is a test double of a public CORS relay. It fetches the target
// given in the "url" query parameter and answers with its body, either raw
// or inside a {"contents": "..."} envelope.
type Relay struct {
	*httptest.Server
	envelope bool
	failing  atomic.Bool
	hits     atomic.Int32

	mu      sync.Mutex
	targets []string
}

// NewRelay starts a relay. envelope selects the allorigins-style wrapper.
func NewRelay(envelope bool) *Relay {
	r := &Relay{envelope: envelope}
	r.Server = httptest.NewServer(http.HandlerFunc(r.handle))
	return r
}

// Prefix is the string a relay strategy prepends to the encoded target
func (r *Relay) Prefix() string {
	return r.URL + "/proxy?url="
}

// Fail makes the relay answer 502 until called with false
func (r *Relay) Fail(on bool) {
	r.failing.Store(on)
}

// Hits returns how many requests the relay received
func (r *Relay) Hits() int {
	return int(r.hits.Load())
}

// Targets returns the decoded target URLs the relay was asked for
func (r *Relay) Targets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.targets...)
}

func (r *Relay) handle(w http.ResponseWriter, req *http.Request) {
	r.hits.Add(1)
	target := req.URL.Query().Get("url")

	r.mu.Lock()
	r.targets = append(r.targets, target)
	r.mu.Unlock()

	if r.failing.Load() || target == "" {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	resp, err := http.Get(target)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if r.envelope {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"contents": string(body),
			"status":   map[string]int{"http_code": resp.StatusCode},
		})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

// Envelope wraps body the way an enveloping relay does
func Envelope(body string) []byte {
	data, _ := json.Marshal(map[string]string{"contents": body})
	return data
}
