package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"polaris-api/internal/shared"

	"go.uber.org/zap"
)

func TestCandidates(t *testing.T) {
	got := Candidates("https://a.example/", []string{" https://b.example ", "https://a.example", "", "https://c.example"})
	want := []string{"https://a.example", "https://b.example", "https://c.example"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Candidates() = %v, want %v", got, want)
	}
}

func TestWebSocketCandidates(t *testing.T) {
	got := WebSocketCandidates([]string{"https://a.example", "http://b.example"})
	want := []string{"wss://a.example", "ws://b.example"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WebSocketCandidates() = %v, want %v", got, want)
	}
}

func TestNewClient_NoOverallTimeout(t *testing.T) {
	c := NewClient("https://a.example", nil, zap.NewNop().Sugar())

	// Streamed bodies must be readable indefinitely; only connection setup
	// is bounded.
	if c.HTTP.Timeout != 0 {
		t.Errorf("Client timeout = %v, want none", c.HTTP.Timeout)
	}
	tr, ok := c.HTTP.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport is %T, want *http.Transport", c.HTTP.Transport)
	}
	if tr.DialContext == nil {
		t.Error("Expected a bounded dialer on the transport")
	}
	if tr.TLSHandshakeTimeout != shared.DefaultDialTimeout {
		t.Errorf("TLSHandshakeTimeout = %v, want %v", tr.TLSHandshakeTimeout, shared.DefaultDialTimeout)
	}
}

func TestDo_PrimarySuccess(t *testing.T) {
	var gotPath, gotKey, gotClient string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		gotClient = r.Header.Get("x-goog-api-client")
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, zap.NewNop().Sugar())
	res, err := c.Do(context.Background(), http.MethodGet, "/v1beta/models", nil, "test-key")
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if gotPath != "/v1beta/models" {
		t.Errorf("Path = %q, want /v1beta/models", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("x-goog-api-key = %q, want test-key", gotKey)
	}
	if gotClient != shared.APIClient {
		t.Errorf("x-goog-api-client = %q, want %q", gotClient, shared.APIClient)
	}
}

func TestDo_FailoverOn5xx(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer primary.Close()

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fallback"))
	}))
	defer secondary.Close()

	c := NewClient(primary.URL, []string{secondary.URL}, zap.NewNop().Sugar())
	res, err := c.Do(context.Background(), http.MethodGet, "/v1beta/models", nil, "k")
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	body, _ := io.ReadAll(res.Body)
	if string(body) != "fallback" {
		t.Errorf("Body = %q, want the fallback's answer", body)
	}
}

func TestDo_4xxIsTerminal(t *testing.T) {
	var secondaryHits atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer primary.Close()

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryHits.Add(1)
	}))
	defer secondary.Close()

	c := NewClient(primary.URL, []string{secondary.URL}, zap.NewNop().Sugar())
	res, err := c.Do(context.Background(), http.MethodGet, "/v1beta/models", nil, "k")
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode != http.StatusNotFound {
		t.Errorf("Status = %d, want the 404 surfaced as-is", res.StatusCode)
	}
	if secondaryHits.Load() != 0 {
		t.Error("Fallback must not be tried after a 4xx")
	}
}

func TestDo_Exhausted(t *testing.T) {
	// Servers shut down before the request, so every attempt is a network error.
	dead1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url1, url2 := dead1.URL, dead2.URL
	dead1.Close()
	dead2.Close()

	c := NewClient(url1, []string{url2}, zap.NewNop().Sugar())
	_, err := c.Do(context.Background(), http.MethodGet, "/v1beta/models", nil, "k")
	if !errors.Is(err, shared.ErrAllEndpointsFailed) {
		t.Fatalf("Do() error = %v, want ErrAllEndpointsFailed", err)
	}

	var reqErr *shared.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatal("Expected a RequestError")
	}
	if reqErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", reqErr.StatusCode)
	}
}

func TestDo_ExhaustedAfterEveryCandidate(t *testing.T) {
	var mu sync.Mutex
	var order []string

	newFailing := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			http.Error(w, "down", http.StatusInternalServerError)
		}))
	}
	first := newFailing("first")
	defer first.Close()
	second := newFailing("second")
	defer second.Close()
	third := newFailing("third")
	defer third.Close()

	c := NewClient(first.URL, []string{second.URL, third.URL}, zap.NewNop().Sugar())
	_, err := c.Do(context.Background(), http.MethodGet, "/v1beta/models", nil, "k")
	if !errors.Is(err, shared.ErrAllEndpointsFailed) {
		t.Fatalf("Do() error = %v, want ErrAllEndpointsFailed", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(order, []string{"first", "second", "third"}) {
		t.Errorf("Attempt order = %v, want every candidate exactly once, primary first", order)
	}
}

func TestDo_BodyResentPerAttempt(t *testing.T) {
	var primaryBody, secondaryBody []byte
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryBody, _ = io.ReadAll(r.Body)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer primary.Close()

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryBody, _ = io.ReadAll(r.Body)
	}))
	defer secondary.Close()

	c := NewClient(primary.URL, []string{secondary.URL}, zap.NewNop().Sugar())
	res, err := c.Do(context.Background(), http.MethodPost, "/v1beta/x", []byte(`{"a":1}`), "k")
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if string(primaryBody) != `{"a":1}` || string(secondaryBody) != `{"a":1}` {
		t.Errorf("Each attempt must carry the full body, got %q then %q", primaryBody, secondaryBody)
	}
}
