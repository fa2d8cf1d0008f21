package kis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kis-gateway/internal/config"
)

const (
	testAppKey    = "test-app-key"
	testAppSecret = "test-app-secret"
	testAccount   = "50000000-01"
)

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Query  url.Values
	Body   []byte
}

// fakeKIS 模拟券商开放接口：令牌按顺序签发，其他路径由测试注册响应。
type fakeKIS struct {
	server *httptest.Server

	tokenCalls atomic.Int32
	tokenDelay time.Duration
	tokenTTL   int64
	tokens     []string
	tokenReply func(w http.ResponseWriter)

	mu        sync.Mutex
	handlers  map[string]http.HandlerFunc
	requests  []recordedRequest
	tokenBody []byte
}

func newFakeKIS(t *testing.T) *fakeKIS {
	t.Helper()

	f := &fakeKIS{
		tokenTTL: 86400,
		tokens:   []string{"token-1", "token-2", "token-3"},
		handlers: make(map[string]http.HandlerFunc),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeKIS) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	if r.URL.Path == tokenPath {
		f.mu.Lock()
		f.tokenBody = body
		f.mu.Unlock()
		f.serveToken(w)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Query:  r.URL.Query(),
		Body:   body,
	})
	handler, ok := f.handlers[r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

func (f *fakeKIS) serveToken(w http.ResponseWriter) {
	n := int(f.tokenCalls.Add(1))
	if f.tokenDelay > 0 {
		time.Sleep(f.tokenDelay)
	}
	if f.tokenReply != nil {
		f.tokenReply(w)
		return
	}

	token := f.tokens[len(f.tokens)-1]
	if n <= len(f.tokens) {
		token = f.tokens[n-1]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   f.tokenTTL,
	})
}

func (f *fakeKIS) handle(path string, status int, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, status, payload)
	}
}

func (f *fakeKIS) handleRaw(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (f *fakeKIS) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeKIS) lastTokenBody() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenBody
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []CallEvent
}

func (o *recordingObserver) ObserveCall(_ context.Context, event CallEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) snapshot() []CallEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]CallEvent, len(o.events))
	copy(out, o.events)
	return out
}

func testBrokerConfig(baseURL string) config.BrokerConfig {
	return config.BrokerConfig{
		Environment:    config.BrokerVirtual,
		BaseURL:        baseURL,
		AppKey:         testAppKey,
		AppSecret:      testAppSecret,
		AccountNumber:  testAccount,
		CustomerType:   "P",
		Timeout:        5 * time.Second,
		MaxConcurrency: 4,
	}
}

func newTestClient(t *testing.T, f *fakeKIS, opts ...Option) *Client {
	t.Helper()
	client, err := NewClient(testBrokerConfig(f.server.URL), nil, opts...)
	require.NoError(t, err)
	return client
}
