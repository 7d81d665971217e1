package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/webquery/auth"
	"github.com/kbukum/webquery/cache"
	"github.com/kbukum/webquery/cache/rediscache"
	"github.com/kbukum/webquery/cache/sqlcache"
	"github.com/kbukum/webquery/config"
	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/logger"
	"github.com/kbukum/webquery/query"
	"github.com/kbukum/webquery/resilience"
	"github.com/kbukum/webquery/retry"
	"github.com/kbukum/webquery/transport"
)

// newMockClient returns a client whose network transport is a mock
// answering with def.
func newMockClient(t *testing.T, cfg Config, def *query.Expectation, opts ...Option) (*Client, *transport.Mock) {
	t.Helper()
	mock := transport.NewMock()
	mock.Default = def
	if cfg.Authority == "" {
		cfg.Authority = "http://api.test"
	}
	base := []Option{WithTransport(mock), WithMockTransport(mock), WithLogger(logger.Nop())}
	c, err := New(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mock
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"authority", Config{Authority: "https://api.example.com"}, false},
		{"relative authority", Config{Authority: "api.example.com"}, true},
		{"bad method", Config{Method: "FETCH"}, true},
		{"bad format", Config{Format: "xml"}, true},
		{"redis without section", Config{Cache: CacheConfig{Backend: BackendRedis}}, true},
		{"sqlite without path", Config{Cache: CacheConfig{Backend: BackendSQLite, SQLite: &sqlcache.Config{}}}, true},
		{"unknown backend", Config{Cache: CacheConfig{Backend: "memcached"}}, true},
		{"sliding without duration", Config{Cache: CacheConfig{Defaults: cache.Options{Mode: cache.ModeSliding}}}, true},
		{"negative retries", Config{Retry: &RetryConfig{MaxRetries: -1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.ApplyDefaults()
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	yaml := `name: billing
authority: https://billing.example.com
version_path: v1
timeout: 15s
headers:
  x-team: payments
cache:
  backend: memory
  defaults:
    mode: sliding
    duration: 1m
retry:
  max_retries: 2
  on_server_error: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig("client", config.WithConfigFile(path))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "billing" || cfg.VersionPath != "v1" || cfg.Timeout != 15*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Cache.Defaults.Mode != cache.ModeSliding || cfg.Cache.Defaults.Duration != time.Minute {
		t.Errorf("unexpected cache defaults %+v", cfg.Cache.Defaults)
	}
	p := cfg.Retry.Policy()
	if p.MaxRetries != 2 || len(p.Conditions) != 1 {
		t.Errorf("unexpected retry policy %+v", p)
	}
}

func TestResolve_MergesSettings(t *testing.T) {
	c, _ := newMockClient(t, Config{
		Authority:   "http://api.test/",
		VersionPath: "/v2/",
		Headers:     map[string]string{"X-Team": "core", "Accept": "application/json"},
		Parameters:  map[string]string{"lang": "en"},
		UserAgent:   "client-test/1.0",
		Timeout:     5 * time.Second,
	}, nil)

	req := &Request{
		Path:       "/users/42",
		Headers:    http.Header{"Accept": {"application/yaml"}},
		Parameters: map[string][]string{"lang": {"de"}, "page": {"1"}},
		Timeout:    time.Second,
	}
	s, err := c.resolve(req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.URL != "http://api.test/v2/users/42" {
		t.Errorf("unexpected url %q", s.URL)
	}
	if s.Headers.Get("Accept") != "application/yaml" || s.Headers.Get("X-Team") != "core" {
		t.Errorf("expected request headers to win over client headers, got %v", s.Headers)
	}
	if s.Parameters.Get("lang") != "de" || s.Parameters.Get("page") != "1" {
		t.Errorf("unexpected parameters %v", s.Parameters)
	}
	if s.Timeout != time.Second || s.UserAgent != "client-test/1.0" {
		t.Errorf("unexpected timeout %v or user agent %q", s.Timeout, s.UserAgent)
	}
	if s.EffectiveMethod() != http.MethodGet {
		t.Errorf("expected GET without entity, got %s", s.EffectiveMethod())
	}

	s, _ = c.resolve(&Request{Path: "https://other.test/x", Entity: map[string]int{"n": 1}})
	if s.URL != "https://other.test/x" {
		t.Errorf("expected absolute path to be kept, got %q", s.URL)
	}
	if s.EffectiveMethod() != http.MethodPost || s.Entity.ContentType != "application/json" {
		t.Errorf("expected JSON POST, got %s %q", s.EffectiveMethod(), s.Entity.ContentType)
	}
}

func TestResolve_NoAuthority(t *testing.T) {
	c, err := New(Config{}, WithTransport(transport.NewMock()), WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Request(context.Background(), &Request{Path: "users"}); !wqerrors.IsCode(err, wqerrors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION error, got %v", err)
	}
}

func TestRequest_DecodesEntity(t *testing.T) {
	type user struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/7" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user{ID: 7, Name: "Ada"})
	}))
	defer srv.Close()

	c, err := New(Config{Authority: srv.URL, VersionPath: "v1"}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	resp, err := Get[user](context.Background(), c, "users/7")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.Data.ID != 7 || resp.Data.Name != "Ada" {
		t.Errorf("unexpected entity %+v", resp.Data)
	}
	if resp.StatusCode != http.StatusOK || resp.Attempts != 1 || !resp.IsSuccess() {
		t.Errorf("unexpected response %+v", resp.Response)
	}
}

func TestRequest_PostsSerializedEntity(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Errorf("unexpected content type %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := New(Config{Authority: srv.URL}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	resp, err := c.Post(context.Background(), "items", map[string]string{"name": "widget"})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if resp.StatusCode != http.StatusCreated || got["name"] != "widget" {
		t.Errorf("unexpected result %d %v", resp.StatusCode, got)
	}
	if resp.Content == nil {
		t.Error("content must never be nil")
	}
}

func TestRequest_ErrorEntity(t *testing.T) {
	type apiError struct {
		Code string `json:"code"`
	}
	c, _ := newMockClient(t, Config{}, &query.Expectation{
		StatusCode: http.StatusUnprocessableEntity, Content: []byte(`{"code":"invalid"}`), ContentType: "application/json",
	})
	var result map[string]any
	var apiErr apiError
	resp, err := c.Request(context.Background(), &Request{Path: "x", Result: &result, ErrorResult: &apiErr})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Entity != nil || result != nil {
		t.Error("expected no entity for a failed response")
	}
	if resp.ErrorEntity == nil || apiErr.Code != "invalid" {
		t.Errorf("expected error entity, got %+v", apiErr)
	}
}

func TestRequest_DeserializationFailure(t *testing.T) {
	c, _ := newMockClient(t, Config{}, &query.Expectation{Content: []byte("not json"), ContentType: "application/json"})
	var out struct{ A int }
	resp, err := c.Request(context.Background(), &Request{Path: "x", Result: &out})
	if !wqerrors.IsCode(err, wqerrors.ErrCodeDeserialization) {
		t.Fatalf("expected DESERIALIZATION error, got %v", err)
	}
	if resp == nil || !wqerrors.IsCode(resp.Err, wqerrors.ErrCodeDeserialization) {
		t.Error("expected the response to carry the deserialization error")
	}
}

func TestRequest_TotalFailureShape(t *testing.T) {
	c, _ := newMockClient(t, Config{}, &query.Expectation{Err: errors.New("connection reset")})
	resp, err := c.Request(context.Background(), &Request{Path: "x"})
	if err != nil {
		t.Fatalf("transport failures must not be returned: %v", err)
	}
	if resp.StatusCode != 0 || resp.Content == nil || len(resp.Content) != 0 {
		t.Errorf("expected status 0 with empty content, got %d %v", resp.StatusCode, resp.Content)
	}
	if !wqerrors.IsCode(resp.Err, wqerrors.ErrCodeTransport) {
		t.Errorf("expected TRANSPORT_FAILURE, got %v", resp.Err)
	}
}

func TestRequest_RetriesAlways(t *testing.T) {
	var retries []int
	c, mock := newMockClient(t, Config{}, &query.Expectation{StatusCode: http.StatusOK}, WithHooks(Hooks{
		OnBeforeRetry: func(_ *Request, attempt int, _ *query.Outcome) { retries = append(retries, attempt) },
	}))
	req := &Request{Path: "x", Retry: &retry.Policy{MaxRetries: 3, Conditions: []retry.Condition{retry.Always()}}}
	resp, err := c.Request(context.Background(), req)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if mock.Sends() != 4 || resp.Attempts != 4 || req.Attempts() != 4 {
		t.Errorf("expected 4 attempts, sends=%d resp=%d req=%d", mock.Sends(), resp.Attempts, req.Attempts())
	}
	if len(retries) != 3 || retries[0] != 2 || retries[2] != 4 {
		t.Errorf("unexpected retry notifications %v", retries)
	}
	if req.LastAttempt().IsZero() {
		t.Error("expected last attempt to be recorded")
	}
}

func TestRequest_NoConditionsSingleAttempt(t *testing.T) {
	c, mock := newMockClient(t, Config{}, &query.Expectation{StatusCode: http.StatusServiceUnavailable})
	resp, _ := c.Request(context.Background(), &Request{Path: "x", Retry: &retry.Policy{MaxRetries: 5}})
	if mock.Sends() != 1 || resp.Attempts != 1 {
		t.Errorf("expected a single attempt, got %d", mock.Sends())
	}
}

func TestRequest_RetryStopsOnSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, err := New(Config{
		Authority: srv.URL,
		Retry: &RetryConfig{
			MaxRetries:    5,
			OnServerError: true,
			Backoff:       &resilience.BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond},
		},
	}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	resp, _ := c.Get(context.Background(), "flaky")
	if resp.StatusCode != http.StatusOK || resp.Attempts != 3 || string(resp.Content) != "ok" {
		t.Errorf("expected success on the third attempt, got %d after %d", resp.StatusCode, resp.Attempts)
	}
}

func TestRequest_ConfigurationNeverRetried(t *testing.T) {
	c, mock := newMockClient(t, Config{}, &query.Expectation{})
	req := &Request{
		Method: http.MethodGet,
		Path:   "upload",
		Files:  []query.FilePart{{Field: "f", FileName: "a.txt", Data: []byte("x")}},
		Retry:  &retry.Policy{MaxRetries: 3, Conditions: []retry.Condition{retry.Exception("any", func(error) bool { return true })}},
	}
	resp, err := c.Request(context.Background(), req)
	if !wqerrors.IsCode(err, wqerrors.ErrCodeConfiguration) {
		t.Fatalf("expected CONFIGURATION error, got %v", err)
	}
	if mock.Sends() != 0 || resp.Attempts != 1 || resp.StatusCode != 0 {
		t.Errorf("expected a single failed attempt without sending, got sends=%d attempts=%d", mock.Sends(), resp.Attempts)
	}
}

func TestRequest_CacheThrough(t *testing.T) {
	c, mock := newMockClient(t, Config{Cache: CacheConfig{Backend: BackendMemory}},
		&query.Expectation{Content: []byte(`{"v":1}`), ContentType: "application/json"})

	opts := CacheOptions{Mode: cache.ModeAbsolute, Duration: time.Minute, KeyPrefix: "users"}
	first, _ := c.Get(context.Background(), "users/1", WithCache(opts))
	second, _ := c.Get(context.Background(), "users/1", WithCache(opts))
	if first.FromCache || !second.FromCache {
		t.Errorf("expected only the second response from cache, got %v %v", first.FromCache, second.FromCache)
	}
	if string(second.Content) != string(first.Content) {
		t.Errorf("cached content %q differs from %q", second.Content, first.Content)
	}
	if mock.Sends() != 1 {
		t.Errorf("expected a single transport send, got %d", mock.Sends())
	}

	// multipart requests bypass the cache
	for i := 0; i < 2; i++ {
		_, _ = c.Request(context.Background(), &Request{
			Path:   "users/1",
			Fields: []query.FieldPart{{Name: "a", Value: "b"}},
			Cache:  &opts,
		})
	}
	if mock.Sends() != 3 {
		t.Errorf("expected multipart requests to reach the transport, got %d sends", mock.Sends())
	}
}

func TestRequest_RedisCacheBackend(t *testing.T) {
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mini.Close()

	c, mock := newMockClient(t, Config{Cache: CacheConfig{
		Backend:  BackendRedis,
		Redis:    &rediscache.Config{Addr: mini.Addr()},
		Defaults: cache.Options{Mode: cache.ModeSliding, Duration: time.Minute},
	}}, &query.Expectation{Content: []byte("cached")})

	for i := 0; i < 3; i++ {
		resp, _ := c.Get(context.Background(), "doc", WithCache(CacheOptions{}))
		if string(resp.Content) != "cached" {
			t.Fatalf("unexpected content %q", resp.Content)
		}
	}
	if mock.Sends() != 1 {
		t.Errorf("expected redis to serve repeats, got %d sends", mock.Sends())
	}
}

func TestRequest_SQLiteCacheBackend(t *testing.T) {
	c, mock := newMockClient(t, Config{Cache: CacheConfig{
		Backend: BackendSQLite,
		SQLite:  &sqlcache.Config{Path: filepath.Join(t.TempDir(), "cache.db")},
	}}, &query.Expectation{Content: []byte("persisted")})

	for i := 0; i < 2; i++ {
		_, _ = c.Get(context.Background(), "doc", WithCache(CacheOptions{Mode: cache.ModeNone}))
	}
	if mock.Sends() != 1 {
		t.Errorf("expected sqlite to serve the repeat, got %d sends", mock.Sends())
	}
}

func TestRequest_MockedRequest(t *testing.T) {
	network := transport.NewMock()
	network.Default = &query.Expectation{Content: []byte("network")}
	mock := transport.NewMock()
	c, err := New(Config{Authority: "http://api.test"},
		WithTransport(network), WithMockTransport(mock), WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, _ := c.Get(context.Background(), "x", WithExpect(&query.Expectation{
		StatusCode: http.StatusTeapot, Content: []byte("mocked"),
	}))
	if !resp.IsMock || resp.StatusCode != http.StatusTeapot || string(resp.Content) != "mocked" {
		t.Errorf("unexpected mocked response %+v", resp)
	}
	if network.Sends() != 0 {
		t.Error("mocked request must not reach the network transport")
	}
}

func TestRequest_BreakerOpens(t *testing.T) {
	c, mock := newMockClient(t, Config{
		Breaker: &resilience.BreakerConfig{MaxFailures: 2, OpenFor: time.Minute, HalfOpenMaxCalls: 1},
	}, &query.Expectation{StatusCode: http.StatusInternalServerError})

	for i := 0; i < 2; i++ {
		_, _ = c.Get(context.Background(), "x")
	}
	resp, _ := c.Get(context.Background(), "x")
	if mock.Sends() != 2 {
		t.Errorf("expected the open breaker to stop the third send, got %d", mock.Sends())
	}
	if !errors.Is(resp.Err, resilience.ErrCircuitOpen) || resp.StatusCode != 0 {
		t.Errorf("expected circuit open failure, got %v", resp.Err)
	}
}

func TestRequest_RateLimited(t *testing.T) {
	c, _ := newMockClient(t, Config{
		RateLimiter: &resilience.RateLimiterConfig{Rate: 1, Burst: 1},
	}, &query.Expectation{})

	if resp, _ := c.Get(context.Background(), "x"); resp.Err != nil {
		t.Fatalf("unexpected error: %v", resp.Err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	resp, _ := c.Get(ctx, "x")
	if !wqerrors.IsCode(resp.Err, wqerrors.ErrCodeCanceled) {
		t.Errorf("expected the limiter wait to be canceled, got %v", resp.Err)
	}
}

func TestRequest_Authorization(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c, err := New(Config{Authority: srv.URL, Auth: &auth.Config{Scheme: auth.SchemeBearer, Token: "cfg-token"}}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	_, _ = c.Head(context.Background(), "x")
	if got != "Bearer cfg-token" {
		t.Errorf("expected configured bearer token, got %q", got)
	}
}

func TestRequest_NamedCredentials(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	c, err := New(Config{
		Authority: srv.URL,
		Auth:      &auth.Config{Scheme: auth.SchemeBearer, Token: "default"},
		Credentials: map[string]auth.Config{
			"admin": {Scheme: auth.SchemeBearer, Token: "admin"},
		},
	}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	_, _ = c.Get(context.Background(), "a")
	_, _ = c.Get(context.Background(), "b", WithCredentialsName("admin"))
	if len(got) != 2 || got[0] != "Bearer default" || got[1] != "Bearer admin" {
		t.Errorf("unexpected authorization headers %v", got)
	}
	if _, err := c.Get(context.Background(), "c", WithCredentialsName("nobody")); !wqerrors.IsCode(err, wqerrors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION error for unknown credentials, got %v", err)
	}
}
