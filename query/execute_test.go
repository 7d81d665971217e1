package query

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/kbukum/webquery/cache"
	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/logger"
	"github.com/kbukum/webquery/stream"
	"github.com/kbukum/webquery/transport"
)

func mustBuild(t *testing.T, e *Engine, s *Settings) *Exchange {
	t.Helper()
	ex, err := e.BuildRequest(context.Background(), s)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	return ex
}

func newHTTPEngine(t *testing.T) *Engine {
	t.Helper()
	tr, err := transport.NewHTTP(transport.Config{})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	return New(WithTransport(tr), WithLogger(logger.Nop()))
}

func TestExecute_HTTPRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Seen-Method", r.Method)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	e := newHTTPEngine(t)
	o := e.Execute(context.Background(), mustBuild(t, e, &Settings{URL: srv.URL + "/items", Method: "PUT"}))
	if o.Err != nil {
		t.Fatalf("unexpected error: %v", o.Err)
	}
	if o.StatusCode != http.StatusCreated || o.StatusDescription != "Created" {
		t.Errorf("unexpected status %d %q", o.StatusCode, o.StatusDescription)
	}
	if string(o.Content) != `{"ok":true}` || o.ContentType != "application/json" {
		t.Errorf("unexpected content %q (%s)", o.Content, o.ContentType)
	}
	if o.Headers.Get("X-Seen-Method") != "PUT" {
		t.Errorf("expected server to see PUT, got %q", o.Headers.Get("X-Seen-Method"))
	}
	if !o.IsSuccess() || o.Duration() < 0 {
		t.Errorf("expected success with a duration, got %+v", o)
	}
}

func TestExecute_ErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	e := newHTTPEngine(t)
	o := e.Execute(context.Background(), mustBuild(t, e, &Settings{URL: srv.URL}))
	if o.Err != nil {
		t.Errorf("expected no error for a 404, got %v", o.Err)
	}
	if o.StatusCode != http.StatusNotFound || o.IsSuccess() {
		t.Errorf("expected 404, got %d", o.StatusCode)
	}
}

func TestExecute_EmptyEntitySendsZeroContentLength(t *testing.T) {
	var gotLength string
	var gotContentLength int64 = -2
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLength = r.Header.Get("Content-Length")
		gotContentLength = r.ContentLength
	}))
	defer srv.Close()

	e := newHTTPEngine(t)
	o := e.Execute(context.Background(), mustBuild(t, e, &Settings{
		URL: srv.URL, Method: "POST", Entity: &Entity{Content: []byte{}},
	}))
	if o.Err != nil {
		t.Fatalf("unexpected error: %v", o.Err)
	}
	if gotLength != "0" || gotContentLength != 0 {
		t.Errorf("expected Content-Length: 0, server saw %q (%d)", gotLength, gotContentLength)
	}
}

func TestExecute_MultipartReachesServer(t *testing.T) {
	type seen struct {
		length int64
		title  string
		file   []byte
		name   string
	}
	got := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s seen
		s.length = r.ContentLength
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			s.title = r.FormValue("title")
			if f, h, err := r.FormFile("doc"); err == nil {
				s.file, _ = io.ReadAll(f)
				s.name = h.Filename
				_ = f.Close()
			}
		}
		got <- s
	}))
	defer srv.Close()

	e := newHTTPEngine(t)
	ex := mustBuild(t, e, &Settings{
		URL:    srv.URL + "/upload",
		Fields: []FieldPart{{Name: "title", Value: "quarterly"}},
		Files:  []FilePart{{Field: "doc", FileName: "r.csv", ContentType: "text/csv", Data: []byte("a,b\n1,2\n")}},
	})
	want := ex.Request.ContentLength
	o := e.Execute(context.Background(), ex)
	if o.Err != nil {
		t.Fatalf("unexpected error: %v", o.Err)
	}
	s := <-got
	if s.length != want {
		t.Errorf("server saw length %d, precomputed %d", s.length, want)
	}
	if s.title != "quarterly" || s.name != "r.csv" || string(s.file) != "a,b\n1,2\n" {
		t.Errorf("unexpected parts: %+v", s)
	}
}

func TestExecuteAsync_Timeout(t *testing.T) {
	e, mock := newTestEngine()
	ex := mustBuild(t, e, &Settings{
		URL:     "http://example.test/slow",
		Timeout: 50 * time.Millisecond,
		Expect:  &Expectation{Delay: 5 * time.Second, Content: []byte("late")},
	})

	var calls atomic.Int32
	done := make(chan *Outcome, 2)
	h := e.ExecuteAsync(context.Background(), ex, func(o *Outcome) {
		calls.Add(1)
		done <- o
	})

	var o *Outcome
	select {
	case o = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not fire")
	}
	if o.StatusCode != 0 || !o.TimedOut {
		t.Errorf("expected timed out outcome with status 0, got %d timedOut=%v", o.StatusCode, o.TimedOut)
	}
	if !wqerrors.IsCode(o.Err, wqerrors.ErrCodeTimeout) {
		t.Errorf("expected TIMEOUT error, got %v", o.Err)
	}
	if h.Outcome() != o {
		t.Error("handle should resolve with the continuation's outcome")
	}

	// the aborted transport result must be discarded
	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("expected continuation to run once, ran %d times", n)
	}
	if mock.Aborts() != 1 {
		t.Errorf("expected one transport abort, got %d", mock.Aborts())
	}
}

func TestExecute_TransportFailure(t *testing.T) {
	e, _ := newTestEngine()
	ex := mustBuild(t, e, &Settings{
		URL:    "http://example.test/down",
		Expect: &Expectation{Err: errors.New("connection refused")},
	})
	o := e.Execute(context.Background(), ex)
	if o.StatusCode != 0 {
		t.Errorf("expected status 0, got %d", o.StatusCode)
	}
	if !wqerrors.IsCode(o.Err, wqerrors.ErrCodeTransport) {
		t.Errorf("expected TRANSPORT_FAILURE, got %v", o.Err)
	}
	if o.Content == nil || len(o.Content) != 0 {
		t.Errorf("expected empty content, got %v", o.Content)
	}
}

func TestExecute_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := newHTTPEngine(t)
	o := e.Execute(context.Background(), mustBuild(t, e, &Settings{URL: url}))
	if o.StatusCode != 0 || !wqerrors.IsCode(o.Err, wqerrors.ErrCodeTransport) {
		t.Errorf("expected transport failure, got %d %v", o.StatusCode, o.Err)
	}
}

func TestExecute_Canceled(t *testing.T) {
	e, _ := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	ex, err := e.BuildRequest(ctx, &Settings{
		URL:    "http://example.test/slow",
		Expect: &Expectation{Delay: 5 * time.Second},
	})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	time.AfterFunc(20*time.Millisecond, cancel)
	o := e.Execute(ctx, ex)
	if !wqerrors.IsCode(o.Err, wqerrors.ErrCodeCanceled) {
		t.Errorf("expected CANCELED, got %v", o.Err)
	}
}

func TestExecute_MockSubstitution(t *testing.T) {
	network := transport.NewMock()
	network.Default = &Expectation{Content: []byte("network")}
	mock := transport.NewMock()
	e := New(WithTransport(network), WithMockTransport(mock), WithLogger(logger.Nop()))

	o := e.Execute(context.Background(), mustBuild(t, e, &Settings{
		URL: "http://example.test/a",
		Expect: &Expectation{
			StatusCode:  http.StatusAccepted,
			Content:     []byte(`{"id":7}`),
			ContentType: "application/json",
			Headers:     http.Header{"X-Mock": {"yes"}},
		},
	}))
	if !o.Mocked || o.StatusCode != http.StatusAccepted || string(o.Content) != `{"id":7}` {
		t.Errorf("unexpected mocked outcome: %+v", o)
	}
	if o.Headers.Get("X-Mock") != "yes" || o.ContentType != "application/json" {
		t.Errorf("expected mocked headers, got %v", o.Headers)
	}
	if network.Sends() != 0 || mock.Sends() != 1 {
		t.Errorf("expected only the mock transport to be used, network=%d mock=%d", network.Sends(), mock.Sends())
	}

	o = e.Execute(context.Background(), mustBuild(t, e, &Settings{URL: "http://example.test/a"}))
	if o.Mocked || string(o.Content) != "network" {
		t.Errorf("expected unmocked exchange to use the main transport, got %+v", o)
	}
}

func TestExecute_DecodesCompressedContent(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte("hello compressed world"))
	_ = zw.Close()

	e, _ := newTestEngine()
	o := e.Execute(context.Background(), mustBuild(t, e, &Settings{
		URL: "http://example.test/gz",
		Expect: &Expectation{
			Content: buf.Bytes(),
			Headers: http.Header{"Content-Encoding": {"gzip"}},
		},
	}))
	if string(o.Content) != "hello compressed world" {
		t.Errorf("expected decoded content, got %q", o.Content)
	}
	if o.Headers.Get("Content-Encoding") != "" {
		t.Error("expected Content-Encoding to be dropped after decoding")
	}
	if o.ContentLength != int64(len("hello compressed world")) {
		t.Errorf("unexpected content length %d", o.ContentLength)
	}
}

func TestExecute_Hooks(t *testing.T) {
	var before, after atomic.Int32
	e, _ := newTestEngine(WithHooks(Hooks{
		BeforeRequest: func(ex *Exchange) {
			before.Add(1)
			ex.Request.Header.Set("X-Hooked", "1")
		},
		ResponseAvailable: func(ex *Exchange, o *Outcome) {
			if ex.Outcome != o {
				t.Error("exchange outcome should be set before the hook runs")
			}
			after.Add(1)
		},
	}))
	ex := mustBuild(t, e, &Settings{URL: "http://example.test/a", Expect: &Expectation{}})
	e.Execute(context.Background(), ex)
	if before.Load() != 1 || after.Load() != 1 {
		t.Errorf("expected hooks once each, got %d/%d", before.Load(), after.Load())
	}
	if ex.Request.Header.Get("X-Hooked") != "1" {
		t.Error("expected BeforeRequest to see the request")
	}
}

func TestExecuteAsync_Unbuilt(t *testing.T) {
	e, _ := newTestEngine()
	o := e.ExecuteAsync(context.Background(), nil, nil).Wait()
	if !wqerrors.IsCode(o.Err, wqerrors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION error, got %v", o.Err)
	}
}

func TestHandle_WaitTimeout(t *testing.T) {
	e, _ := newTestEngine()
	ex := mustBuild(t, e, &Settings{
		URL:    "http://example.test/slow",
		Expect: &Expectation{Delay: 200 * time.Millisecond},
	})
	h := e.ExecuteAsync(context.Background(), ex, nil)
	if _, ok := h.WaitTimeout(10 * time.Millisecond); ok {
		t.Error("expected handle to still be pending")
	}
	if o, ok := h.WaitTimeout(2 * time.Second); !ok || o.StatusCode != http.StatusOK {
		t.Errorf("expected resolved 200, got %v %v", o, ok)
	}
}

func TestExecuteWithCache(t *testing.T) {
	e, mock := newTestEngine()
	mock.Default = &Expectation{Content: []byte("fresh")}
	store := cache.NewMemory()
	opts := cache.Options{Mode: cache.ModeSliding, Duration: time.Minute}
	key := cache.Key("test", "http://example.test/cached")

	first := e.ExecuteWithCache(context.Background(), store, key, opts, mustBuild(t, e, &Settings{URL: "http://example.test/cached"}))
	if first.FromCache || string(first.Content) != "fresh" {
		t.Fatalf("unexpected first outcome %+v", first)
	}
	second := e.ExecuteWithCache(context.Background(), store, key, opts, mustBuild(t, e, &Settings{URL: "http://example.test/cached"}))
	if !second.FromCache || string(second.Content) != "fresh" || second.StatusCode != http.StatusOK {
		t.Errorf("expected cached outcome, got %+v", second)
	}
	if mock.Sends() != 1 {
		t.Errorf("expected a single transport send, got %d", mock.Sends())
	}
}

func TestExecuteWithCache_SkipsFailures(t *testing.T) {
	e, mock := newTestEngine()
	mock.Default = &Expectation{StatusCode: http.StatusInternalServerError, Content: []byte("boom")}
	store := cache.NewMemory()
	key := cache.Key("", "http://example.test/err")

	e.ExecuteWithCache(context.Background(), store, key, cache.Options{}, mustBuild(t, e, &Settings{URL: "http://example.test/err"}))
	if store.Len() != 0 {
		t.Error("failed outcomes must not be cached")
	}
}

func TestExecuteWithCacheAsync(t *testing.T) {
	e, mock := newTestEngine()
	mock.Default = &Expectation{Content: []byte("v1")}
	store := cache.NewMemory()
	key := cache.Key("", "http://example.test/async")

	var wg sync.WaitGroup
	wg.Add(1)
	h := e.ExecuteWithCacheAsync(context.Background(), store, key, cache.Options{}, mustBuild(t, e, &Settings{URL: "http://example.test/async"}), func(*Outcome) { wg.Done() })
	wg.Wait()
	if o := h.Wait(); string(o.Content) != "v1" {
		t.Errorf("unexpected content %q", o.Content)
	}

	o := e.ExecuteWithCacheAsync(context.Background(), store, key, cache.Options{}, mustBuild(t, e, &Settings{URL: "http://example.test/async"}), nil).Wait()
	if !o.FromCache {
		t.Error("expected second async execution to hit the cache")
	}
}

func TestStream_PublishesMessages(t *testing.T) {
	e, _ := newTestEngine()
	ex := mustBuild(t, e, &Settings{
		URL:    "http://example.test/feed",
		Expect: &Expectation{Content: []byte("abc\rdef\r"), ContentType: "text/plain"},
	})
	var got []string
	o := e.Stream(context.Background(), ex, stream.Options{}, func(msg []byte) {
		got = append(got, string(msg))
	})
	if o.Err != nil {
		t.Fatalf("unexpected error: %v", o.Err)
	}
	if len(got) != 2 || got[0] != "abc" || got[1] != "def" {
		t.Errorf("expected [abc def], got %q", got)
	}
	if !o.Streaming || o.StatusCode != http.StatusOK {
		t.Errorf("unexpected stream outcome %+v", o)
	}
}

func TestStream_ErrorStatusReturnsContent(t *testing.T) {
	e, _ := newTestEngine()
	ex := mustBuild(t, e, &Settings{
		URL:    "http://example.test/feed",
		Expect: &Expectation{StatusCode: http.StatusForbidden, Content: []byte("a\rb\r")},
	})
	published := 0
	o := e.Stream(context.Background(), ex, stream.Options{}, func([]byte) { published++ })
	if published != 0 || o.StatusCode != http.StatusForbidden || string(o.Content) != "a\rb\r" {
		t.Errorf("expected undecoded 403 content, got %d %q (published %d)", o.StatusCode, o.Content, published)
	}
}

func TestStream_DurationEndsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, "first\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	e := newHTTPEngine(t)
	ex := mustBuild(t, e, &Settings{URL: srv.URL})
	var got []string
	start := time.Now()
	o := e.Stream(context.Background(), ex, stream.Options{Delimiter: '\n', Duration: 150 * time.Millisecond}, func(msg []byte) {
		got = append(got, string(msg))
	})
	if time.Since(start) > 3*time.Second {
		t.Error("stream did not end after its duration")
	}
	if o.Err != nil {
		t.Errorf("expected a clean end, got %v", o.Err)
	}
	if len(got) != 1 || got[0] != "first" {
		t.Errorf("expected [first], got %q", got)
	}
}
