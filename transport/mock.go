package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Expectation declares the response a mocked exchange produces.
type Expectation struct {
	// StatusCode defaults to 200.
	StatusCode int
	// StatusDescription defaults to the standard text for StatusCode.
	StatusDescription string
	// Content is the response body.
	Content []byte
	// ContentType is sent as the Content-Type header when set.
	ContentType string
	// Headers are copied onto the response.
	Headers http.Header
	// Delay holds the response back, letting timeouts and aborts be tested.
	Delay time.Duration
	// Err makes Send fail with this error instead of answering.
	Err error
}

type expectationKey struct{}

// WithExpectation attaches exp to ctx for Mock to answer with.
func WithExpectation(ctx context.Context, exp *Expectation) context.Context {
	return context.WithValue(ctx, expectationKey{}, exp)
}

// ExpectationFromContext returns the expectation set by WithExpectation, or nil.
func ExpectationFromContext(ctx context.Context) *Expectation {
	if e, ok := ctx.Value(expectationKey{}).(*Expectation); ok {
		return e
	}
	return nil
}

// ErrAborted is returned by Mock.Send when the call was aborted.
var ErrAborted = errors.New("transport: exchange aborted")

// Mock is a Transport that builds responses from expectations instead of
// using the network.
type Mock struct {
	// Default answers requests that carry no expectation in their context.
	Default *Expectation

	sends  atomic.Int64
	aborts atomic.Int64

	mu       sync.Mutex
	inflight map[*http.Request]chan struct{}
	aborted  map[*http.Request]bool
	last     *http.Request
}

var _ Transport = (*Mock)(nil)

// NewMock creates a mock transport.
func NewMock() *Mock {
	return &Mock{inflight: make(map[*http.Request]chan struct{})}
}

// Send answers req from its expectation.
func (m *Mock) Send(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("transport: nil request")
	}
	m.sends.Add(1)

	exp := ExpectationFromContext(req.Context())
	if exp == nil {
		exp = m.Default
	}
	if exp == nil {
		return nil, fmt.Errorf("transport: no expectation for %s %s", req.Method, req.URL)
	}

	abort := make(chan struct{})
	m.mu.Lock()
	if m.inflight == nil {
		m.inflight = make(map[*http.Request]chan struct{})
	}
	m.last = req
	if m.aborted[req] {
		delete(m.aborted, req)
		m.mu.Unlock()
		return nil, ErrAborted
	}
	m.inflight[req] = abort
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.inflight, req)
		m.mu.Unlock()
	}()

	// the request body is drained like a real transport would
	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
		_ = req.Body.Close()
	}

	if exp.Delay > 0 {
		timer := time.NewTimer(exp.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-abort:
			return nil, ErrAborted
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	if exp.Err != nil {
		return nil, exp.Err
	}
	return exp.response(req), nil
}

// Abort unblocks a delayed Send for req.
func (m *Mock) Abort(req *http.Request) {
	m.aborts.Add(1)
	m.mu.Lock()
	ch, ok := m.inflight[req]
	if ok {
		delete(m.inflight, req)
	} else {
		// Abort raced ahead of Send
		if m.aborted == nil {
			m.aborted = make(map[*http.Request]bool)
		}
		m.aborted[req] = true
	}
	m.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Sends returns how many requests reached Send.
func (m *Mock) Sends() int { return int(m.sends.Load()) }

// Aborts returns how many times Abort was called.
func (m *Mock) Aborts() int { return int(m.aborts.Load()) }

// LastRequest returns the most recent request passed to Send.
func (m *Mock) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (e *Expectation) response(req *http.Request) *http.Response {
	code := e.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	desc := e.StatusDescription
	if desc == "" {
		desc = http.StatusText(code)
	}

	header := make(http.Header, len(e.Headers)+2)
	for k, vs := range e.Headers {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if e.ContentType != "" {
		header.Set("Content-Type", e.ContentType)
	}
	header.Set("Content-Length", strconv.Itoa(len(e.Content)))

	return &http.Response{
		Status:        strconv.Itoa(code) + " " + desc,
		StatusCode:    code,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Content)),
		ContentLength: int64(len(e.Content)),
		Request:       req,
	}
}
