package client

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/kbukum/webquery/cache"
	"github.com/kbukum/webquery/query"
	"github.com/kbukum/webquery/retry"
	"github.com/kbukum/webquery/serializer"
	"github.com/kbukum/webquery/stream"
)

// CacheOptions enables cache-through for a request.
type CacheOptions = cache.Options

// StreamOptions turns a request into a streaming session.
type StreamOptions = stream.Options

// TaskOptions repeats a request on a background timer.
type TaskOptions struct {
	// Interval is the minimum time between the starts of two runs.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	// DueTime delays the first run.
	DueTime time.Duration `yaml:"due_time" mapstructure:"due_time"`
	// RepeatTimes limits the number of runs. Zero repeats until canceled.
	RepeatTimes int `yaml:"repeat_times" mapstructure:"repeat_times"`
	// ContinueOnError keeps repeating after a run ends with an error.
	ContinueOnError bool `yaml:"continue_on_error" mapstructure:"continue_on_error"`
}

// Request is a logical request. It is owned by the caller and must not be
// changed once passed to the client; only the attempt bookkeeping is
// updated by the client.
type Request struct {
	// Method defaults to the client method, then to GET without a body
	// and POST with one.
	Method string
	// Authority overrides the client authority.
	Authority string
	// VersionPath overrides the client version path.
	VersionPath string
	// Path is appended to authority and version path. An absolute URL is
	// used as is.
	Path string

	Headers    http.Header
	Parameters url.Values
	Cookies    []*http.Cookie

	// Entity is the request body: []byte and string are sent verbatim,
	// *query.Entity is used as built, anything else is serialized.
	Entity any
	// Result receives the deserialized content of a successful response.
	// It must be a pointer.
	Result any
	// ErrorResult receives the deserialized content of a failed response.
	ErrorResult any

	// Files and Fields make the request multipart.
	Files  []query.FilePart
	Fields []query.FieldPart

	Cache  *CacheOptions
	Retry  *retry.Policy
	Stream *StreamOptions
	Task   *TaskOptions

	// Expect routes the request to the mock transport.
	Expect *query.Expectation

	// Credentials override the client authorizer.
	Credentials query.Authorizer
	// CredentialsName selects a named authorizer from the client's
	// credentials when Credentials is nil.
	CredentialsName string

	Serializer   serializer.Serializer
	Deserializer serializer.Deserializer

	Timeout   time.Duration
	Proxy     *url.URL
	UserAgent string

	// Tag is returned untouched on every response.
	Tag any

	mu          sync.Mutex
	attempts    int
	lastAttempt time.Time
}

// Attempts returns how many exchanges the current run has made.
func (r *Request) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// LastAttempt returns when the most recent exchange started.
func (r *Request) LastAttempt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAttempt
}

func (r *Request) recordAttempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	r.lastAttempt = time.Now()
	return r.attempts
}

func (r *Request) resetAttempts() {
	r.mu.Lock()
	r.attempts = 0
	r.mu.Unlock()
}

// RequestOption configures a request built by the method helpers.
type RequestOption func(*Request)

// WithHeader adds a header value.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = http.Header{}
		}
		r.Headers.Add(key, value)
	}
}

// WithParam adds a query or form parameter.
func WithParam(key, value string) RequestOption {
	return func(r *Request) {
		if r.Parameters == nil {
			r.Parameters = url.Values{}
		}
		r.Parameters.Add(key, value)
	}
}

// WithCache enables cache-through with opts.
func WithCache(opts CacheOptions) RequestOption {
	return func(r *Request) { r.Cache = &opts }
}

// WithRetry sets the retry policy.
func WithRetry(p *retry.Policy) RequestOption {
	return func(r *Request) { r.Retry = p }
}

// WithExpect routes the request to the mock transport.
func WithExpect(exp *query.Expectation) RequestOption {
	return func(r *Request) { r.Expect = exp }
}

// WithResult sets the response entity target.
func WithResult(v any) RequestOption {
	return func(r *Request) { r.Result = v }
}

// WithErrorResult sets the error entity target.
func WithErrorResult(v any) RequestOption {
	return func(r *Request) { r.ErrorResult = v }
}

// WithTimeout sets the exchange timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *Request) { r.Timeout = d }
}

// WithTag attaches an opaque value returned on the response.
func WithTag(tag any) RequestOption {
	return func(r *Request) { r.Tag = tag }
}

// WithCredentialsName selects named client credentials.
func WithCredentialsName(name string) RequestOption {
	return func(r *Request) { r.CredentialsName = name }
}

// WithCredentials overrides the client authorizer.
func WithCredentials(a query.Authorizer) RequestOption {
	return func(r *Request) { r.Credentials = a }
}
