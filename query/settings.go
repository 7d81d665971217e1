package query

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kbukum/webquery/transport"
)

// DefaultTimeout is the watchdog timeout used when Settings.Timeout is zero.
const DefaultTimeout = 300000 * time.Millisecond

// Expectation declares the response a mocked exchange produces.
type Expectation = transport.Expectation

// Authorizer applies credentials to an outgoing request.
type Authorizer interface {
	Authorize(req *http.Request) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(req *http.Request) error

// Authorize calls f(req).
func (f AuthorizerFunc) Authorize(req *http.Request) error { return f(req) }

// Entity is an already serialized request body.
type Entity struct {
	Content         []byte
	ContentType     string
	ContentEncoding string
}

// FieldPart is a plain multipart form field.
type FieldPart struct {
	Name  string
	Value string
}

// FilePart is a multipart file upload. Data takes precedence over Reader.
// A Reader is consumed by the first exchange that sends it.
type FilePart struct {
	// Field is the form field name.
	Field string
	// FileName is the file name sent to the server.
	FileName string
	// ContentType is detected from the content when empty.
	ContentType string
	// Data is the file content.
	Data []byte
	// Reader streams the content when Data is nil.
	Reader io.Reader
	// Size is the exact length of Reader. When zero it is taken from an
	// io.Seeker or by buffering the reader.
	Size int64
}

// Settings are the effective, fully resolved settings of one exchange.
type Settings struct {
	// Method defaults to GET, or POST when an entity or parts are present.
	Method string
	// URL is the absolute target without the Parameters.
	URL string
	// Headers are caller headers. Duplicate names are coalesced.
	Headers http.Header
	// Parameters go to the query string, or to an url-encoded body for
	// POST and PUT without an entity or parts.
	Parameters url.Values
	// Cookies are attached to the request.
	Cookies []*http.Cookie
	// Entity is the serialized request body.
	Entity *Entity
	// Fields and Files make the exchange a multipart/form-data upload.
	Fields []FieldPart
	Files  []FilePart
	// Timeout arms the watchdog. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Proxy routes the exchange through a proxy.
	Proxy *url.URL
	// UserAgent is sent unless a User-Agent header is given.
	UserAgent string
	// DisableCompression skips Accept-Encoding negotiation.
	DisableCompression bool
	// Authorizer overrides the engine authorizer.
	Authorizer Authorizer
	// Expect routes the exchange through the mock transport.
	Expect *Expectation
}

// IsMultipart reports whether the settings describe a multipart upload.
func (s *Settings) IsMultipart() bool {
	return len(s.Fields) > 0 || len(s.Files) > 0
}

// EffectiveMethod returns the method after defaults.
func (s *Settings) EffectiveMethod() string {
	if s.Method != "" {
		return strings.ToUpper(s.Method)
	}
	if s.Entity != nil || s.IsMultipart() {
		return http.MethodPost
	}
	return http.MethodGet
}

// EffectiveTimeout returns the watchdog timeout after defaults.
func (s *Settings) EffectiveTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

// Exchange is one concrete attempt.
type Exchange struct {
	// ID identifies the exchange in logs and spans.
	ID string
	// Request is the built transport request.
	Request *http.Request
	// Payload is the posted body for non-multipart requests.
	Payload []byte
	// Settings are the settings the exchange was built from.
	Settings *Settings
	// Outcome is set once the exchange completes.
	Outcome *Outcome

	mocked  bool
	timeout time.Duration
}

// Mocked reports whether the exchange is answered by the mock transport.
func (ex *Exchange) Mocked() bool { return ex.mocked }

// Timeout returns the watchdog timeout for the exchange.
func (ex *Exchange) Timeout() time.Duration { return ex.timeout }

// Outcome is the raw result of an exchange.
type Outcome struct {
	ExchangeID        string
	StatusCode        int
	StatusDescription string
	Headers           http.Header
	Content           []byte
	ContentType       string
	ContentLength     int64
	// Err is set when the transport failed or the exchange timed out.
	Err         error
	RequestedAt time.Time
	RespondedAt time.Time
	FromCache   bool
	Mocked      bool
	TimedOut    bool
	Streaming   bool

	RequestURL    string
	RequestMethod string
}

// Duration returns the time between request and response.
func (o *Outcome) Duration() time.Duration {
	if o.RespondedAt.IsZero() {
		return 0
	}
	return o.RespondedAt.Sub(o.RequestedAt)
}

// IsSuccess reports a completed exchange with a 2xx status.
func (o *Outcome) IsSuccess() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 300
}
