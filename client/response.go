package client

import (
	"net/http"
	"time"

	"github.com/kbukum/webquery/query"
	"github.com/kbukum/webquery/stream"
)

// Response is the caller-facing result of a logical request. Content is
// never nil.
type Response struct {
	StatusCode        int
	StatusDescription string
	Headers           http.Header
	Content           []byte
	ContentType       string
	ContentLength     int64

	// Entity is the deserialized content of a successful response.
	Entity any
	// ErrorEntity is the deserialized content of a failed response.
	ErrorEntity any
	// Err is the final transport, timeout or deserialization error.
	Err error

	RequestedAt time.Time
	RespondedAt time.Time
	RequestURL  string

	Attempts    int
	IsStreaming bool
	IsMock      bool
	FromCache   bool
	TimedOut    bool

	Tag any
}

// Duration is the time between request and response.
func (r *Response) Duration() time.Duration {
	if r.RequestedAt.IsZero() || r.RespondedAt.IsZero() {
		return 0
	}
	return r.RespondedAt.Sub(r.RequestedAt)
}

// IsSuccess reports a 2xx status without an error.
func (r *Response) IsSuccess() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError reports an error or a 4xx/5xx status.
func (r *Response) IsError() bool {
	return r.Err != nil || r.StatusCode >= 400 || r.StatusCode == 0
}

// IsEndOfStream reports the terminal message of a streaming session.
func (r *Response) IsEndOfStream() bool {
	return r.IsStreaming && string(r.Content) == stream.EndSentinel
}

// TypedResponse carries the entity decoded as T.
type TypedResponse[T any] struct {
	*Response
	// Data is the decoded entity. It is the zero value when nothing was
	// decoded.
	Data T
}

func newResponse(req *Request, o *query.Outcome) *Response {
	r := &Response{
		Headers:  http.Header{},
		Content:  []byte{},
		Attempts: req.Attempts(),
		Tag:      req.Tag,
	}
	if o == nil {
		return r
	}
	r.StatusCode = o.StatusCode
	r.StatusDescription = o.StatusDescription
	if o.Headers != nil {
		r.Headers = o.Headers
	}
	if o.Content != nil {
		r.Content = o.Content
	}
	r.ContentType = o.ContentType
	r.ContentLength = o.ContentLength
	r.Err = o.Err
	r.RequestedAt = o.RequestedAt
	r.RespondedAt = o.RespondedAt
	r.RequestURL = o.RequestURL
	r.IsStreaming = o.Streaming
	r.IsMock = o.Mocked
	r.FromCache = o.FromCache
	r.TimedOut = o.TimedOut
	return r
}
