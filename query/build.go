package query

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/transport"
)

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// methods whose requests may not carry multipart bodies
var noMultipart = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// BuildRequest builds the concrete exchange for s. Building is
// deterministic: the same settings always produce the same headers.
// Invalid settings return a CONFIGURATION error.
func (e *Engine) BuildRequest(ctx context.Context, s *Settings) (*Exchange, error) {
	if s == nil {
		return nil, wqerrors.Configuration("query: nil settings")
	}
	method := s.EffectiveMethod()
	if !allowedMethods[method] {
		return nil, wqerrors.Configuration("query: unsupported method %q", method)
	}
	if s.IsMultipart() {
		if noMultipart[method] {
			return nil, wqerrors.Configuration("query: multipart body not allowed for %s", method)
		}
		if s.Entity != nil {
			return nil, wqerrors.Configuration("query: multipart parts and an entity are mutually exclusive")
		}
	}

	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, wqerrors.Configuration("query: invalid url %q: %v", s.URL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, wqerrors.Configuration("query: url %q must be absolute", s.URL)
	}

	formBody := (method == http.MethodPost || method == http.MethodPut) &&
		s.Entity == nil && !s.IsMultipart() && len(s.Parameters) > 0
	if len(s.Parameters) > 0 && !formBody {
		q := u.Query()
		for k, vs := range s.Parameters {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	ex := &Exchange{
		ID:       uuid.NewString(),
		Settings: s,
		mocked:   s.Expect != nil,
		timeout:  s.EffectiveTimeout(),
	}

	if s.Proxy != nil {
		ctx = transport.WithProxy(ctx, s.Proxy)
	}
	if s.Expect != nil {
		ctx = transport.WithExpectation(ctx, s.Expect)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, wqerrors.Configuration("query: build request: %v", err)
	}

	var (
		contentType     string
		contentEncoding string
		hasBody         bool
	)
	switch {
	case s.IsMultipart():
		mp, err := encodeMultipart(newBoundary(), s.Fields, s.Files)
		if err != nil {
			return nil, wqerrors.Configuration("query: %v", err)
		}
		req.Body = readCloser(mp.body)
		req.ContentLength = mp.length
		contentType = mp.contentType
		hasBody = true
	case s.Entity != nil:
		ex.Payload = s.Entity.Content
		contentType = s.Entity.ContentType
		contentEncoding = s.Entity.ContentEncoding
		setBytesBody(req, s.Entity.Content)
		hasBody = true
	case formBody:
		ex.Payload = []byte(s.Parameters.Encode())
		contentType = "application/x-www-form-urlencoded"
		setBytesBody(req, ex.Payload)
		hasBody = true
	}

	if contentType != "" {
		if contentEncoding != "" && !strings.Contains(contentType, "charset=") {
			contentType += "; charset=" + contentEncoding
		}
		req.Header.Set("Content-Type", contentType)
	}

	transferEncoding := applyHeaders(req, s.Headers)

	if s.IsMultipart() {
		// the boundary must match the body
		req.Header.Set("Content-Type", contentType)
	}
	if len(transferEncoding) > 0 && hasBody {
		req.TransferEncoding = transferEncoding
		if transferEncoding[len(transferEncoding)-1] == "chunked" {
			req.ContentLength = -1
			req.Header.Del("Content-Length")
		}
	}

	if req.Header.Get("User-Agent") == "" {
		ua := s.UserAgent
		if ua == "" {
			ua = e.info.UserAgent
		}
		req.Header.Set("User-Agent", ua)
	}
	if !s.DisableCompression && req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, deflate")
	}
	for _, c := range s.Cookies {
		req.AddCookie(c)
	}

	authorizer := s.Authorizer
	if authorizer == nil {
		authorizer = e.authorizer
	}
	if authorizer != nil {
		if err := authorizer.Authorize(req); err != nil {
			return nil, wqerrors.Configuration("query: authorize: %v", err).WithCause(err)
		}
	}

	ex.Request = req
	return ex, nil
}

// setBytesBody sets a replayable body. An empty body still declares an
// explicit zero Content-Length.
func setBytesBody(req *http.Request, b []byte) {
	req.ContentLength = int64(len(b))
	if len(b) == 0 {
		req.Body = http.NoBody
		req.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
		req.Header.Set("Content-Length", "0")
		return
	}
	snapshot := b
	req.Body = io.NopCloser(bytes.NewReader(snapshot))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(snapshot)), nil
	}
	req.Header.Set("Content-Length", strconv.Itoa(len(b)))
}

func readCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}
