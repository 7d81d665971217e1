package query

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/logger"
	"github.com/kbukum/webquery/observability"
	"github.com/kbukum/webquery/transport"
)

// Execute runs ex and blocks until it resolves.
func (e *Engine) Execute(ctx context.Context, ex *Exchange) *Outcome {
	return e.ExecuteAsync(ctx, ex, nil).Wait()
}

// ExecuteAsync runs ex in the background and returns immediately. The
// continuation, if any, runs once on a background goroutine after the
// handle resolves.
//
// The watchdog fires after the exchange timeout, aborts the transport call
// and resolves the handle with a timed out outcome (status 0). Whichever
// of the watchdog and the transport finishes first wins; the other result
// is discarded.
func (e *Engine) ExecuteAsync(ctx context.Context, ex *Exchange, continuation func(*Outcome)) *Handle {
	h := newHandle()
	if ex == nil || ex.Request == nil {
		err := wqerrors.Configuration("query: exchange was not built")
		go e.finish(ctx, h, ex, nil, func() *Outcome { return &Outcome{Err: err, Headers: http.Header{}} }, continuation)
		return h
	}

	spanCtx, span := observability.StartExchangeSpanWith(ctx, e.tracer, ex.Request.Method, ex.Request.URL.String())
	observability.InjectHeaders(spanCtx, propagation.HeaderCarrier(ex.Request.Header))

	if e.hooks.BeforeRequest != nil {
		e.hooks.BeforeRequest(ex)
	}

	requestedAt := time.Now()
	tr := e.transportFor(ex)
	call := transport.Begin(tr, ex.Request)

	e.log.Debug("exchange sent", logger.Fields(
		logger.FieldExchangeID, ex.ID,
		logger.FieldMethod, ex.Request.Method,
		logger.FieldURL, ex.Request.URL.String(),
		logger.FieldMocked, ex.mocked,
	))

	watchdog := time.AfterFunc(ex.timeout, func() {
		e.finish(ctx, h, ex, span, func() *Outcome {
			call.Abort()
			e.metrics.RecordTimeout(ctx, ex.Request.Method)
			e.log.Warn("exchange timed out", logger.Fields(
				logger.FieldExchangeID, ex.ID,
				logger.FieldURL, ex.Request.URL.String(),
				logger.FieldDuration, ex.timeout.Milliseconds(),
			))
			return e.timedOut(ex, requestedAt)
		}, continuation)
	})

	go func() {
		resp, err := call.End()
		outcome := e.collect(ctx, ex, resp, err, requestedAt)
		watchdog.Stop()
		e.finish(ctx, h, ex, span, func() *Outcome { return outcome }, continuation)
	}()

	return h
}

// finish resolves h once, then runs hooks and the continuation.
func (e *Engine) finish(ctx context.Context, h *Handle, ex *Exchange, span trace.Span, claim func() *Outcome, continuation func(*Outcome)) {
	if !h.resolve(claim) {
		return
	}
	o := h.outcome
	if ex != nil {
		ex.Outcome = o
	}
	if span != nil {
		observability.EndExchangeSpan(span, o.StatusCode, o.Err,
			attribute.Bool(observability.AttrMocked, o.Mocked),
			attribute.Bool(observability.AttrTimedOut, o.TimedOut),
		)
	}
	if !o.FromCache {
		e.metrics.RecordExchange(ctx, o.RequestMethod, o.StatusCode, o.Duration())
	}
	if e.hooks.ResponseAvailable != nil && ex != nil {
		e.hooks.ResponseAvailable(ex, o)
	}
	if continuation != nil {
		continuation(o)
	}
}

func (e *Engine) timedOut(ex *Exchange, requestedAt time.Time) *Outcome {
	return &Outcome{
		ExchangeID:    ex.ID,
		StatusCode:    0,
		Headers:       http.Header{},
		Content:       []byte{},
		Err:           wqerrors.Timeout("exchange", ex.timeout),
		RequestedAt:   requestedAt,
		RespondedAt:   time.Now(),
		Mocked:        ex.mocked,
		TimedOut:      true,
		RequestURL:    ex.Request.URL.String(),
		RequestMethod: ex.Request.Method,
	}
}

// collect turns a transport result into an outcome. A partial response
// delivered alongside an error is still captured.
func (e *Engine) collect(ctx context.Context, ex *Exchange, resp *http.Response, err error, requestedAt time.Time) *Outcome {
	o := &Outcome{
		ExchangeID:    ex.ID,
		Headers:       http.Header{},
		Content:       []byte{},
		RequestedAt:   requestedAt,
		Mocked:        ex.mocked,
		RequestURL:    ex.Request.URL.String(),
		RequestMethod: ex.Request.Method,
	}
	if err != nil {
		o.Err = classify(ctx, err)
	}
	if resp != nil {
		e.captureHead(o, resp)
		if resp.Body != nil {
			content, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil && o.Err == nil {
				o.Err = classify(ctx, readErr)
			}
			o.Content = e.decode(o, content)
			if o.ContentLength < 0 || o.Headers.Get("Content-Length") == "" {
				o.ContentLength = int64(len(o.Content))
			}
		}
	}
	o.RespondedAt = time.Now()

	fields := logger.Fields(
		logger.FieldExchangeID, ex.ID,
		logger.FieldStatus, o.StatusCode,
		logger.FieldDuration, o.Duration().Milliseconds(),
	)
	if o.Err != nil {
		fields[logger.FieldError] = o.Err.Error()
	}
	e.log.Debug("exchange completed", fields)
	return o
}

func (e *Engine) captureHead(o *Outcome, resp *http.Response) {
	o.StatusCode = resp.StatusCode
	o.StatusDescription = statusDescription(resp)
	if resp.Header != nil {
		o.Headers = resp.Header.Clone()
	}
	o.ContentType = o.Headers.Get("Content-Type")
	o.ContentLength = resp.ContentLength
}

// decode undoes gzip or deflate content coding. On failure the raw
// content is kept along with its Content-Encoding header.
func (e *Engine) decode(o *Outcome, content []byte) []byte {
	coding := strings.ToLower(strings.TrimSpace(o.Headers.Get("Content-Encoding")))
	if coding == "" || coding == "identity" || len(content) == 0 {
		return content
	}

	var (
		decoded []byte
		err     error
	)
	switch coding {
	case "gzip", "x-gzip":
		var zr *gzip.Reader
		if zr, err = gzip.NewReader(bytes.NewReader(content)); err == nil {
			decoded, err = io.ReadAll(zr)
			_ = zr.Close()
		}
	case "deflate":
		// servers disagree on zlib wrapped versus raw deflate
		var zr io.ReadCloser
		if zr, err = zlib.NewReader(bytes.NewReader(content)); err == nil {
			decoded, err = io.ReadAll(zr)
			_ = zr.Close()
		} else {
			fr := flate.NewReader(bytes.NewReader(content))
			decoded, err = io.ReadAll(fr)
			_ = fr.Close()
		}
	default:
		return content
	}
	if err != nil {
		e.log.Warn("failed to decode response content", logger.Fields(
			logger.FieldExchangeID, o.ExchangeID,
			"content_encoding", coding,
			logger.FieldError, err.Error(),
		))
		return content
	}
	o.Headers.Del("Content-Encoding")
	o.Headers.Del("Content-Length")
	o.ContentLength = int64(len(decoded))
	return decoded
}

func statusDescription(resp *http.Response) string {
	prefix := strconv.Itoa(resp.StatusCode) + " "
	if desc := strings.TrimPrefix(resp.Status, prefix); desc != "" && desc != resp.Status {
		return desc
	}
	return http.StatusText(resp.StatusCode)
}

// classify maps a transport error onto the error taxonomy.
func classify(ctx context.Context, err error) error {
	if wqerrors.IsAppError(err) {
		return err
	}
	if ctx.Err() != nil {
		return wqerrors.Canceled(err)
	}
	return wqerrors.Transport(err)
}
