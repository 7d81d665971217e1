package query

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel/propagation"

	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/logger"
	"github.com/kbukum/webquery/observability"
	"github.com/kbukum/webquery/stream"
	"github.com/kbukum/webquery/transport"
)

// Stream keeps ex open and publishes each decoded message until the body
// ends, ctx is canceled or opts.Duration elapses. The watchdog only covers
// the wait for response headers. Canceling ctx aborts the transport so a
// blocked read returns.
//
// The returned outcome carries the response head with Streaming set. A
// non-2xx response is not decoded; its content is returned instead.
func (e *Engine) Stream(ctx context.Context, ex *Exchange, opts stream.Options, publish func(msg []byte)) *Outcome {
	if ex == nil || ex.Request == nil {
		return &Outcome{Err: wqerrors.Configuration("query: exchange was not built"), Headers: http.Header{}, Streaming: true}
	}
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	spanCtx, span := observability.StartExchangeSpanWith(ctx, e.tracer, ex.Request.Method, ex.Request.URL.String())
	observability.InjectHeaders(spanCtx, propagation.HeaderCarrier(ex.Request.Header))
	if e.hooks.BeforeRequest != nil {
		e.hooks.BeforeRequest(ex)
	}

	requestedAt := time.Now()
	call := transport.Begin(e.transportFor(ex), ex.Request)

	o := &Outcome{
		ExchangeID:    ex.ID,
		Headers:       http.Header{},
		Content:       []byte{},
		RequestedAt:   requestedAt,
		Mocked:        ex.mocked,
		Streaming:     true,
		RequestURL:    ex.Request.URL.String(),
		RequestMethod: ex.Request.Method,
	}
	defer func() {
		o.RespondedAt = time.Now()
		ex.Outcome = o
		observability.EndExchangeSpan(span, o.StatusCode, o.Err)
		if e.hooks.ResponseAvailable != nil {
			e.hooks.ResponseAvailable(ex, o)
		}
	}()

	headerTimer := time.NewTimer(ex.timeout)
	defer headerTimer.Stop()
	select {
	case <-call.Done():
	case <-headerTimer.C:
		call.Abort()
		o.TimedOut = true
		o.Err = wqerrors.Timeout("stream", ex.timeout)
		e.metrics.RecordTimeout(ctx, ex.Request.Method)
		return o
	case <-ctx.Done():
		call.Abort()
		o.Err = wqerrors.Canceled(ctx.Err())
		return o
	}

	resp, err := call.End()
	if err != nil {
		o.Err = classify(ctx, err)
		return o
	}
	defer resp.Body.Close()
	e.captureHead(o, resp)
	// publishers read the response head from the exchange
	ex.Outcome = o

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		content, _ := io.ReadAll(resp.Body)
		o.Content = e.decode(o, content)
		return o
	}

	// abort on cancel so a blocked read unblocks
	stop := context.AfterFunc(ctx, func() { call.Abort() })
	defer stop()

	body := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			o.Err = wqerrors.Transport(err)
			return o
		}
		defer zr.Close()
		body = zr
	}

	e.log.Debug("stream opened", logger.Fields(logger.FieldExchangeID, ex.ID, logger.FieldURL, o.RequestURL))
	err = stream.Decode(ctx, body, opts, publish)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// ended by the caller or by opts.Duration
	default:
		o.Err = classify(ctx, err)
	}
	e.log.Debug("stream closed", logger.Fields(logger.FieldExchangeID, ex.ID))
	return o
}
