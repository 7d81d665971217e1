package client

import (
	"context"
	"time"

	"github.com/kbukum/webquery/cache"
	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/logger"
	"github.com/kbukum/webquery/query"
	"github.com/kbukum/webquery/resilience"
	"github.com/kbukum/webquery/retry"
)

// Callback receives responses of asynchronous requests. It runs on a
// background goroutine.
type Callback func(resp *Response)

// Request runs req synchronously: it resolves settings, attempts the
// exchange until the retry policy stops, then materializes the response.
//
// The returned error is set for configuration, serialization and
// deserialization failures. Transport failures and timeouts are reported
// on Response.Err. The response is never nil.
func (c *Client) Request(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		err := wqerrors.Configuration("client: nil request")
		return newResponse(&Request{}, failed(err)), err
	}
	if req.Stream != nil || req.Task != nil {
		err := wqerrors.Configuration("client: streaming and scheduled requests need RequestAsync")
		return newResponse(req, failed(err)), err
	}
	req.resetAttempts()
	policy := c.policyFor(req)

	var o *query.Outcome
	for {
		var fatal error
		o, fatal = c.attempt(ctx, req)
		if fatal != nil {
			return newResponse(req, o), fatal
		}
		if !c.retryNext(ctx, req, policy, o) {
			break
		}
	}
	return c.materialize(req, o)
}

// retryNext decides whether another attempt follows o and, if so, waits
// out the backoff.
func (c *Client) retryNext(ctx context.Context, req *Request, policy *retry.Policy, o *query.Outcome) bool {
	attempts := req.Attempts()
	if policy.Remaining(attempts) <= 0 || !retry.ShouldRetry(policy, o.Err, o) {
		return false
	}
	c.beforeRetry(req, attempts+1, o)
	if err := resilience.Sleep(ctx, policy.Delay(attempts)); err != nil {
		return false
	}
	return true
}

func (c *Client) beforeRetry(req *Request, next int, o *query.Outcome) {
	fields := logger.Fields(
		logger.FieldURL, o.RequestURL,
		logger.FieldAttempt, next,
		logger.FieldStatus, o.StatusCode,
	)
	if o.Err != nil {
		fields[logger.FieldError] = o.Err.Error()
	}
	c.log.Warn("retrying request", fields)
	if c.hooks.OnBeforeRetry != nil {
		c.hooks.OnBeforeRetry(req, next, o)
	}
}

// attempt runs one exchange. A non-nil error means the attempt could not
// be built and must not be retried.
func (c *Client) attempt(ctx context.Context, req *Request) (*query.Outcome, error) {
	settings, err := c.resolve(req)
	if err != nil {
		return failed(err), err
	}
	n := req.recordAttempt()

	if o := c.guard(ctx); o != nil {
		return o, nil
	}
	ex, err := c.engine.BuildRequest(ctx, settings)
	if err != nil {
		return failed(err), err
	}
	c.logAttempt(ex, n)
	if c.hooks.OnBeforeRequest != nil {
		c.hooks.OnBeforeRequest(req, ex)
	}

	var o *query.Outcome
	if opts := c.cacheFor(req); opts != nil {
		o = c.engine.ExecuteWithCache(ctx, c.cache, cache.Key(opts.KeyPrefix, ex.Request.URL.String()), *opts, ex)
	} else {
		o = c.engine.Execute(ctx, ex)
	}
	c.record(o)
	return o, nil
}

// guard applies the rate limiter and circuit breaker. It returns the
// outcome of a rejected attempt, or nil to proceed.
func (c *Client) guard(ctx context.Context) *query.Outcome {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return failed(wqerrors.Canceled(err))
		}
	}
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return failed(wqerrors.Transport(err))
		}
	}
	return nil
}

func (c *Client) record(o *query.Outcome) {
	if c.breaker == nil || o.FromCache {
		return
	}
	c.breaker.Record(o.Err == nil && o.StatusCode < 500)
}

func (c *Client) logAttempt(ex *query.Exchange, n int) {
	c.log.Debug("attempt started", logger.Fields(
		logger.FieldExchangeID, ex.ID,
		logger.FieldMethod, ex.Request.Method,
		logger.FieldURL, ex.Request.URL.String(),
		logger.FieldAttempt, n,
	))
}

// materialize folds the final outcome into a response and decodes its
// entity. Successful content goes to Result; failed content goes to
// ErrorResult.
func (c *Client) materialize(req *Request, o *query.Outcome) (*Response, error) {
	resp := newResponse(req, o)
	if len(resp.Content) == 0 || resp.IsStreaming {
		return resp, nil
	}
	deser := req.Deserializer
	if deser == nil {
		deser = c.deserializer
	}

	failedOutcome := o.Err != nil || o.StatusCode >= 400
	switch {
	case !failedOutcome && req.Result != nil:
		if err := deser.Deserialize(resp.Content, resp.ContentType, req.Result); err != nil {
			derr := wqerrors.Deserialization(resp.ContentType, err)
			resp.Err = derr
			return resp, derr
		}
		resp.Entity = req.Result
	case failedOutcome && req.ErrorResult != nil:
		if err := deser.Deserialize(resp.Content, resp.ContentType, req.ErrorResult); err != nil {
			c.log.Warn("failed to deserialize error entity", logger.Fields(
				logger.FieldURL, resp.RequestURL,
				logger.FieldError, err.Error(),
			))
			break
		}
		resp.ErrorEntity = req.ErrorResult
	}
	return resp, nil
}

// RequestAsync starts req in the background and returns immediately.
// Configuration errors are returned before anything starts.
//
// A plain request calls cb exactly once with the terminal response. A
// request with Task set calls cb once per run; one with Stream set calls
// cb once per message and once more with the end-of-stream sentinel.
func (c *Client) RequestAsync(ctx context.Context, req *Request, cb Callback) (*Handle, error) {
	if req == nil {
		return nil, wqerrors.Configuration("client: nil request")
	}
	if _, err := c.resolve(req); err != nil {
		return nil, err
	}
	if cb == nil {
		cb = func(*Response) {}
	}
	switch {
	case req.Stream != nil && req.Task != nil:
		return nil, wqerrors.Configuration("client: a request cannot both stream and repeat")
	case req.Stream != nil:
		return c.startStream(ctx, req, cb)
	case req.Task != nil:
		return c.schedule(ctx, req, cb)
	}

	h := newHandle()
	req.resetAttempts()
	go c.attemptAsync(ctx, req, c.policyFor(req), func(resp *Response) {
		cb(resp)
		h.resolve(resp)
	})
	return h, nil
}

// attemptAsync starts one exchange; its continuation either schedules the
// next attempt or delivers the terminal response.
func (c *Client) attemptAsync(ctx context.Context, req *Request, policy *retry.Policy, done Callback) {
	settings, err := c.resolve(req)
	if err != nil {
		done(newResponse(req, failed(err)))
		return
	}
	n := req.recordAttempt()

	next := func(o *query.Outcome) {
		c.record(o)
		attempts := req.Attempts()
		if !wqerrors.IsCode(o.Err, wqerrors.ErrCodeConfiguration) &&
			policy.Remaining(attempts) > 0 && retry.ShouldRetry(policy, o.Err, o) {
			c.beforeRetry(req, attempts+1, o)
			time.AfterFunc(policy.Delay(attempts), func() {
				if ctx.Err() != nil {
					resp, _ := c.materialize(req, o)
					done(resp)
					return
				}
				c.attemptAsync(ctx, req, policy, done)
			})
			return
		}
		resp, _ := c.materialize(req, o)
		done(resp)
	}

	if o := c.guard(ctx); o != nil {
		next(o)
		return
	}
	ex, err := c.engine.BuildRequest(ctx, settings)
	if err != nil {
		done(newResponse(req, failed(err)))
		return
	}
	c.logAttempt(ex, n)
	if c.hooks.OnBeforeRequest != nil {
		c.hooks.OnBeforeRequest(req, ex)
	}

	if opts := c.cacheFor(req); opts != nil {
		c.engine.ExecuteWithCacheAsync(ctx, c.cache, cache.Key(opts.KeyPrefix, ex.Request.URL.String()), *opts, ex, next)
		return
	}
	c.engine.ExecuteAsync(ctx, ex, next)
}
