package query

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/kbukum/webquery/cache"
	"github.com/kbukum/webquery/logger"
)

// ExecuteWithCache answers ex from p when key is present. On a miss it
// executes ex and stores the content of a successful outcome under key
// with the expiration opts describe. Cache failures are logged and
// treated as misses.
func (e *Engine) ExecuteWithCache(ctx context.Context, p cache.Provider, key string, opts cache.Options, ex *Exchange) *Outcome {
	if o := e.cached(ctx, p, key, ex); o != nil {
		e.finishCached(ctx, ex, o)
		return o
	}
	o := e.Execute(ctx, ex)
	e.store(ctx, p, key, opts, o)
	return o
}

// ExecuteWithCacheAsync is the asynchronous form of ExecuteWithCache.
func (e *Engine) ExecuteWithCacheAsync(ctx context.Context, p cache.Provider, key string, opts cache.Options, ex *Exchange, continuation func(*Outcome)) *Handle {
	h := newHandle()
	go func() {
		if o := e.cached(ctx, p, key, ex); o != nil {
			h.resolve(func() *Outcome { return o })
			e.finishCached(ctx, ex, o)
			if continuation != nil {
				continuation(o)
			}
			return
		}
		e.ExecuteAsync(ctx, ex, func(o *Outcome) {
			e.store(ctx, p, key, opts, o)
			h.resolve(func() *Outcome { return o })
			if continuation != nil {
				continuation(o)
			}
		})
	}()
	return h
}

func (e *Engine) cached(ctx context.Context, p cache.Provider, key string, ex *Exchange) *Outcome {
	if p == nil || ex == nil || ex.Request == nil {
		return nil
	}
	content, ok, err := p.Get(ctx, key)
	if err != nil {
		e.log.Warn("cache lookup failed", logger.Fields(
			logger.FieldCacheKey, key,
			logger.FieldError, err.Error(),
		))
		return nil
	}
	if !ok {
		return nil
	}
	if content == nil {
		content = []byte{}
	}

	now := time.Now()
	headers := http.Header{}
	headers.Set("Content-Length", strconv.Itoa(len(content)))
	e.log.Debug("served from cache", logger.Fields(
		logger.FieldExchangeID, ex.ID,
		logger.FieldCacheKey, key,
		logger.FieldFromCache, true,
	))
	return &Outcome{
		ExchangeID:        ex.ID,
		StatusCode:        http.StatusOK,
		StatusDescription: http.StatusText(http.StatusOK),
		Headers:           headers,
		Content:           content,
		ContentLength:     int64(len(content)),
		RequestedAt:       now,
		RespondedAt:       now,
		FromCache:         true,
		Mocked:            ex.mocked,
		RequestURL:        ex.Request.URL.String(),
		RequestMethod:     ex.Request.Method,
	}
}

func (e *Engine) finishCached(ctx context.Context, ex *Exchange, o *Outcome) {
	ex.Outcome = o
	e.metrics.RecordCacheHit(ctx)
	if e.hooks.ResponseAvailable != nil {
		e.hooks.ResponseAvailable(ex, o)
	}
}

func (e *Engine) store(ctx context.Context, p cache.Provider, key string, opts cache.Options, o *Outcome) {
	if p == nil || !o.IsSuccess() {
		return
	}
	if err := opts.Store(ctx, p, key, o.Content); err != nil {
		e.log.Warn("cache insert failed", logger.Fields(
			logger.FieldCacheKey, key,
			logger.FieldError, err.Error(),
		))
	}
}
