package client

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kbukum/webquery/logger"
	"github.com/kbukum/webquery/query"
	"github.com/kbukum/webquery/stream"
)

type activeStream struct {
	req      *Request
	cancel   context.CancelFunc
	canceled atomic.Bool
}

// startStream opens a streaming session for req. A client runs one
// session at a time; starting another cancels the current one.
func (c *Client) startStream(ctx context.Context, req *Request, cb Callback) (*Handle, error) {
	settings, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	req.resetAttempts()
	req.recordAttempt()
	ex, err := c.engine.BuildRequest(ctx, settings)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &activeStream{req: req, cancel: cancel}
	c.streamMu.Lock()
	previous := c.active
	c.active = s
	c.streamMu.Unlock()
	if previous != nil {
		previous.stop()
	}

	h := newHandle()
	go func() {
		defer c.clearStream(s)
		if c.hooks.OnBeforeRequest != nil {
			c.hooks.OnBeforeRequest(req, ex)
		}
		c.logAttempt(ex, 1)

		published := 0
		o := c.engine.Stream(streamCtx, ex, *req.Stream, func(msg []byte) {
			if s.canceled.Load() {
				return
			}
			published++
			cb(c.message(req, ex.Outcome, msg))
		})

		if o.StatusCode != 0 && (o.StatusCode < 200 || o.StatusCode >= 300) {
			resp, _ := c.materialize(req, o)
			cb(resp)
		}
		end := c.message(req, o, []byte(stream.EndSentinel))
		end.Err = o.Err
		end.TimedOut = o.TimedOut
		c.log.Debug("stream ended", logger.Fields(
			logger.FieldExchangeID, ex.ID,
			"messages", published,
			"canceled", s.canceled.Load(),
		))
		cb(end)
		h.resolve(end)
	}()
	return h, nil
}

func (c *Client) message(req *Request, head *query.Outcome, content []byte) *Response {
	resp := &Response{
		Headers:     http.Header{},
		Content:     append([]byte(nil), content...),
		RespondedAt: time.Now(),
		Attempts:    1,
		IsStreaming: true,
		Tag:         req.Tag,
	}
	resp.ContentLength = int64(len(resp.Content))
	if head != nil {
		resp.StatusCode = head.StatusCode
		resp.StatusDescription = head.StatusDescription
		if head.Headers != nil {
			resp.Headers = head.Headers.Clone()
		}
		resp.ContentType = head.ContentType
		resp.RequestedAt = head.RequestedAt
		resp.RequestURL = head.RequestURL
		resp.IsMock = head.Mocked
	}
	return resp
}

func (s *activeStream) stop() {
	s.canceled.Store(true)
	s.cancel()
}

func (c *Client) clearStream(s *activeStream) {
	c.streamMu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.streamMu.Unlock()
	s.cancel()
}

// CancelStreaming ends the active streaming session. Messages decoded
// after the call are dropped and the transport is aborted so a blocked
// read returns. It reports whether a session was active.
func (c *Client) CancelStreaming() bool {
	c.streamMu.Lock()
	s := c.active
	c.active = nil
	c.streamMu.Unlock()
	if s == nil {
		return false
	}
	s.stop()
	return true
}

// Streaming reports whether a streaming session is active.
func (c *Client) Streaming() bool {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	return c.active != nil
}
