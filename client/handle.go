package client

import (
	"sync"
	"time"
)

// Handle tracks an asynchronous request until its terminal response.
type Handle struct {
	done chan struct{}
	once sync.Once
	resp *Response
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Done is closed once the terminal response is available.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the terminal response is available.
func (h *Handle) Wait() *Response {
	<-h.done
	return h.resp
}

// WaitTimeout waits up to d. It reports false if the handle is still
// pending.
func (h *Handle) WaitTimeout(d time.Duration) (*Response, bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-h.done:
		return h.resp, true
	case <-timer.C:
		return nil, false
	}
}

// Response returns the terminal response, or nil while pending.
func (h *Handle) Response() *Response {
	select {
	case <-h.done:
		return h.resp
	default:
		return nil
	}
}

func (h *Handle) resolve(resp *Response) bool {
	resolved := false
	h.once.Do(func() {
		h.resp = resp
		resolved = true
		close(h.done)
	})
	return resolved
}
