package transport

import (
	"net/http"
	"sync"
)

// Transport sends requests and aborts in-flight ones.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Send performs the exchange. The caller closes the response body.
	Send(req *http.Request) (*http.Response, error)
	// Abort cancels an in-flight Send for req. Aborting a finished or
	// unknown request is a no-op.
	Abort(req *http.Request)
}

// Call is one in-flight exchange started by Begin.
type Call struct {
	transport Transport
	req       *http.Request

	done chan struct{}
	resp *http.Response
	err  error

	abortOnce sync.Once
}

// Begin starts req on t in its own goroutine.
func Begin(t Transport, req *http.Request) *Call {
	c := &Call{
		transport: t,
		req:       req,
		done:      make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		c.resp, c.err = t.Send(req)
	}()
	return c
}

// Request returns the request this call sends.
func (c *Call) Request() *http.Request { return c.req }

// Done is closed once the response headers have arrived or Send failed.
func (c *Call) Done() <-chan struct{} { return c.done }

// End waits for the call and returns its result.
func (c *Call) End() (*http.Response, error) {
	<-c.done
	return c.resp, c.err
}

// Abort cancels the call. Only the first invocation reaches the transport;
// it reports whether this invocation was that one.
func (c *Call) Abort() bool {
	first := false
	c.abortOnce.Do(func() {
		first = true
		c.transport.Abort(c.req)
	})
	return first
}
