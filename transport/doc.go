// Package transport defines the raw exchange primitive the query engine sits
// on: send a request, receive a response, abort an in-flight call.
//
// HTTPTransport adapts net/http (HTTP/2, TLS, proxies and a cookie jar).
// Mock answers from caller-declared expectations without touching the
// network and is injected into the engine for deterministic tests.
//
//	t, err := transport.NewHTTP(transport.Config{})
//	call := transport.Begin(t, req)
//	select {
//	case <-call.Done():
//		resp, err := call.End()
//	case <-time.After(time.Second):
//		call.Abort()
//	}
package transport
