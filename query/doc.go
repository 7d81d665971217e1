// Package query builds and executes single HTTP exchanges.
//
// An Engine turns resolved Settings into an Exchange (BuildRequest), then
// runs it against a transport.Transport either synchronously (Execute) or
// in the background (ExecuteAsync). Every exchange is guarded by one
// watchdog timer: when it fires the transport call is aborted and the
// exchange resolves as timed out, exactly once.
//
// The engine also handles:
//   - restricted headers, routed to native request fields
//   - multipart/form-data bodies with an exact precomputed length
//   - read-through caching (ExecuteWithCache)
//   - mock substitution when Settings.Expect is set
//   - gzip and deflate response decoding
//   - long-lived streaming responses (Stream)
//
// Basic usage:
//
//	engine := query.New()
//	ex, err := engine.BuildRequest(ctx, &query.Settings{Method: "GET", URL: "https://api.example.com/users"})
//	if err != nil {
//		return err
//	}
//	outcome := engine.Execute(ctx, ex)
package query
