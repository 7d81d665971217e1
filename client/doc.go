// Package client orchestrates logical requests on top of the query engine.
//
// A Client merges per-request fields over client-wide defaults, runs the
// attempt loop with the retry policy, optionally reads through a cache,
// and folds the final outcome into a Response:
//
//	c, err := client.New(client.Config{
//		Authority:   "https://api.example.com",
//		VersionPath: "v2",
//		Retry:       &client.RetryConfig{MaxRetries: 2, OnNetworkError: true, OnServerError: true},
//	})
//
//	user, err := client.Get[User](ctx, c, "users/42")
//
// Asynchronous requests deliver their terminal response to a callback.
// Requests with Task options repeat on a timer; requests with Stream
// options keep the exchange open and deliver one response per decoded
// message followed by a response carrying stream.EndSentinel.
//
// Transport failures and timeouts never surface as returned errors. They
// are reported on Response.Err with status 0 and empty content.
package client
