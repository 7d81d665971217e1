// Package cache defines the byte store the query engine reads through.
//
// A Provider stores content under a key with one of three expiration
// modes: none, absolute (expires at a fixed time) or sliding (expires after
// a window of inactivity, refreshed on every hit). Memory is the in-process
// implementation; rediscache and sqlcache persist entries.
//
// Keys come from Key, which is deterministic for a (prefix, URL) pair:
//
//	key := cache.Key("users", "https://api.example.com/v1/users?page=2")
//	opts := cache.Options{Mode: cache.ModeSliding, Duration: time.Minute}
//	err := opts.Store(ctx, provider, key, content)
package cache
