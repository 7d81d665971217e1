// Package resilience provides the guards the orchestrator can place around
// exchanges:
//   - Backoff: delay between retry attempts
//   - Breaker: fails fast once a target keeps failing
//   - RateLimiter: token bucket pacing of outgoing exchanges
//
// None of them decides whether an attempt is retried; that belongs to the
// retry package.
package resilience
