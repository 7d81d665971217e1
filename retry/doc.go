// Package retry decides whether a completed attempt is tried again.
//
// A Policy holds the retry budget and an ordered list of conditions. Each
// condition inspects either the error an attempt raised or the outcome it
// produced. By default any matching condition is enough to retry:
//
//	policy := &retry.Policy{
//		MaxRetries: 3,
//		Conditions: []retry.Condition{retry.OnNetworkError(), retry.OnServerError()},
//	}
//	if retry.ShouldRetry(policy, outcome.Err, outcome) && policy.Remaining(attempts) > 0 {
//		// try again
//	}
//
// The evaluator never counts attempts; the caller stops once Remaining
// reaches zero.
package retry
