package retry

import (
	"time"

	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/query"
	"github.com/kbukum/webquery/resilience"
)

// Combine selects how condition results are merged.
type Combine string

const (
	// CombineAny retries when at least one applicable condition matches.
	CombineAny Combine = "any"
	// CombineAll retries only when every applicable condition matches.
	CombineAll Combine = "all"
)

// Condition is a single retry predicate. Exactly one of Exception or
// Outcome is normally set; a condition with both set is evaluated as two
// predicates.
type Condition struct {
	// Name labels the condition in logs.
	Name string
	// Exception is evaluated against the error an attempt raised.
	Exception func(err error) bool
	// Outcome is evaluated against the completed outcome.
	Outcome func(o *query.Outcome) bool
}

// Policy is the retry budget plus the conditions that spend it.
type Policy struct {
	// MaxRetries is the number of attempts allowed after the first.
	MaxRetries int `mapstructure:"max_retries"`
	// Conditions are evaluated in order.
	Conditions []Condition `mapstructure:"-"`
	// Combine defaults to CombineAny.
	Combine Combine `mapstructure:"combine"`
	// Backoff, when set, spaces consecutive attempts.
	Backoff *resilience.BackoffConfig `mapstructure:"backoff"`
}

// Remaining returns how many more attempts are allowed once attempts
// have been made.
// A nil policy has none.
func (p *Policy) Remaining(attempts int) int {
	if p == nil {
		return 0
	}
	left := p.MaxRetries + 1 - attempts
	if left < 0 {
		return 0
	}
	return left
}

// MaxAttempts returns the total number of attempts the policy allows.
func (p *Policy) MaxAttempts() int {
	if p == nil || p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Delay returns how long to wait before retry number retry (1-based).
func (p *Policy) Delay(retry int) time.Duration {
	if p == nil || p.Backoff == nil {
		return 0
	}
	return p.Backoff.Delay(retry)
}

// ShouldRetry evaluates the policy's conditions. Exception predicates are
// skipped when err is nil and outcome predicates when o is nil. A policy
// without conditions, or with none applicable, never retries. Configuration
// errors are never retried.
func ShouldRetry(p *Policy, err error, o *query.Outcome) bool {
	if p == nil || len(p.Conditions) == 0 {
		return false
	}
	if wqerrors.IsCode(err, wqerrors.ErrCodeConfiguration) {
		return false
	}
	if o != nil && wqerrors.IsCode(o.Err, wqerrors.ErrCodeConfiguration) {
		return false
	}

	all := p.Combine == CombineAll
	evaluated := 0
	for _, c := range p.Conditions {
		if c.Exception != nil && err != nil {
			evaluated++
			matched := c.Exception(err)
			if matched && !all {
				return true
			}
			if !matched && all {
				return false
			}
		}
		if c.Outcome != nil && o != nil {
			evaluated++
			matched := c.Outcome(o)
			if matched && !all {
				return true
			}
			if !matched && all {
				return false
			}
		}
	}
	return all && evaluated > 0
}
