package retry

import (
	"errors"
	"net/http"
	"testing"
	"time"

	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/query"
	"github.com/kbukum/webquery/resilience"
)

func TestShouldRetry_NoPolicyOrConditions(t *testing.T) {
	o := &query.Outcome{StatusCode: 500}
	if ShouldRetry(nil, nil, o) {
		t.Error("nil policy must not retry")
	}
	if ShouldRetry(&Policy{MaxRetries: 5}, errors.New("x"), o) {
		t.Error("policy without conditions must not retry")
	}
}

func TestShouldRetry_AnyMatches(t *testing.T) {
	p := &Policy{
		MaxRetries: 2,
		Conditions: []Condition{OnStatus(503), OnServerError()},
	}
	if !ShouldRetry(p, nil, &query.Outcome{StatusCode: 500}) {
		t.Error("expected a single matching condition to retry")
	}
	if ShouldRetry(p, nil, &query.Outcome{StatusCode: 404}) {
		t.Error("expected no retry for 404")
	}
}

func TestShouldRetry_SkipsInapplicable(t *testing.T) {
	p := &Policy{Conditions: []Condition{OnNetworkError()}}
	if ShouldRetry(p, nil, &query.Outcome{StatusCode: 502}) {
		t.Error("exception predicate must be skipped without an error")
	}
	if !ShouldRetry(p, wqerrors.Transport(errors.New("reset")), nil) {
		t.Error("expected transport failure to retry")
	}

	p = &Policy{Conditions: []Condition{Always()}}
	if ShouldRetry(p, errors.New("x"), nil) {
		t.Error("outcome predicate must be skipped without an outcome")
	}
}

func TestShouldRetry_CombineAll(t *testing.T) {
	p := &Policy{
		Combine:    CombineAll,
		Conditions: []Condition{OnServerError(), OnStatus(503)},
	}
	if ShouldRetry(p, nil, &query.Outcome{StatusCode: 500}) {
		t.Error("expected all conditions to be required")
	}
	if !ShouldRetry(p, nil, &query.Outcome{StatusCode: 503}) {
		t.Error("expected retry when every condition matches")
	}
	if ShouldRetry(p, errors.New("x"), nil) {
		t.Error("no applicable conditions must not retry")
	}
}

func TestShouldRetry_NeverOnConfiguration(t *testing.T) {
	p := &Policy{Conditions: []Condition{Exception("any", func(error) bool { return true })}}
	if ShouldRetry(p, wqerrors.Configuration("bad method"), nil) {
		t.Error("configuration errors must never be retried")
	}
}

func TestOnTimeout(t *testing.T) {
	c := OnTimeout()
	if !c.Exception(wqerrors.Timeout("exchange", 50*time.Millisecond)) {
		t.Error("expected timeout error to match")
	}
	if !c.Outcome(&query.Outcome{TimedOut: true}) {
		t.Error("expected timed out outcome to match")
	}
	if c.Outcome(&query.Outcome{StatusCode: http.StatusOK}) {
		t.Error("expected completed outcome not to match")
	}
}

func TestPolicy_Remaining(t *testing.T) {
	var p *Policy
	if p.Remaining(1) != 0 || p.MaxAttempts() != 1 {
		t.Error("nil policy allows a single attempt")
	}
	p = &Policy{MaxRetries: 3}
	tests := []struct{ attempts, want int }{{0, 4}, {1, 3}, {4, 0}, {9, 0}}
	for _, tt := range tests {
		if got := p.Remaining(tt.attempts); got != tt.want {
			t.Errorf("Remaining(%d) = %d, want %d", tt.attempts, got, tt.want)
		}
	}
	if p.MaxAttempts() != 4 {
		t.Errorf("expected 4 attempts, got %d", p.MaxAttempts())
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := &Policy{Backoff: &resilience.BackoffConfig{Initial: 10 * time.Millisecond, Factor: 2}}
	if d := p.Delay(3); d != 40*time.Millisecond {
		t.Errorf("expected 40ms, got %v", d)
	}
	if (&Policy{}).Delay(1) != 0 {
		t.Error("expected no delay without backoff")
	}
}
