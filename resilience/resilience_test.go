package resilience

import (
	"context"
	"testing"
	"time"
)

func TestBackoff_Delay_Exponential(t *testing.T) {
	cfg := BackoffConfig{Initial: 10 * time.Millisecond, Max: time.Second, Factor: 2}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	for i, w := range want {
		if got := cfg.Delay(i + 1); got != w {
			t.Errorf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
}

func TestBackoff_Delay_CappedAtMax(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: 3 * time.Second, Factor: 10}
	if got := cfg.Delay(5); got != 3*time.Second {
		t.Errorf("expected cap 3s, got %v", got)
	}
}

func TestBackoff_Delay_JitterBounds(t *testing.T) {
	cfg := BackoffConfig{Initial: 100 * time.Millisecond, Factor: 1, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		d := cfg.Delay(1)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("delay %v outside jitter bounds", d)
		}
	}
}

func TestBackoff_ZeroInitialMeansNoDelay(t *testing.T) {
	if d := (BackoffConfig{}).Delay(3); d != 0 {
		t.Errorf("expected 0, got %v", d)
	}
}

func TestSleep_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Error("expected context error")
	}
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	var transitions []State
	b := NewBreaker(BreakerConfig{
		MaxFailures: 2,
		OpenFor:     time.Hour,
		OnStateChange: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	})

	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("expected allow while closed, got %v", err)
		}
		b.Record(false)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if err := b.Allow(); err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("unexpected transitions %v", transitions)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{MaxFailures: 1, OpenFor: time.Minute})
	b.now = func() time.Time { return now }

	b.Record(false)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected a probe in half-open, got %v", err)
	}
	if err := b.Allow(); err != ErrCircuitOpen {
		t.Errorf("expected only one probe, got %v", err)
	}
	b.Record(true)
	if b.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 2})
	b.Record(false)
	b.Record(true)
	b.Record(false)
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 2})
	if !rl.Allow() || !rl.Allow() {
		t.Fatal("expected burst of 2")
	}
	if rl.Allow() {
		t.Error("expected third call to be limited")
	}
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 100, Burst: 1})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("wait failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("expected pacing of roughly 20ms, got %v", elapsed)
	}
}

func TestRateLimiter_WaitCanceled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1})
	rl.Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("expected context deadline error")
	}
}
