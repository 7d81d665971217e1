package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig configures the delay between retry attempts.
type BackoffConfig struct {
	// Initial is the delay before the first retry.
	Initial time.Duration `mapstructure:"initial"`
	// Max caps every delay.
	Max time.Duration `mapstructure:"max"`
	// Factor is the multiplier applied per attempt.
	Factor float64 `mapstructure:"factor"`
	// Jitter adds randomness to each delay (0.0 to 1.0).
	Jitter float64 `mapstructure:"jitter"`
}

// DefaultBackoffConfig returns sensible defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial: 100 * time.Millisecond,
		Max:     10 * time.Second,
		Factor:  2.0,
		Jitter:  0.1,
	}
}

// Delay returns the backoff before retry number attempt (1-based).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if c.Initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	factor := c.Factor
	if factor <= 0 {
		factor = 2.0
	}

	// Exponential backoff: initial * factor^(attempt-1)
	d := float64(c.Initial) * math.Pow(factor, float64(attempt-1))

	if c.Jitter > 0 {
		jitterRange := d * c.Jitter
		d += (rand.Float64()*2 - 1) * jitterRange
	}
	if c.Max > 0 && d > float64(c.Max) {
		d = float64(c.Max)
	}
	if d < 0 {
		d = float64(c.Initial)
	}
	return time.Duration(d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
