package resilience

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows exchanges to pass through.
	StateClosed State = iota
	// StateOpen rejects every exchange.
	StateOpen
	// StateHalfOpen allows a limited number of probe exchanges.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Allow while the breaker rejects exchanges.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// Name identifies this breaker in logs.
	Name string `mapstructure:"name"`
	// MaxFailures is the number of consecutive failures before opening.
	MaxFailures int `mapstructure:"max_failures"`
	// OpenFor is how long to stay open before probing.
	OpenFor time.Duration `mapstructure:"open_for"`
	// HalfOpenMaxCalls is the number of probes allowed while half-open.
	HalfOpenMaxCalls int `mapstructure:"half_open_max_calls"`
	// OnStateChange is called when state changes.
	OnStateChange func(name string, from, to State) `mapstructure:"-"`
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxFailures:      5,
		OpenFor:          30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breaker implements the circuit breaker pattern. The caller reports each
// exchange with Record because an exchange outcome is not an error value.
type Breaker struct {
	config BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	openedAt      time.Time
	halfOpenCalls int
	now           func() time.Time
}

// NewBreaker creates a new circuit breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.OpenFor <= 0 {
		config.OpenFor = 30 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 1
	}
	return &Breaker{config: config, state: StateClosed, now: time.Now}
}

// Allow returns ErrCircuitOpen when the exchange must not be attempted.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.halfOpenCalls < b.config.HalfOpenMaxCalls {
			b.halfOpenCalls++
			return nil
		}
	}
	return ErrCircuitOpen
}

// Record reports the result of an allowed exchange.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState()
	if success {
		switch state {
		case StateClosed:
			b.failures = 0
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.config.HalfOpenMaxCalls {
				b.toState(StateClosed)
			}
		}
		return
	}

	b.failures++
	switch state {
	case StateClosed:
		if b.failures >= b.config.MaxFailures {
			b.toState(StateOpen)
		}
	case StateHalfOpen:
		b.toState(StateOpen)
	}
}

// State returns the current circuit breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// Reset returns the breaker to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toState(StateClosed)
}

// currentState returns the current state, handling the open timeout.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.config.OpenFor {
		b.toState(StateHalfOpen)
	}
	return b.state
}

// toState transitions to a new state and resets counters.
func (b *Breaker) toState(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.successes = 0
	b.halfOpenCalls = 0
	switch to {
	case StateClosed:
		b.failures = 0
	case StateOpen:
		b.openedAt = b.now()
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.config.Name, from, to)
	}
}
