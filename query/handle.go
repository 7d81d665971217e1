package query

import (
	"sync"
	"time"
)

// Handle tracks an asynchronous exchange. It resolves exactly once.
type Handle struct {
	once    sync.Once
	done    chan struct{}
	outcome *Outcome
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Done is closed when the exchange has resolved.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the exchange resolves and returns its outcome.
func (h *Handle) Wait() *Outcome {
	<-h.done
	return h.outcome
}

// WaitTimeout waits up to d. It returns false if the exchange is still
// running.
func (h *Handle) WaitTimeout(d time.Duration) (*Outcome, bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-h.done:
		return h.outcome, true
	case <-timer.C:
		return nil, false
	}
}

// Outcome returns the outcome, or nil while the exchange is running.
func (h *Handle) Outcome() *Outcome {
	select {
	case <-h.done:
		return h.outcome
	default:
		return nil
	}
}

// resolve publishes the outcome produced by claim if no other resolution
// happened first. It reports whether this call won.
func (h *Handle) resolve(claim func() *Outcome) bool {
	won := false
	h.once.Do(func() {
		won = true
		h.outcome = claim()
		close(h.done)
	})
	return won
}
