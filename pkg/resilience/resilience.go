// Package resilience isolates calls to unreliable collaborators.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Rejecting requests
	CircuitHalfOpen                     // Testing if the collaborator recovered
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker stops calling a collaborator after consecutive failures
// and lets a single trial call through once the cooldown has passed.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures    int
	cooldownPeriod time.Duration

	state    CircuitState
	failures int
	tripTime time.Time
	probing  bool

	// now is replaceable in tests.
	now func() time.Time

	OnTrip  func(failures int)
	OnReset func()
}

// NewCircuitBreaker creates a breaker that trips after 5 consecutive
// failures and tries again after 30 seconds.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:    5,
		cooldownPeriod: 30 * time.Second,
		now:            time.Now,
	}
}

// WithMaxFailures sets the consecutive failures that trip the breaker.
func (cb *CircuitBreaker) WithMaxFailures(n int) *CircuitBreaker {
	if n < 1 {
		n = 1
	}
	cb.maxFailures = n
	return cb
}

// WithCooldown sets the wait before probing after a trip.
func (cb *CircuitBreaker) WithCooldown(d time.Duration) *CircuitBreaker {
	cb.cooldownPeriod = d
	return cb
}

// Allow reports whether a call may proceed. In the half-open state only one
// trial call is allowed at a time.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.tripTime) < cb.cooldownPeriod {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.probing = true
		return true
	case CircuitHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

// Record reports the outcome of an allowed call.
func (cb *CircuitBreaker) Record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	if success {
		wasOpen := cb.state != CircuitClosed
		cb.state = CircuitClosed
		cb.failures = 0
		if wasOpen && cb.OnReset != nil {
			go cb.OnReset()
		}
		return
	}

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = CircuitOpen
		cb.tripTime = cb.now()
		if cb.OnTrip != nil {
			go cb.OnTrip(cb.failures)
		}
	}
}

// Do runs fn if the breaker allows it and records the outcome. Context
// cancellation is not counted as a failure of the collaborator.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return ErrOpen
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		cb.mu.Lock()
		cb.probing = false
		cb.mu.Unlock()
		return err
	}
	cb.Record(err == nil)
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// SafeCall runs fn with a timeout and converts a panic into an error. A
// timeout of zero or less means no limit. fn keeps running in the
// background after a timeout and must honor its context.
func SafeCall[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (result T, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic recovered: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return result, ctx.Err()
	case o := <-done:
		return o.v, o.err
	}
}
