// Package circuitbreaker stops calling an upstream provider after repeated
// failures and probes it again after a cool-down.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrOpen is returned by Allow while the circuit is open
var ErrOpen = errors.New("circuit breaker open")

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, calls are rejected
	StateHalfOpen              // Probing whether the provider recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Thresholds defines when the circuit trips
type Thresholds struct {
	// MaxConsecutiveFailures trips the circuit once reached
	MaxConsecutiveFailures int `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
}

// CircuitBreaker guards a single upstream
type CircuitBreaker struct {
	name       string
	thresholds Thresholds

	mu               sync.RWMutex
	state            State
	lastTrip         time.Time
	failures         int
	successCount     int
	resetDelay       time.Duration
	successThreshold int
	now              func() time.Time

	onTripCallback func(name, reason string)
}

// New creates a closed breaker for the named upstream
func New(name string, t Thresholds) *CircuitBreaker {
	if t.MaxConsecutiveFailures <= 0 {
		t.MaxConsecutiveFailures = 5
	}
	return &CircuitBreaker{
		name:             name,
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       time.Minute,
		successThreshold: 1,
		now:              time.Now,
	}
}

// WithResetDelay sets how long the circuit stays open before a probe
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of successful probes needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback invoked asynchronously when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(name, reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// WithClock replaces time.Now
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// Name returns the guarded upstream
func (cb *CircuitBreaker) Name() string { return cb.name }

// Allow reports whether a call may proceed. An open circuit whose reset delay
// has elapsed moves to half-open and lets the call through as a probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return nil
	}
	if cb.now().Sub(cb.lastTrip) < cb.resetDelay {
		return fmt.Errorf("%w: %s", ErrOpen, cb.name)
	}
	cb.state = StateHalfOpen
	cb.successCount = 0
	logrus.WithFields(logrus.Fields{"breaker": cb.name}).Info("Circuit breaker half-open: probing upstream")
	return nil
}

// RecordSuccess resets the failure streak and closes a half-open circuit
// once enough probes succeed
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.WithFields(logrus.Fields{"breaker": cb.name}).Info("Circuit breaker closed: upstream recovered")
		}
	}
}

// RecordFailure counts a failure. A failed probe reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.trip("probe failed: " + reason)
	case cb.state == StateClosed && cb.failures >= cb.thresholds.MaxConsecutiveFailures:
		cb.trip(fmt.Sprintf("%d consecutive failures, last: %s", cb.failures, reason))
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successCount = 0
	logrus.WithFields(logrus.Fields{"breaker": cb.name}).Info("Circuit breaker manually reset to closed state")
}

// trip must be called with mu held
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTrip = cb.now()
	cb.successCount = 0
	logrus.WithFields(logrus.Fields{
		"breaker": cb.name,
		"reason":  reason,
	}).Warn("Circuit breaker tripped")

	if cb.onTripCallback != nil {
		go cb.onTripCallback(cb.name, reason)
	}
}

// Group lazily creates one breaker per upstream name with shared settings
type Group struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	build    func(name string) *CircuitBreaker
}

// NewGroup returns a group whose breakers are created by build
func NewGroup(build func(name string) *CircuitBreaker) *Group {
	return &Group{breakers: make(map[string]*CircuitBreaker), build: build}
}

// Get returns the breaker for name, creating it on first use
func (g *Group) Get(name string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[name]
	if !ok {
		cb = g.build(name)
		g.breakers[name] = cb
	}
	return cb
}

// States snapshots the state of every breaker created so far
func (g *Group) States() map[string]State {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]State, len(g.breakers))
	for name, cb := range g.breakers {
		out[name] = cb.GetState()
	}
	return out
}
