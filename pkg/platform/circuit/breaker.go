// Package circuit provides a simple circuit breaker for ledger reachability.
package circuit

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the collaborator is healthy and calls flow normally.
	StateClosed State = iota
	// StateOpen means the circuit has tripped. Security-relevant reads must
	// fail closed while open rather than trust a stale mirror.
	StateOpen
)

// StateChange reports a transition so callers can log it exactly once.
type StateChange struct {
	Opened bool
	Closed bool
}

// Breaker tracks consecutive failures for an external collaborator. After
// FailureThreshold consecutive failures the circuit opens; while open, Allow
// sheds calls but lets one probe through per probe interval, and after
// SuccessThreshold consecutive successes the circuit closes again.
type Breaker struct {
	mu               sync.Mutex
	state            State
	name             string
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	probeInterval    time.Duration
	lastProbe        time.Time
	now              func() time.Time
}

// Option configures a Breaker instance.
type Option func(*Breaker)

// WithFailureThreshold sets the consecutive failures needed to open the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the consecutive successes needed to close the circuit.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithProbeInterval sets how often a probe call is let through while open.
func WithProbeInterval(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.probeInterval = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a circuit breaker with the given name and options.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 2,
		probeInterval:    10 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Name returns the breaker's name for logging and metrics.
func (b *Breaker) Name() string {
	return b.name
}

// IsOpen returns true if the circuit is open (tripped).
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen
}

// Allow reports whether a call may proceed. A closed circuit always allows.
// An open circuit sheds calls, but lets a single probe through once per probe
// interval so a recovered collaborator can close the circuit again.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		return true
	}
	if b.now().Sub(b.lastProbe) < b.probeInterval {
		return false
	}
	b.lastProbe = b.now()
	return true
}

// RecordFailure records a failed call and returns whether the circuit is now
// open, along with any state transition.
func (b *Breaker) RecordFailure() (open bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.successCount = 0

	if b.state == StateOpen {
		// A failed probe re-arms the cooldown before the next one.
		b.lastProbe = b.now()
		return true, StateChange{}
	}
	if b.failureCount >= b.failureThreshold {
		b.state = StateOpen
		b.lastProbe = b.now()
		return true, StateChange{Opened: true}
	}
	return false, StateChange{}
}

// RecordSuccess records a successful call. While open, enough consecutive
// successes close the circuit again.
func (b *Breaker) RecordSuccess() (open bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0

	if b.state == StateClosed {
		return false, StateChange{}
	}

	b.successCount++
	if b.successCount >= b.successThreshold {
		b.state = StateClosed
		b.successCount = 0
		return false, StateChange{Closed: true}
	}
	return true, StateChange{}
}
