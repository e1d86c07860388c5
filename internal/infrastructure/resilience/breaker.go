package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned without calling through while the circuit is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when every half-open probe slot is taken.
	ErrTooManyRequests = errors.New("circuit breaker is probing")
)

// State is the position of the circuit
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Policy decides when the circuit opens and how it recovers
type Policy struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// Probes is the number of calls let through while half-open. All of them
	// must succeed to close the circuit.
	Probes int
	// IsFailure classifies call errors. Nil counts every error except
	// context cancellation.
	IsFailure func(err error) bool
	// OnTransition observes state changes. It runs with the breaker locked
	// and must not call back into it.
	OnTransition func(name string, from, to State)
}

func (p Policy) withDefaults() Policy {
	if p.Threshold <= 0 {
		p.Threshold = 5
	}
	if p.Cooldown <= 0 {
		p.Cooldown = 30 * time.Second
	}
	if p.Probes <= 0 {
		p.Probes = 1
	}
	if p.IsFailure == nil {
		p.IsFailure = countsAsFailure
	}
	return p
}

// countsAsFailure ignores cancellation: an abandoned call says nothing about
// the remote side.
func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Breaker stops calling a failing dependency for a while
type Breaker struct {
	name   string
	policy Policy

	mu        sync.Mutex
	state     State
	failures  int // consecutive, while closed
	inflight  int // probes running, while half-open
	succeeded int // probes passed, while half-open
	openUntil time.Time
}

// New creates a closed breaker
func New(name string, policy Policy) *Breaker {
	return &Breaker{
		name:   name,
		policy: policy.withDefaults(),
	}
}

// Name returns the breaker's name
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, moving an expired open circuit to half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh(time.Now())
	return b.state
}

// Failures returns the current run of consecutive failures
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Call runs fn unless the circuit rejects it, and records the outcome.
// A panic in fn is recorded as a failure and re-raised.
func (b *Breaker) Call(fn func() error) (err error) {
	if err := b.admit(); err != nil {
		return err
	}

	done := false
	defer func() {
		if !done {
			b.record(false)
		}
	}()

	err = fn()
	done = true
	b.record(!b.policy.IsFailure(err))
	return err
}

// Do is Call for functions that return a value.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var out T
	err := b.Call(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh(time.Now())
	switch b.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.inflight >= b.policy.Probes {
			return ErrTooManyRequests
		}
		b.inflight++
	}
	return nil
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if ok {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.policy.Threshold {
			b.open(time.Now())
		}
	case StateHalfOpen:
		b.inflight--
		if !ok {
			b.open(time.Now())
			return
		}
		b.succeeded++
		if b.succeeded >= b.policy.Probes {
			b.moveTo(StateClosed)
		}
	}
	// Results landing while open belong to calls admitted before the trip.
}

func (b *Breaker) refresh(now time.Time) {
	if b.state == StateOpen && !now.Before(b.openUntil) {
		b.moveTo(StateHalfOpen)
	}
}

func (b *Breaker) open(now time.Time) {
	b.openUntil = now.Add(b.policy.Cooldown)
	b.moveTo(StateOpen)
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	b.inflight = 0
	b.succeeded = 0

	if b.policy.OnTransition != nil {
		b.policy.OnTransition(b.name, from, to)
	}
}
