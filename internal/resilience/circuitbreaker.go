// Package resilience provides a circuit breaker and an ordered failover group
// for the service's external dependencies, currently the segment journal
// database.
//
// A [Breaker] is a three-state machine (closed, open, half-open) that stops
// calling a dependency after repeated failures and probes it again after a
// cool-down. A [Group] tries a primary and then its fallbacks, each behind its
// own breaker.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cool-down
	// elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. Enough
	// successes close the breaker; any failure opens it again.
	StateHalfOpen
)

// String returns the state name used in logs.
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

// BreakerConfig tunes a [Breaker].
type BreakerConfig struct {
	// Name labels log messages and state-change callbacks.
	Name string

	// MaxFailures is the run of consecutive failures that opens the breaker.
	// Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing. Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close.
	// Default: 3.
	Probes int

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker unlocked.
	OnStateChange func(name string, from, to State)
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probes      int
	onChange    func(name string, from, to State)
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int
	passed   int
}

// NewBreaker returns a closed breaker. Zero config fields take their defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 3
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probes:      cfg.Probes,
		onChange:    cfg.OnStateChange,
		now:         time.Now,
	}
}

// Do runs fn unless the breaker is open. The error from fn is returned
// unchanged and recorded as a failure when non-nil.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.record(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it counts as a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	var from State
	changed := false
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		from, changed = b.transition(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.inFlight+b.passed >= b.probes {
			b.mu.Unlock()
			b.notify(changed, from, StateHalfOpen)
			return false, ErrCircuitOpen
		}
		b.inFlight++
		probe = true
	}
	b.mu.Unlock()
	b.notify(changed, from, StateHalfOpen)
	return probe, nil
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	var (
		from    State
		to      = b.state
		changed bool
	)
	switch {
	case probe && b.state == StateHalfOpen:
		b.inFlight--
		if err != nil {
			to = StateOpen
			from, changed = b.transition(StateOpen)
		} else if b.passed++; b.passed >= b.probes {
			to = StateClosed
			from, changed = b.transition(StateClosed)
		}
	case b.state == StateClosed:
		if err == nil {
			b.failures = 0
			break
		}
		b.failures++
		if b.failures >= b.maxFailures {
			to = StateOpen
			from, changed = b.transition(StateOpen)
		}
	}
	failures := b.failures
	b.mu.Unlock()

	if changed {
		if to == StateOpen {
			slog.Warn("circuit breaker opened", "name", b.name, "from", from, "consecutive_failures", failures, "err", err)
		} else {
			slog.Info("circuit breaker closed", "name", b.name)
		}
	}
	b.notify(changed, from, to)
}

// transition moves to s and resets the per-state counters. Must be called
// with b.mu held.
func (b *Breaker) transition(s State) (from State, changed bool) {
	from = b.state
	if from == s {
		return from, false
	}
	b.state = s
	b.inFlight = 0
	b.passed = 0
	switch s {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.failures = 0
	}
	return from, true
}

func (b *Breaker) notify(changed bool, from, to State) {
	if changed && b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// State returns the current state. An open breaker whose cool-down has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from, changed := b.transition(StateClosed)
	b.failures = 0
	b.mu.Unlock()
	b.notify(changed, from, StateClosed)
}
