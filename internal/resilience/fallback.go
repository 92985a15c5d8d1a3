package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [Group] failed or was
// skipped because its breaker was open.
var ErrAllFailed = errors.New("resilience: all members failed")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group tries a primary and then its fallbacks in registration order, each
// guarded by its own [Breaker].
type Group[T any] struct {
	members []member[T]
	cfg     BreakerConfig
}

// NewGroup returns a group whose first member is primary. cfg is copied for
// every member's breaker with Name replaced by the member name.
func NewGroup[T any](name string, primary T, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(name, primary)
	return g
}

// Add appends a fallback. Not safe to call concurrently with [Group.Do].
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Breaker returns the breaker guarding the named member, or nil.
func (g *Group[T]) Breaker(name string) *Breaker {
	for i := range g.members {
		if g.members[i].name == name {
			return g.members[i].breaker
		}
	}
	return nil
}

// Do runs fn against each member until one succeeds.
func (g *Group[T]) Do(fn func(T) error) error {
	_, err := Call(g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// Call is [Group.Do] for functions that return a value.
func Call[T, R any](g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range g.members {
		m := &g.members[i]
		var out R
		err := m.breaker.Do(func() error {
			var err error
			out, err = fn(m.value)
			return err
		})
		if err == nil {
			if i > 0 {
				slog.Debug("served by fallback", "member", m.name)
			}
			return out, nil
		}
		lastErr = err
		if !errors.Is(err, ErrCircuitOpen) {
			slog.Warn("member failed, trying next", "member", m.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
