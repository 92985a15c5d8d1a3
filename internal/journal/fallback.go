package journal

import (
	"context"
	"time"

	"github.com/MrWong99/voxseg/internal/resilience"
)

// Member names inside a [FallbackStore].
const (
	primaryName  = "journal-primary"
	fallbackName = "journal-memory"
)

// FallbackStore fronts a primary store (normally [PostgresStore]) with a
// circuit breaker and falls back to an in-memory ring while the primary is
// failing. Records written during an outage live only in the ring and are
// not replayed into the primary.
type FallbackStore struct {
	group *resilience.Group[Store]
}

// Compile-time interface check.
var _ Store = (*FallbackStore)(nil)

// NewFallbackStore returns a store that prefers primary and uses fallback
// after primary fails. A zero cfg opens the breaker after 3 consecutive
// failures and probes again after 10s.
func NewFallbackStore(primary Store, fallback *MemStore, cfg resilience.BreakerConfig) *FallbackStore {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	g := resilience.NewGroup[Store](primaryName, primary, cfg)
	g.Add(fallbackName, fallback)
	return &FallbackStore{group: g}
}

// Degraded reports whether the primary is currently bypassed.
func (s *FallbackStore) Degraded() bool {
	return s.group.Breaker(primaryName).State() != resilience.StateClosed
}

// Append implements [Store].
func (s *FallbackStore) Append(ctx context.Context, r Record) (Record, error) {
	return resilience.Call(s.group, func(st Store) (Record, error) {
		return st.Append(ctx, r)
	})
}

// Recent implements [Store]. While degraded only the records held by the
// fallback ring are visible.
func (s *FallbackStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	return resilience.Call(s.group, func(st Store) ([]Record, error) {
		return st.Recent(ctx, limit)
	})
}
