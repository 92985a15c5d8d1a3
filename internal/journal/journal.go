// Package journal keeps a queryable history of emitted speech segments.
//
// Only metadata is stored, never samples. [MemStore] is the default;
// [PostgresStore] persists across restarts when a DSN is configured.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxseg/internal/segment"
)

// Record is the journaled metadata of one emitted segment part.
type Record struct {
	// ID is assigned by the store on Append.
	ID int64 `json:"id"`

	Seq            uint64        `json:"seq"`
	Part           int           `json:"part"`
	Parts          int           `json:"parts"`
	Samples        int           `json:"samples"`
	LookbackFrames int           `json:"lookback_frames"`
	Start          time.Duration `json:"start_ns"`
	Duration       time.Duration `json:"duration_ns"`
	Truncated      bool          `json:"truncated"`
	Reason         string        `json:"reason"`
	CreatedAt      time.Time     `json:"created_at"`
}

// FromSegment builds the record for seg.
func FromSegment(seg *segment.Segment) Record {
	return Record{
		Seq:            seg.Seq,
		Part:           seg.Part,
		Parts:          seg.Parts,
		Samples:        seg.Tensor.Samples(),
		LookbackFrames: seg.LookbackFrames,
		Start:          seg.Start,
		Duration:       seg.Duration,
		Truncated:      seg.Truncated,
		Reason:         seg.Reason,
	}
}

// Store persists segment records.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores r. ID and CreatedAt are assigned by the store.
	Append(ctx context.Context, r Record) (Record, error)

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// DefaultMemoryLimit is the number of records a [MemStore] keeps when no
// limit is configured.
const DefaultMemoryLimit = 256

// MemStore is a fixed-size in-memory ring of the most recent records.
type MemStore struct {
	mu     sync.Mutex
	ring   []Record
	next   int
	full   bool
	lastID int64
	now    func() time.Time
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore returns a store keeping the last limit records. A
// non-positive limit uses [DefaultMemoryLimit].
func NewMemStore(limit int) *MemStore {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &MemStore{ring: make([]Record, limit), now: time.Now}
}

// Append implements [Store].
func (s *MemStore) Append(_ context.Context, r Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	r.ID = s.lastID
	r.CreatedAt = s.now().UTC()
	s.ring[s.next] = r
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
	return r, nil
}

// Recent implements [Store].
func (s *MemStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	if s.full {
		n = len(s.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Record, 0, limit)
	for i := range limit {
		idx := (s.next - 1 - i + len(s.ring)) % len(s.ring)
		out = append(out, s.ring[idx])
	}
	return out, nil
}
