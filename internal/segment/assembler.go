package segment

import (
	"errors"
	"fmt"

	"github.com/MrWong99/voxseg/pkg/audio"
	"github.com/MrWong99/voxseg/pkg/tensor"
)

// ErrCapacityExceeded matches any [*CapacityError] with errors.Is.
var ErrCapacityExceeded = errors.New("segment: capacity exceeded")

// CapacityError reports a segment whose samples do not fit the assembler.
// It is recoverable: the caller decides whether to split, truncate or drop.
type CapacityError struct {
	// Samples is the total sample count of the rejected segment.
	Samples int

	// Capacity is the assembler's sample cap.
	Capacity int
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("segment: %d samples exceed capacity of %d", e.Samples, e.Capacity)
}

// Is reports whether target is [ErrCapacityExceeded].
func (e *CapacityError) Is(target error) bool { return target == ErrCapacityExceeded }

// Assembler concatenates frames into a single [1, N] tensor bounded by a
// fixed sample capacity (maxDurationSeconds × sampleRate). It holds no state
// between calls and is safe for concurrent use.
//
// The returned tensor covers exactly the copied samples; there is no
// zero-padding up to capacity.
type Assembler struct {
	capacity int
}

// NewAssembler returns an assembler with the given sample capacity.
func NewAssembler(capacity int) (*Assembler, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("segment: assembler capacity must be positive, got %d", capacity)
	}
	return &Assembler{capacity: capacity}, nil
}

// Capacity returns the sample cap.
func (a *Assembler) Capacity() int { return a.capacity }

// Assemble copies frames in order into one tensor. A segment of exactly
// Capacity samples succeeds; one sample more fails with a [*CapacityError]
// and nothing is allocated.
func (a *Assembler) Assemble(frames []audio.Frame) (*tensor.AudioTensor, error) {
	total := audio.TotalSamples(frames)
	if total > a.capacity {
		return nil, &CapacityError{Samples: total, Capacity: a.capacity}
	}
	buf := make([]float32, total)
	off := 0
	for _, f := range frames {
		off += copy(buf[off:], f)
	}
	return tensor.New(buf), nil
}

// Fit returns how many leading frames fit within capacity.
func (a *Assembler) Fit(frames []audio.Frame) int {
	total := 0
	for i, f := range frames {
		if total+len(f) > a.capacity {
			return i
		}
		total += len(f)
	}
	return len(frames)
}

// Split partitions frames into consecutive groups that each fit within
// capacity, never breaking a frame. It fails if a single frame is larger than
// the capacity.
func (a *Assembler) Split(frames []audio.Frame) ([][]audio.Frame, error) {
	var groups [][]audio.Frame
	for len(frames) > 0 {
		n := a.Fit(frames)
		if n == 0 {
			return nil, &CapacityError{Samples: len(frames[0]), Capacity: a.capacity}
		}
		groups = append(groups, frames[:n])
		frames = frames[n:]
	}
	return groups, nil
}
