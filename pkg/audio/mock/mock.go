// Package mock provides an in-memory [audio.Source] for unit tests.
//
// The mock is safe for concurrent use. It records every Read call so tests can
// assert on call counts and requested lengths, and it exposes exported fields
// that control what each Read returns.
//
// Typical usage:
//
//	src := &mock.Source{Chunks: [][]float32{
//	    make([]float32, 200), // first Read returns 200 samples
//	    make([]float32, 312), // second Read completes a 512-sample frame
//	}}
//	r, _ := audio.NewFrameReader(src, 512)
//	frame, err := r.ReadFrame(ctx)
package mock

import (
	"io"
	"sync"

	"github.com/MrWong99/voxseg/pkg/audio"
)

// Source is a mock implementation of [audio.Source]. Each Read consumes from
// the head of Chunks; a chunk longer than the caller's buffer is split across
// reads. When Chunks is exhausted Read returns (0, Err), or io.EOF when Err is
// nil.
type Source struct {
	mu sync.Mutex

	// Chunks holds the successive results of Read.
	Chunks [][]float32

	// Err is returned once Chunks is exhausted. Defaults to io.EOF.
	Err error

	// OnRead, if set, is invoked after every Read with the 1-based call index.
	// Tests use it to trigger cancellation at a precise point.
	OnRead func(call int)

	// CloseErr is returned by Close.
	CloseErr error

	// --- Call records ---

	// ReadRequests records len(buf) for every Read call in order.
	ReadRequests []int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// FromFrames returns a Source that yields each frame as one chunk.
func FromFrames(frames ...audio.Frame) *Source {
	chunks := make([][]float32, len(frames))
	for i, f := range frames {
		chunks[i] = f
	}
	return &Source{Chunks: chunks}
}

// Read implements [audio.Source].
func (s *Source) Read(buf []float32) (int, error) {
	s.mu.Lock()
	s.ReadRequests = append(s.ReadRequests, len(buf))
	call := len(s.ReadRequests)

	var (
		n   int
		err error
	)
	if len(s.Chunks) == 0 {
		err = s.Err
		if err == nil {
			err = io.EOF
		}
	} else {
		head := s.Chunks[0]
		n = copy(buf, head)
		if n < len(head) {
			s.Chunks[0] = head[n:]
		} else {
			s.Chunks = s.Chunks[1:]
		}
	}
	hook := s.OnRead
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return n, err
}

// Close records the call and returns CloseErr.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Remaining returns the number of chunks not yet consumed.
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Chunks)
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)
