package segment

import (
	"github.com/MrWong99/voxseg/pkg/audio"
)

// LookbackFrames converts a lookback window in milliseconds to a frame bound,
// ceil(lookbackMs / frameDurationMs). At 16 kHz with 512-sample frames,
// 400 ms yields 13 frames. An eviction loop of the form "while len > 12.5"
// floors instead and keeps 12.
func LookbackFrames(lookbackMs int, f audio.Format) int {
	if lookbackMs <= 0 || f.SampleRate <= 0 || f.FrameSize <= 0 {
		return 0
	}
	num := lookbackMs * f.SampleRate
	den := f.FrameSize * 1000
	return (num + den - 1) / den
}

// Lookback is an ordered FIFO of frames. While the segmenter is idle it holds
// at most Bound frames of pre-speech context; while speaking it holds the
// whole active segment. Not safe for concurrent use.
type Lookback struct {
	frames []audio.Frame
	bound  int
}

// NewLookback returns an empty buffer trimmed to bound frames by [Lookback.Trim].
// A negative bound is treated as zero.
func NewLookback(bound int) *Lookback {
	bound = max(bound, 0)
	return &Lookback{
		frames: make([]audio.Frame, 0, bound+1),
		bound:  bound,
	}
}

// Bound returns the idle-state frame limit.
func (l *Lookback) Bound() int { return l.bound }

// Len returns the number of buffered frames.
func (l *Lookback) Len() int { return len(l.frames) }

// Append adds f at the tail.
func (l *Lookback) Append(f audio.Frame) {
	l.frames = append(l.frames, f)
}

// Trim evicts the oldest frames until Len() <= Bound() and returns the number
// evicted.
func (l *Lookback) Trim() int {
	excess := len(l.frames) - l.bound
	if excess <= 0 {
		return 0
	}
	n := copy(l.frames, l.frames[excess:])
	clear(l.frames[n:])
	l.frames = l.frames[:n]
	return excess
}

// Frames returns the buffered frames, oldest first. The slice aliases the
// buffer and is only valid until the next mutation.
func (l *Lookback) Frames() []audio.Frame { return l.frames }

// Take hands the buffered frames to the caller and leaves the buffer empty.
// The returned slice is not aliased by the buffer.
func (l *Lookback) Take() []audio.Frame {
	out := l.frames
	l.frames = make([]audio.Frame, 0, l.bound+1)
	return out
}

// Clear drops all buffered frames.
func (l *Lookback) Clear() {
	clear(l.frames)
	l.frames = l.frames[:0]
}
