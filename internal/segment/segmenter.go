package segment

import "github.com/MrWong99/voxseg/pkg/audio"

// State is the segmentation state.
type State int

const (
	// StateIdle means no speech segment is in progress; frames feed the
	// bounded lookback window.
	StateIdle State = iota

	// StateSpeaking means a speech segment is being accumulated.
	StateSpeaking
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Utterance is a completed run of frames handed over on flush.
type Utterance struct {
	// Frames are the lookback frames followed by the speech frames and the
	// terminating silent frame, oldest first.
	Frames []audio.Frame

	// LookbackFrames is how many frames of pre-speech context preceded the
	// first speech frame.
	LookbackFrames int
}

// Segmenter is the per-frame state machine.
//
//	Idle     + silence -> append, trim to bound          -> Idle
//	Idle     + speech  -> append (segment start)         -> Speaking
//	Speaking + speech  -> append                         -> Speaking
//	Speaking + silence -> append, flush, clear           -> Idle
//
// No minimum segment duration is enforced here; a single speech frame
// followed by silence flushes a short segment. Debouncing is the classifier's
// job. Not safe for concurrent use.
type Segmenter struct {
	buf           *Lookback
	state         State
	onsetLookback int
}

// NewSegmenter returns an idle segmenter retaining up to lookbackBound frames
// of context while idle.
func NewSegmenter(lookbackBound int) *Segmenter {
	return &Segmenter{buf: NewLookback(lookbackBound)}
}

// State returns the current state.
func (s *Segmenter) State() State { return s.state }

// Buffered returns the number of frames currently held.
func (s *Segmenter) Buffered() int { return s.buf.Len() }

// LookbackBound returns the idle-state frame limit.
func (s *Segmenter) LookbackBound() int { return s.buf.Bound() }

// Push feeds one classified frame. It returns the completed utterance and
// true when the frame ends a speech segment.
func (s *Segmenter) Push(f audio.Frame, speech bool) (Utterance, bool) {
	switch s.state {
	case StateIdle:
		if !speech {
			s.buf.Append(f)
			s.buf.Trim()
			return Utterance{}, false
		}
		s.onsetLookback = s.buf.Len()
		s.buf.Append(f)
		s.state = StateSpeaking
		return Utterance{}, false

	default:
		s.buf.Append(f)
		if speech {
			return Utterance{}, false
		}
		return s.take(), true
	}
}

// Flush forces out the segment in progress, if any. It returns false when
// the segmenter is idle; the lookback context is kept in that case.
func (s *Segmenter) Flush() (Utterance, bool) {
	if s.state != StateSpeaking {
		return Utterance{}, false
	}
	return s.take(), true
}

// Reset discards all buffered frames and returns to idle.
func (s *Segmenter) Reset() {
	s.buf.Clear()
	s.state = StateIdle
	s.onsetLookback = 0
}

func (s *Segmenter) take() Utterance {
	u := Utterance{Frames: s.buf.Take(), LookbackFrames: s.onsetLookback}
	s.state = StateIdle
	s.onsetLookback = 0
	return u
}
