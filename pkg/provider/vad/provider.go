// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (e.g., an RMS energy gate,
// Silero VAD, or WebRTC VAD) and surfaces it as a stateful, per-stream
// session. Each session maintains its own internal state (hysteresis counters,
// smoothing history) so that multiple capture streams can be classified
// independently.
//
// IsSpeech is synchronous and returns a decision for every frame; the
// segmentation loop calls it once per frame read from the device.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import (
	"errors"
	"fmt"
)

// Config holds the parameters for a VAD session. It mirrors the construction
// parameters of the speech classifier: sample rate, frame size, sensitivity
// mode and the minimum durations used to suppress spurious toggles.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to IsSpeech. The segmentation pipeline uses 16000.
	SampleRate int

	// FrameSize is the number of samples per frame. IsSpeech returns an error
	// if the supplied frame has a different length.
	FrameSize int

	// Mode selects the sensitivity of the detector.
	Mode Mode

	// MinSilenceDurationMs is how long the input must stay below the silence
	// criterion before an active speech run is reported as ended.
	MinSilenceDurationMs int

	// MinSpeechDurationMs is how long the input must stay above the speech
	// criterion before speech is reported.
	MinSpeechDurationMs int
}

// Validate reports whether c is usable.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("vad: frame size must be positive, got %d", c.FrameSize))
	}
	if !c.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("vad: invalid mode %d", c.Mode))
	}
	if c.MinSilenceDurationMs < 0 || c.MinSpeechDurationMs < 0 {
		errs = append(errs, errors.New("vad: minimum durations must not be negative"))
	}
	return errors.Join(errs...)
}

// FramesFor converts a duration in milliseconds to a whole number of frames,
// rounding up. A zero duration yields one frame.
func (c Config) FramesFor(ms int) int {
	if c.SampleRate <= 0 || c.FrameSize <= 0 {
		return 1
	}
	samples := ms * c.SampleRate / 1000
	n := (samples + c.FrameSize - 1) / c.FrameSize
	return max(n, 1)
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live engine. Reset clears detection state without closing the
// session.
type SessionHandle interface {
	// IsSpeech classifies a single frame. The frame must contain exactly
	// Config.FrameSize samples at Config.SampleRate. Returns an error if the
	// frame size is wrong or the engine fails internally.
	//
	// This method is called synchronously in the segmentation loop; it must
	// not block.
	IsSpeech(frame []float32) (bool, error)

	// Reset clears accumulated detection state (hysteresis counters) without
	// closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration. The
	// session is immediately ready to accept frames.
	//
	// Returns an error if the configuration is invalid or the engine cannot
	// allocate resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
