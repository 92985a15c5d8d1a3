// Package energy implements a pure-Go [vad.Engine] based on RMS energy with
// hysteresis. It needs no model file and is the default classifier.
//
// A session enters speech after the frame level has stayed at or above the
// speech threshold for MinSpeechDurationMs, and leaves it after the level has
// stayed below the silence threshold for MinSilenceDurationMs. Levels between
// the two thresholds keep the current state.
package energy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voxseg/pkg/audio"
	"github.com/MrWong99/voxseg/pkg/provider/vad"
)

// Compile-time assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)

// Thresholds are RMS levels on the [-1, 1] float sample scale.
type Thresholds struct {
	Speech  float64
	Silence float64
}

// modeThresholds maps each sensitivity mode to its RMS levels.
var modeThresholds = map[vad.Mode]Thresholds{
	vad.ModeNormal:         {Speech: 0.015, Silence: 0.008},
	vad.ModeAggressive:     {Speech: 0.025, Silence: 0.012},
	vad.ModeVeryAggressive: {Speech: 0.04, Silence: 0.02},
}

// Engine creates energy-based VAD sessions. It is stateless and safe for
// concurrent use.
type Engine struct {
	override *Thresholds
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithThresholds replaces the per-mode RMS levels with fixed values.
func WithThresholds(speech, silence float64) Option {
	return func(e *Engine) {
		e.override = &Thresholds{Speech: speech, Silence: silence}
	}
}

// New returns an energy VAD engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	if t := e.override; t != nil {
		if t.Speech <= 0 || t.Silence <= 0 {
			return nil, errors.New("energy: thresholds must be positive")
		}
		if t.Silence > t.Speech {
			return nil, fmt.Errorf("energy: silence threshold %.4f exceeds speech threshold %.4f", t.Silence, t.Speech)
		}
	}
	return e, nil
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	th := modeThresholds[cfg.Mode]
	if e.override != nil {
		th = *e.override
	}
	return &Session{
		frameSize:     cfg.FrameSize,
		thresholds:    th,
		speechFrames:  cfg.FramesFor(cfg.MinSpeechDurationMs),
		silenceFrames: cfg.FramesFor(cfg.MinSilenceDurationMs),
	}, nil
}

// Session is one hysteresis state machine over per-frame RMS levels.
type Session struct {
	frameSize     int
	thresholds    Thresholds
	speechFrames  int
	silenceFrames int

	mu           sync.Mutex
	closed       bool
	inSpeech     bool
	speechCount  int
	silenceCount int
}

// IsSpeech implements [vad.SessionHandle].
func (s *Session) IsSpeech(frame []float32) (bool, error) {
	if len(frame) != s.frameSize {
		return false, fmt.Errorf("energy: frame has %d samples, want %d", len(frame), s.frameSize)
	}
	level := audio.RMS(frame)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errors.New("energy: session closed")
	}

	if s.inSpeech {
		if level < s.thresholds.Silence {
			s.silenceCount++
			if s.silenceCount >= s.silenceFrames {
				s.inSpeech = false
				s.silenceCount = 0
			}
		} else {
			s.silenceCount = 0
		}
	} else {
		if level >= s.thresholds.Speech {
			s.speechCount++
			if s.speechCount >= s.speechFrames {
				s.inSpeech = true
				s.speechCount = 0
			}
		} else {
			s.speechCount = 0
		}
	}
	return s.inSpeech, nil
}

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}

// Close implements [vad.SessionHandle].
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
