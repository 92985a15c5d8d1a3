package config

import (
	"github.com/MrWong99/voxseg/internal/segment"
	"github.com/MrWong99/voxseg/pkg/audio"
	"github.com/MrWong99/voxseg/pkg/provider/vad"
)

// Format returns the capture frame format.
func (c *Config) Format() audio.Format {
	return audio.Format{SampleRate: c.Capture.SampleRate, FrameSize: c.Capture.FrameSize}
}

// SessionConfig returns the classifier session parameters. An invalid mode
// falls back to normal; [Validate] rejects it before this is reached.
func (c *Config) SessionConfig() vad.Config {
	mode, err := vad.ParseMode(c.VAD.Mode)
	if err != nil {
		mode = vad.ModeNormal
	}
	return vad.Config{
		SampleRate:           c.Capture.SampleRate,
		FrameSize:            c.Capture.FrameSize,
		Mode:                 mode,
		MinSilenceDurationMs: c.VAD.MinSilenceDurationMs,
		MinSpeechDurationMs:  c.VAD.MinSpeechDurationMs,
	}
}

// StreamConfig returns the segmentation stream parameters.
func (c *Config) StreamConfig() segment.Config {
	policy, err := segment.ParseOverflowPolicy(c.Segmenter.Overflow)
	if err != nil {
		policy = segment.OverflowSplit
	}
	lookback := c.Segmenter.LookbackMs
	if lookback == 0 {
		lookback = segment.NoLookback
	}
	return segment.Config{
		Format:             c.Format(),
		LookbackMs:         lookback,
		MaxDurationSeconds: c.Segmenter.MaxDurationSeconds,
		Overflow:           policy,
	}
}
