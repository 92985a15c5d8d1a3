// Package tensor describes the audio tensors handed to a downstream
// transcription model and parses pre-recorded PCM into the same format.
//
// An [AudioTensor] is a row-major float32 tensor of shape [1, N]. Once
// returned to a caller, the tensor is owned by that caller; producers keep no
// reference to Data.
package tensor

import (
	"time"

	"github.com/MrWong99/voxseg/pkg/audio"
)

// DefaultMaxDurationSeconds is the longest utterance a tensor may hold.
const DefaultMaxDurationSeconds = 30

// DefaultMaxSamples is the sample cap at the default duration and rate
// (30 s × 16 kHz = 480 000).
const DefaultMaxSamples = DefaultMaxDurationSeconds * audio.DefaultSampleRate

// AudioTensor is a [1, N] float32 tensor of mono samples.
type AudioTensor struct {
	// Shape is always {1, len(Data)}.
	Shape [2]int64

	// Data holds the samples in order.
	Data []float32
}

// New wraps samples in a [1, len(samples)] tensor without copying.
func New(samples []float32) *AudioTensor {
	return &AudioTensor{
		Shape: [2]int64{1, int64(len(samples))},
		Data:  samples,
	}
}

// Samples returns N, the number of samples in the tensor.
func (t *AudioTensor) Samples() int { return len(t.Data) }

// Duration returns the audio length at the given sample rate.
func (t *AudioTensor) Duration(sampleRate int) time.Duration {
	return audio.Format{SampleRate: sampleRate}.SamplesDuration(len(t.Data))
}

// Bytes serialises the samples as little-endian float32.
func (t *AudioTensor) Bytes() []byte {
	return audio.AppendFloat32LE(make([]byte, 0, len(t.Data)*audio.BytesPerSample), t.Data)
}

// MaxSamples returns the sample cap for a maximum duration at a sample rate.
func MaxSamples(maxDurationSeconds, sampleRate int) int {
	return maxDurationSeconds * sampleRate
}
