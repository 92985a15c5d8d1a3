package audio

import "time"

const (
	// DefaultSampleRate is the capture rate every component in the pipeline
	// assumes unless configured otherwise: 16 kHz mono float32.
	DefaultSampleRate = 16000

	// DefaultFrameSize is the number of samples per classifier window
	// (32 ms at 16 kHz).
	DefaultFrameSize = 512
)

// Frame is one fixed-length window of mono float32 samples. A Frame returned
// by [FrameReader.ReadFrame] is never written to again; callers may retain it
// without copying.
type Frame []float32

// Format describes the shape of a capture stream.
type Format struct {
	// SampleRate in Hz (16000 for the segmentation pipeline).
	SampleRate int

	// FrameSize is the number of samples per [Frame].
	FrameSize int
}

// DefaultFormat returns the 16 kHz / 512-sample format used by the classifier
// and the assembler.
func DefaultFormat() Format {
	return Format{SampleRate: DefaultSampleRate, FrameSize: DefaultFrameSize}
}

// FrameDuration returns the wall-clock length of one frame.
func (f Format) FrameDuration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.FrameSize) * time.Second / time.Duration(f.SampleRate)
}

// SamplesDuration converts a sample count into a duration at f.SampleRate.
func (f Format) SamplesDuration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(f.SampleRate)
}

// TotalSamples returns the number of samples held by frames.
func TotalSamples(frames []Frame) int {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	return n
}
