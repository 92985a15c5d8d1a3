// Package audio defines the capture-side contracts of the segmentation
// pipeline.
//
// The two primary abstractions are:
//
//   - [Source]: a blocking, sample-oriented capture device (microphone,
//     file replay, test double).
//   - [FrameReader]: pulls fixed-size [Frame] values out of a Source,
//     retrying partial reads and honouring cooperative cancellation.
//
// Implementations of Source are provided by adapter packages (e.g.
// audio/portaudio) and by [ReaderSource] for file replay.
package audio

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by [FrameReader.ReadFrame] when the cancellation
// token was observed before a frame could be completed. It signals an orderly
// shutdown, not a failure.
var ErrCancelled = errors.New("audio: capture cancelled")

// Source is a mono float32 capture device opened at a fixed sample rate.
//
// Read blocks until at least one sample is available and copies up to
// len(buf) samples into buf, returning the number written. Returning fewer
// samples than requested is normal. A non-nil error other than io.EOF is a
// fatal device failure; io.EOF marks the end of a finite source.
//
// A Source is owned by a single reader goroutine. Close releases the device
// and may be called from any goroutine to abort a blocked Read.
type Source interface {
	Read(buf []float32) (int, error)
	Close() error
}

// DeviceError reports a fatal failure of the underlying capture device. It is
// never retried; it terminates the segment stream and is surfaced to the
// consumer.
type DeviceError struct {
	// Err is the error returned by the device.
	Err error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: device read failed: %v", e.Err)
}

// Unwrap returns the device error so callers can match it with errors.Is.
func (e *DeviceError) Unwrap() error { return e.Err }
