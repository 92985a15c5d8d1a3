package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// FrameReader assembles fixed-size frames from a [Source]. It is not safe for
// concurrent use; the segmentation loop owns it.
type FrameReader struct {
	src  Source
	size int
}

// NewFrameReader returns a reader producing frames of frameSize samples.
func NewFrameReader(src Source, frameSize int) (*FrameReader, error) {
	if src == nil {
		return nil, errors.New("audio: frame reader requires a source")
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("audio: frame size must be positive, got %d", frameSize)
	}
	return &FrameReader{src: src, size: frameSize}, nil
}

// FrameSize returns the number of samples in each frame.
func (r *FrameReader) FrameSize() int { return r.size }

// ReadFrame blocks until a full frame has been read.
//
// Partial reads continue filling the remaining positions of the same buffer.
// ctx is checked before the first read and after every partial read; if it is
// done, the half-filled frame is discarded and [ErrCancelled] is returned.
// A device failure is returned as *[DeviceError]. When a finite source is
// exhausted, io.EOF is returned and any partial frame is discarded.
func (r *FrameReader) ReadFrame(ctx context.Context) (Frame, error) {
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	buf := make(Frame, r.size)
	filled := 0
	for filled < r.size {
		n, err := r.src.Read(buf[filled:])
		if n < 0 {
			return nil, &DeviceError{Err: fmt.Errorf("negative read count %d", n)}
		}
		filled += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, &DeviceError{Err: err}
		}
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
	}
	return buf, nil
}
