package audio

import (
	"errors"
	"io"
)

// ReaderSource is a finite [Source] that replays raw little-endian float32
// samples from an io.Reader, e.g. a recording captured with the diagnostic
// dump. It returns io.EOF once the reader is exhausted; a trailing partial
// sample is dropped.
type ReaderSource struct {
	r       io.Reader
	closer  io.Closer
	scratch []byte
	carry   []byte
}

// NewReaderSource wraps r. If r also implements io.Closer, Close closes it.
func NewReaderSource(r io.Reader) *ReaderSource {
	s := &ReaderSource{r: r}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Read implements [Source].
func (s *ReaderSource) Read(buf []float32) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	want := len(buf) * BytesPerSample
	if cap(s.scratch) < want {
		s.scratch = make([]byte, want)
	}
	b := s.scratch[:want]
	n := copy(b, s.carry)
	s.carry = s.carry[:0]

	m, err := io.ReadAtLeast(s.r, b[n:], BytesPerSample-n%BytesPerSample)
	n += m
	whole := n - n%BytesPerSample
	s.carry = append(s.carry, b[whole:n]...)

	samples := DecodeFloat32LE(b[:whole])
	copy(buf, samples)

	switch {
	case err == nil:
		return len(samples), nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if len(samples) > 0 {
			return len(samples), nil
		}
		return 0, io.EOF
	default:
		return len(samples), err
	}
}

// Close closes the underlying reader when it is closable.
func (s *ReaderSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
