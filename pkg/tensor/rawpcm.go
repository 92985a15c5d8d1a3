package tensor

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/cpu"

	"github.com/MrWong99/voxseg/pkg/audio"
)

// ErrUnsupportedFormat is returned by [FromRawPCM] on hosts whose native byte
// order is not little-endian. No byte-swapping fallback is provided.
var ErrUnsupportedFormat = errors.New("tensor: raw PCM decoding requires a little-endian host")

// FromRawPCM interprets raw as consecutive little-endian float32 samples and
// returns them as a [1, N] tensor.
//
// The bytes are copied in native order, so the host must be little-endian;
// otherwise [ErrUnsupportedFormat] is returned. Trailing bytes that do not
// form a whole sample are ignored.
//
// Input longer than maxSamples is silently truncated to the first maxSamples
// samples. The segment assembler instead fails on overflow. maxSamples <= 0 selects
// [DefaultMaxSamples].
func FromRawPCM(raw []byte, maxSamples int) (*AudioTensor, error) {
	if cpu.IsBigEndian {
		return nil, ErrUnsupportedFormat
	}
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}

	n := min(len(raw)/audio.BytesPerSample, maxSamples)
	samples := make([]float32, n)
	if n > 0 {
		dst := unsafe.Slice((*byte)(unsafe.Pointer(&samples[0])), n*audio.BytesPerSample)
		copy(dst, raw)
	}
	return New(samples), nil
}
