package audio

import (
	"encoding/binary"
	"math"
)

// BytesPerSample is the size of one float32 sample on the wire.
const BytesPerSample = 4

// AppendFloat32LE appends samples to dst as consecutive little-endian IEEE-754
// float32 values and returns the extended slice.
func AppendFloat32LE(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return dst
}

// EncodeFrames serialises frames back to back as little-endian float32 bytes.
func EncodeFrames(frames []Frame) []byte {
	out := make([]byte, 0, TotalSamples(frames)*BytesPerSample)
	for _, f := range frames {
		out = AppendFloat32LE(out, f)
	}
	return out
}

// DecodeFloat32LE parses little-endian float32 samples from b. Trailing bytes
// that do not form a whole sample are ignored. The conversion is bit-exact,
// including NaN payloads.
func DecodeFloat32LE(b []byte) []float32 {
	n := len(b) / BytesPerSample
	out := make([]float32, n)
	for i := range n {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*BytesPerSample:]))
	}
	return out
}

// Int16ToFloat32 converts 16-bit signed little-endian PCM to float32 samples
// normalised to [-1.0, 1.0]. Any trailing odd byte is ignored.
func Int16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// RMS returns the root-mean-square level of samples, or 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
