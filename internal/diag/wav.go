package diag

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/voxseg/pkg/audio"
)

const (
	// HeaderSize is the length of the canonical RIFF/WAVE header.
	HeaderSize = 44

	// formatIEEEFloat is the WAVE_FORMAT_IEEE_FLOAT format tag.
	formatIEEEFloat = 3

	bitsPerSample = 32
	numChannels   = 1
)

// wavHeader is the 44-byte canonical header, written little-endian.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16
	AudioFormat   uint16  // 3 for IEEE float
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // sample bytes
}

func newHeader(samples, sampleRate int) wavHeader {
	dataSize := uint32(samples * audio.BytesPerSample)
	return wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     HeaderSize - 8 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   formatIEEEFloat,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * numChannels * bitsPerSample / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// WriteWAV writes frames as a mono 32-bit float WAV stream to w.
func WriteWAV(w io.Writer, frames []audio.Frame, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("diag: sample rate must be positive, got %d", sampleRate)
	}
	if err := binary.Write(w, binary.LittleEndian, newHeader(audio.TotalSamples(frames), sampleRate)); err != nil {
		return fmt.Errorf("diag: write wav header: %w", err)
	}
	if _, err := w.Write(audio.EncodeFrames(frames)); err != nil {
		return fmt.Errorf("diag: write wav data: %w", err)
	}
	return nil
}

// EncodeWAV returns frames as an in-memory WAV file.
func EncodeWAV(frames []audio.Frame, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + audio.TotalSamples(frames)*audio.BytesPerSample)
	if err := WriteWAV(&buf, frames, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeWAV parses a WAV file produced by [EncodeWAV] and returns its samples
// and sample rate. Only the canonical 44-byte mono float32 layout is
// accepted.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) < HeaderSize {
		return nil, 0, fmt.Errorf("diag: wav data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}
	var h wavHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, 0, fmt.Errorf("diag: read wav header: %w", err)
	}
	if string(h.ChunkID[:]) != "RIFF" || string(h.Format[:]) != "WAVE" || string(h.Subchunk2ID[:]) != "data" {
		return nil, 0, errors.New("diag: not a canonical RIFF/WAVE file")
	}
	if h.AudioFormat != formatIEEEFloat || h.NumChannels != numChannels || h.BitsPerSample != bitsPerSample {
		return nil, 0, fmt.Errorf("diag: unsupported wav format tag=%d channels=%d bits=%d", h.AudioFormat, h.NumChannels, h.BitsPerSample)
	}
	body := data[HeaderSize:]
	if int(h.Subchunk2Size) < len(body) {
		body = body[:h.Subchunk2Size]
	}
	return audio.DecodeFloat32LE(body), int(h.SampleRate), nil
}
