// Package portaudio provides a live microphone [audio.Source] backed by the
// PortAudio blocking stream API.
//
// The PortAudio shared library must be available at link time (CGO). One
// Source owns one input stream; Initialize/Terminate are reference counted by
// PortAudio itself, so several Sources may coexist.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voxseg/pkg/audio"
)

// Compile-time assertion that Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// Config selects the capture device and stream geometry.
type Config struct {
	// Device is the PortAudio device name. Empty selects the default input.
	Device string

	// SampleRate in Hz. Defaults to 16000.
	SampleRate int

	// FramesPerBuffer is the number of samples PortAudio delivers per blocking
	// read. Defaults to [audio.DefaultFrameSize] so that one driver read
	// normally completes one classifier frame.
	FramesPerBuffer int
}

// Source reads mono float32 samples from a PortAudio input stream.
type Source struct {
	stream *portaudio.Stream
	buf    []float32

	// pending is the unread tail of buf from the last driver read.
	pending []float32

	closeOnce sync.Once
	closeErr  error
}

// Open initialises PortAudio, opens an input stream on the configured device
// and starts it. The caller must call Close.
func Open(cfg Config) (*Source, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = audio.DefaultFrameSize
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	s := &Source{buf: make([]float32, cfg.FramesPerBuffer)}
	stream, err := openStream(cfg, s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}
	s.stream = stream

	slog.Info("portaudio capture started",
		"device", deviceLabel(cfg.Device),
		"sample_rate", cfg.SampleRate,
		"frames_per_buffer", cfg.FramesPerBuffer,
	)
	return s, nil
}

func openStream(cfg Config, buf []float32) (*portaudio.Stream, error) {
	if cfg.Device == "" {
		stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), len(buf), buf)
		if err != nil {
			return nil, fmt.Errorf("portaudio: open default stream: %w", err)
		}
		return stream, nil
	}

	dev, err := findInputDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.Output.Channels = 0
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = len(buf)

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open stream on %q: %w", cfg.Device, err)
	}
	return stream, nil
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("portaudio: no input device named %q", name)
}

// Read implements [audio.Source]. It blocks on the driver only when no
// samples from the previous driver read remain.
func (s *Source) Read(p []float32) (int, error) {
	if len(s.pending) == 0 {
		err := s.stream.Read()
		if errors.Is(err, portaudio.InputOverflowed) {
			// Samples were dropped by the driver; the buffer content is
			// still valid audio.
			slog.Debug("portaudio input overflowed")
		} else if err != nil {
			return 0, err
		}
		s.pending = s.buf
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close stops the stream and releases PortAudio. It is safe to call more
// than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: stop: %w", err))
		}
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: close: %w", err))
		}
		if err := portaudio.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func deviceLabel(name string) string {
	if name == "" {
		return "(default)"
	}
	return name
}
