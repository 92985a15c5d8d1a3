// Package diag dumps flushed speech segments to WAV files for offline
// inspection.
//
// Writes are fire-and-forget: [Writer.WriteSegment] never blocks the
// segmentation loop and never reports an error to it. At most one write is in
// flight. A flush that arrives meanwhile is parked in a single pending slot
// and written as soon as the current file is done; a newer flush replaces a
// parked one, and the replacement is counted.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxseg/internal/observe"
	"github.com/MrWong99/voxseg/pkg/audio"
)

// LatestName is the file overwritten on every flush when KeepAll is off.
const LatestName = "debug.wav"

// Config holds the writer settings.
type Config struct {
	// Dir receives the WAV files. Created on [New] if missing.
	Dir string

	// KeepAll writes segment-NNNNNN.wav per flush instead of overwriting
	// [LatestName].
	KeepAll bool

	// SampleRate goes into the WAV header.
	SampleRate int

	// Enabled is the initial state of the runtime toggle.
	Enabled bool
}

// Option is a functional option for [New].
type Option func(*Writer)

// WithMetrics overrides the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// Writer writes one WAV file per flushed segment in the background. It
// satisfies segment.DiagnosticSink.
type Writer struct {
	dir        string
	keepAll    bool
	sampleRate int
	enabled    atomic.Bool
	written    atomic.Int64
	superseded atomic.Int64

	mu      sync.Mutex
	busy    bool
	pending *job

	g       errgroup.Group
	metrics *observe.Metrics

	// writeFile is w.write outside of tests.
	writeFile func(path string, frames []audio.Frame) error
}

type job struct {
	seq    uint64
	frames []audio.Frame
}

// New prepares the output directory and returns a writer.
func New(cfg Config, opts ...Option) (*Writer, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("diag: output directory must not be empty")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("diag: create %s: %w", cfg.Dir, err)
	}
	w := &Writer{
		dir:        cfg.Dir,
		keepAll:    cfg.KeepAll,
		sampleRate: cfg.SampleRate,
	}
	w.writeFile = w.write
	w.enabled.Store(cfg.Enabled)
	for _, o := range opts {
		o(w)
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}
	return w, nil
}

// SetEnabled switches writing on or off at runtime.
func (w *Writer) SetEnabled(on bool) { w.enabled.Store(on) }

// Enabled reports whether writes are currently performed.
func (w *Writer) Enabled() bool { return w.enabled.Load() }

// Written returns the number of files successfully written.
func (w *Writer) Written() int64 { return w.written.Load() }

// Superseded returns the number of parked flushes replaced by a newer one
// before they could be written.
func (w *Writer) Superseded() int64 { return w.superseded.Load() }

// Path returns the file a segment with the given sequence number is
// written to.
func (w *Writer) Path(seq uint64) string {
	if w.keepAll {
		return filepath.Join(w.dir, fmt.Sprintf("segment-%06d.wav", seq))
	}
	return filepath.Join(w.dir, LatestName)
}

// WriteSegment schedules frames to be written. It returns immediately.
func (w *Writer) WriteSegment(seq uint64, frames []audio.Frame) {
	if !w.enabled.Load() {
		return
	}
	next := &job{seq: seq, frames: frames}

	w.mu.Lock()
	if w.busy {
		if w.pending != nil {
			w.superseded.Add(1)
			w.metrics.DiagnosticSuperseded.Add(context.Background(), 1)
			slog.Debug("diagnostic wav superseded before write", "seq", w.pending.seq, "by", seq)
		}
		w.pending = next
		w.mu.Unlock()
		return
	}
	w.busy = true
	w.mu.Unlock()

	w.g.Go(func() error {
		w.drain(next)
		return nil
	})
}

// drain writes j and then any job parked while it ran, until the slot is
// empty.
func (w *Writer) drain(j *job) {
	for {
		if err := w.writeFile(w.Path(j.seq), j.frames); err != nil {
			w.metrics.DiagnosticErrors.Add(context.Background(), 1)
			slog.Warn("diagnostic wav write failed", "seq", j.seq, "err", err)
		} else {
			w.written.Add(1)
		}

		w.mu.Lock()
		j = w.pending
		w.pending = nil
		if j == nil {
			w.busy = false
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()
	}
}

// Wait blocks until the in-flight write and any parked one complete.
func (w *Writer) Wait() {
	_ = w.g.Wait()
}

// write encodes to a temp file in the target directory and renames it into
// place so readers never observe a half-written file.
func (w *Writer) write(path string, frames []audio.Frame) error {
	tmp, err := os.CreateTemp(w.dir, ".voxseg-*.wav")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteWAV(tmp, frames, w.sampleRate); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
