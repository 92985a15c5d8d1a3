// Package segment turns a continuous frame stream into discrete speech
// segments.
//
// A [Stream] pulls fixed-size frames from an [audio.Source], classifies each
// with a [vad.SessionHandle], keeps a bounded lookback window of pre-speech
// context, and on the first silent frame after speech assembles everything
// buffered into one [tensor.AudioTensor]. Consumers iterate with
// [Stream.Next] or [Stream.All].
package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxseg/internal/observe"
	"github.com/MrWong99/voxseg/pkg/audio"
	"github.com/MrWong99/voxseg/pkg/provider/vad"
	"github.com/MrWong99/voxseg/pkg/tensor"
)

// Flush reasons reported in metrics and on [Segment].
const (
	ReasonSilence  = "silence"
	ReasonFinalize = "finalize"
)

// DiagnosticSink receives a copy of every flushed segment before assembly.
// Implementations must not block and must not fail the flush; errors are
// theirs to log.
type DiagnosticSink interface {
	WriteSegment(seq uint64, frames []audio.Frame)
}

// Segment is one emitted speech segment.
type Segment struct {
	// Tensor holds the samples as a [1, N] float32 tensor.
	Tensor *tensor.AudioTensor

	// Seq numbers flushes from 1 per stream. Parts of a split segment share
	// the same Seq.
	Seq uint64

	// Part is the 1-based index of this tensor within a split segment and
	// Parts the total; both are 1 when no split occurred.
	Part, Parts int

	// Frames is the number of frames copied into Tensor.
	Frames int

	// LookbackFrames is the count of pre-speech context frames at the head of
	// the segment (first part only).
	LookbackFrames int

	// Start is the stream offset of the first sample.
	Start time.Duration

	// Duration is the audio length of Tensor.
	Duration time.Duration

	// Truncated is set when frames were discarded under [OverflowTruncate].
	Truncated bool

	// Reason is [ReasonSilence] or [ReasonFinalize].
	Reason string
}

// DefaultLookbackMs is the pre-speech context window used when
// [Config.LookbackMs] is zero.
const DefaultLookbackMs = 400

// NoLookback is a [Config.LookbackMs] value that disables pre-speech context.
const NoLookback = -1

// Config parameterises a [Stream].
type Config struct {
	// Format is the frame size and sample rate. Zero fields take
	// [audio.DefaultFormat] values.
	Format audio.Format

	// LookbackMs is the pre-speech context window. Default: 400. Use
	// [NoLookback] to keep no pre-speech context.
	LookbackMs int

	// LookbackFrames overrides the frame bound derived from LookbackMs when
	// positive.
	LookbackFrames int

	// MaxDurationSeconds caps the assembled segment length. Default: 30.
	MaxDurationSeconds int

	// Overflow handles segments over the cap. Default: [OverflowSplit].
	Overflow OverflowPolicy
}

func (c *Config) applyDefaults() {
	def := audio.DefaultFormat()
	if c.Format.SampleRate <= 0 {
		c.Format.SampleRate = def.SampleRate
	}
	if c.Format.FrameSize <= 0 {
		c.Format.FrameSize = def.FrameSize
	}
	if c.LookbackMs == 0 && c.LookbackFrames <= 0 {
		c.LookbackMs = DefaultLookbackMs
	}
	if c.MaxDurationSeconds <= 0 {
		c.MaxDurationSeconds = tensor.DefaultMaxDurationSeconds
	}
	if c.Overflow == "" {
		c.Overflow = OverflowSplit
	}
}

// Option is a functional option for [NewStream].
type Option func(*Stream)

// WithDiagnostics installs a sink that sees every flushed segment.
func WithDiagnostics(sink DiagnosticSink) Option {
	return func(s *Stream) { s.diag = sink }
}

// WithMetrics overrides the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Stream) { s.metrics = m }
}

// WithLogger overrides the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) { s.log = l }
}

// Stream is a pull-based segment producer. It is owned by one consumer
// goroutine; none of its methods are safe for concurrent use.
type Stream struct {
	reader  *audio.FrameReader
	vad     vad.SessionHandle
	seg     *Segmenter
	asm     *Assembler
	cfg     Config
	diag    DiagnosticSink
	metrics *observe.Metrics
	log     *slog.Logger

	pending    []*Segment
	framesRead int64
	seq        uint64
	err        error
	started    bool
	ended      bool
}

// NewStream wires src and the classifier session into a segment stream. The
// stream does not own src or sess; the caller closes them.
func NewStream(src audio.Source, sess vad.SessionHandle, cfg Config, opts ...Option) (*Stream, error) {
	if src == nil {
		return nil, errors.New("segment: source must not be nil")
	}
	if sess == nil {
		return nil, errors.New("segment: vad session must not be nil")
	}
	cfg.applyDefaults()
	if !cfg.Overflow.IsValid() {
		return nil, fmt.Errorf("segment: unknown overflow policy %q", cfg.Overflow)
	}

	reader, err := audio.NewFrameReader(src, cfg.Format.FrameSize)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	asm, err := NewAssembler(tensor.MaxSamples(cfg.MaxDurationSeconds, cfg.Format.SampleRate))
	if err != nil {
		return nil, err
	}

	bound := cfg.LookbackFrames
	if bound <= 0 {
		bound = LookbackFrames(cfg.LookbackMs, cfg.Format)
	}

	s := &Stream{
		reader: reader,
		vad:    sess,
		seg:    NewSegmenter(bound),
		asm:    asm,
		cfg:    cfg,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// State returns the segmenter state.
func (s *Stream) State() State { return s.seg.State() }

// Buffered returns the number of frames currently held.
func (s *Stream) Buffered() int { return s.seg.Buffered() }

// LookbackBound returns the idle-state frame limit in effect.
func (s *Stream) LookbackBound() int { return s.seg.LookbackBound() }

// FramesRead returns the number of complete frames consumed so far.
func (s *Stream) FramesRead() int64 { return s.framesRead }

// Next blocks until the next segment is ready and returns it.
//
// It returns io.EOF when ctx is cancelled or a finite source is exhausted; a
// segment still in progress at that point is left buffered and can be
// recovered with [Stream.Finalize]. A [*audio.DeviceError] or a classifier
// error is returned as is and ends the stream. Every later call returns the
// same terminal error.
func (s *Stream) Next(ctx context.Context) (*Segment, error) {
	if len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		return next, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	if !s.started {
		s.started = true
		s.metrics.ActiveStreams.Add(ctx, 1)
	}

	for {
		frame, err := s.reader.ReadFrame(ctx)
		switch {
		case err == nil:
		case errors.Is(err, audio.ErrCancelled), errors.Is(err, io.EOF):
			s.log.Debug("segment stream ended", "frames", s.framesRead, "state", s.seg.State(), "cause", err)
			return nil, s.end(ctx, io.EOF)
		default:
			var devErr *audio.DeviceError
			if errors.As(err, &devErr) {
				s.metrics.DeviceErrors.Add(ctx, 1)
			}
			s.log.Error("segment stream failed", "err", err, "frames", s.framesRead)
			return nil, s.end(ctx, err)
		}
		s.framesRead++

		speech, err := s.vad.IsSpeech(frame)
		if err != nil {
			return nil, s.end(ctx, fmt.Errorf("segment: classify frame %d: %w", s.framesRead, err))
		}
		s.metrics.RecordFrame(ctx, speech)

		utt, ok := s.seg.Push(frame, speech)
		if !ok {
			continue
		}
		segs := s.flush(ctx, utt, ReasonSilence)
		if len(segs) == 0 {
			continue
		}
		s.pending = segs[1:]
		return segs[0], nil
	}
}

// All adapts [Stream.Next] to a range-over-func iterator. Iteration stops
// cleanly on io.EOF; any other error is yielded once with a nil segment.
func (s *Stream) All(ctx context.Context) iter.Seq2[*Segment, error] {
	return func(yield func(*Segment, error) bool) {
		for {
			seg, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(seg, nil) {
				return
			}
		}
	}
}

// Finalize flushes a segment still in progress, for shutdown paths that
// prefer a short tail over losing it. It returns nil when the segmenter is
// idle. Segments from an earlier split that were not yet consumed through
// Next are returned first.
func (s *Stream) Finalize(ctx context.Context) []*Segment {
	out := s.pending
	s.pending = nil
	utt, ok := s.seg.Flush()
	if !ok {
		return out
	}
	return append(out, s.flush(ctx, utt, ReasonFinalize)...)
}

func (s *Stream) end(ctx context.Context, err error) error {
	s.err = err
	if s.started && !s.ended {
		s.ended = true
		s.metrics.ActiveStreams.Add(ctx, -1)
	}
	return err
}

// flush hands utt to the diagnostic sink, assembles it and applies the
// overflow policy. It returns no segments when the utterance was dropped.
func (s *Stream) flush(ctx context.Context, utt Utterance, reason string) []*Segment {
	ctx, span := observe.StartSpan(ctx, "segment.flush", trace.WithAttributes(
		attribute.Int("segment.frames", len(utt.Frames)),
		attribute.Int("segment.lookback_frames", utt.LookbackFrames),
		attribute.String("segment.reason", reason),
	))
	start := time.Now()
	s.seq++
	seq := s.seq

	total := audio.TotalSamples(utt.Frames)
	offset := s.cfg.Format.SamplesDuration(int(s.framesRead)*s.cfg.Format.FrameSize - total)

	observe.Logger(ctx).Debug("speech end",
		"seq", seq,
		"frames", len(utt.Frames),
		"lookback", utt.LookbackFrames,
		"duration", s.cfg.Format.SamplesDuration(total),
		"reason", reason,
	)

	if s.diag != nil {
		s.diag.WriteSegment(seq, utt.Frames)
	}

	groups, truncated, err := s.plan(ctx, utt.Frames)
	if err != nil {
		s.log.Warn("segment dropped", "seq", seq, "samples", total, "capacity", s.asm.Capacity(), "policy", s.cfg.Overflow, "err", err)
		span.SetAttributes(attribute.Bool("segment.dropped", true))
		observe.EndSpan(span, err)
		return nil
	}

	out := make([]*Segment, 0, len(groups))
	for i, g := range groups {
		t, err := s.asm.Assemble(g)
		if err != nil {
			// plan only yields groups that fit.
			observe.EndSpan(span, err)
			return out
		}
		seg := &Segment{
			Tensor:    t,
			Seq:       seq,
			Part:      i + 1,
			Parts:     len(groups),
			Frames:    len(g),
			Start:     offset,
			Duration:  s.cfg.Format.SamplesDuration(t.Samples()),
			Truncated: truncated,
			Reason:    reason,
		}
		if i == 0 {
			seg.LookbackFrames = utt.LookbackFrames
		}
		offset += seg.Duration
		s.metrics.RecordSegment(ctx, reason, seg.Duration)
		out = append(out, seg)
	}

	s.metrics.AssembleDuration.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("segment.parts", len(out)))
	observe.EndSpan(span, nil)
	return out
}

// plan partitions frames into assemble-ready groups according to the
// overflow policy. A nil error with no groups never happens.
func (s *Stream) plan(ctx context.Context, frames []audio.Frame) (groups [][]audio.Frame, truncated bool, err error) {
	if s.asm.Fit(frames) == len(frames) {
		return [][]audio.Frame{frames}, false, nil
	}
	s.metrics.RecordOverflow(ctx, string(s.cfg.Overflow))
	overflow := &CapacityError{Samples: audio.TotalSamples(frames), Capacity: s.asm.Capacity()}

	switch s.cfg.Overflow {
	case OverflowSplit:
		groups, err := s.asm.Split(frames)
		if err != nil {
			return nil, false, err
		}
		return groups, false, nil
	case OverflowTruncate:
		n := s.asm.Fit(frames)
		if n == 0 {
			return nil, false, overflow
		}
		return [][]audio.Frame{frames[:n]}, true, nil
	default:
		return nil, false, overflow
	}
}
