// Package observe provides application-wide observability primitives for
// voxseg: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus via [InitProvider]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxseg metrics.
const meterName = "github.com/MrWong99/voxseg"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Segmentation pipeline ---

	// FramesProcessed counts classified frames. Use with attribute:
	//   attribute.Bool("speech", ...)
	FramesProcessed metric.Int64Counter

	// SegmentsEmitted counts tensors handed to consumers. Use with attribute:
	//   attribute.String("reason", "silence"|"finalize")
	SegmentsEmitted metric.Int64Counter

	// SegmentDuration records the audio length of emitted segments.
	SegmentDuration metric.Float64Histogram

	// AssembleDuration tracks the wall-clock cost of a flush: diagnostics
	// hand-off plus tensor assembly.
	AssembleDuration metric.Float64Histogram

	// CapacityOverflows counts segments that exceeded the assembler cap.
	// Use with attribute:
	//   attribute.String("policy", ...)
	CapacityOverflows metric.Int64Counter

	// --- Error counters ---

	// DeviceErrors counts fatal capture failures.
	DeviceErrors metric.Int64Counter

	// DiagnosticErrors counts failed debug WAV writes.
	DiagnosticErrors metric.Int64Counter

	// DiagnosticSuperseded counts parked debug WAV writes replaced by a newer
	// flush before they ran.
	DiagnosticSuperseded metric.Int64Counter

	// JournalErrors counts failed segment journal appends.
	JournalErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks running segmentation streams.
	ActiveStreams metric.Int64UpDownCounter

	// FeedClients tracks connected websocket segment feed subscribers.
	FeedClients metric.Int64UpDownCounter

	// FeedDropped counts segments not delivered to a slow feed client.
	FeedDropped metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for the
// flush path, which runs once per utterance and should stay well under a
// frame duration.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// segmentBuckets defines histogram bucket boundaries (in seconds) for
// utterance length, up to the default 30 s cap.
var segmentBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SegmentDuration, err = m.Float64Histogram("voxseg.segment.duration",
		metric.WithDescription("Audio length of emitted speech segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(segmentBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AssembleDuration, err = m.Float64Histogram("voxseg.segment.assemble.duration",
		metric.WithDescription("Latency of flushing a segment into a tensor."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("voxseg.frames.processed",
		metric.WithDescription("Total classified frames by speech decision."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsEmitted, err = m.Int64Counter("voxseg.segments.emitted",
		metric.WithDescription("Total speech segments emitted by flush reason."),
	); err != nil {
		return nil, err
	}
	if met.CapacityOverflows, err = m.Int64Counter("voxseg.segment.overflows",
		metric.WithDescription("Total segments that exceeded the assembler capacity, by policy."),
	); err != nil {
		return nil, err
	}
	if met.FeedDropped, err = m.Int64Counter("voxseg.feed.dropped",
		metric.WithDescription("Total segments not delivered to a slow feed client."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.DeviceErrors, err = m.Int64Counter("voxseg.device.errors",
		metric.WithDescription("Total fatal audio capture errors."),
	); err != nil {
		return nil, err
	}
	if met.DiagnosticErrors, err = m.Int64Counter("voxseg.diagnostics.errors",
		metric.WithDescription("Total failed diagnostic WAV writes."),
	); err != nil {
		return nil, err
	}
	if met.DiagnosticSuperseded, err = m.Int64Counter("voxseg.diagnostics.superseded",
		metric.WithDescription("Total pending diagnostic WAV writes replaced by a newer flush."),
	); err != nil {
		return nil, err
	}
	if met.JournalErrors, err = m.Int64Counter("voxseg.journal.errors",
		metric.WithDescription("Total failed segment journal appends."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("voxseg.active_streams",
		metric.WithDescription("Number of running segmentation streams."),
	); err != nil {
		return nil, err
	}
	if met.FeedClients, err = m.Int64UpDownCounter("voxseg.feed.clients",
		metric.WithDescription("Number of connected segment feed subscribers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxseg.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame records one classified frame.
func (m *Metrics) RecordFrame(ctx context.Context, speech bool) {
	m.FramesProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("speech", speech)),
	)
}

// RecordSegment records an emitted segment of the given audio length.
func (m *Metrics) RecordSegment(ctx context.Context, reason string, audioLen time.Duration) {
	m.SegmentsEmitted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
	m.SegmentDuration.Record(ctx, audioLen.Seconds())
}

// RecordOverflow records a segment that exceeded the assembler capacity and
// the policy that handled it.
func (m *Metrics) RecordOverflow(ctx context.Context, policy string) {
	m.CapacityOverflows.Add(ctx, 1,
		metric.WithAttributes(attribute.String("policy", policy)),
	)
}
