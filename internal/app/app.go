// Package app wires the voxseg subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run pulls segments from the capture stream until it ends,
// Handler exposes the HTTP surface, and Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithJournal,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxseg/internal/config"
	"github.com/MrWong99/voxseg/internal/diag"
	"github.com/MrWong99/voxseg/internal/health"
	"github.com/MrWong99/voxseg/internal/hub"
	"github.com/MrWong99/voxseg/internal/journal"
	"github.com/MrWong99/voxseg/internal/observe"
	"github.com/MrWong99/voxseg/internal/resilience"
	"github.com/MrWong99/voxseg/internal/segment"
	"github.com/MrWong99/voxseg/pkg/audio"
	"github.com/MrWong99/voxseg/pkg/provider/vad"
)

// Limits for GET /v1/segments/recent.
const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
)

// Providers holds the externally constructed components. Populated by
// main.go via the config registry.
type Providers struct {
	VAD     vad.Engine
	Capture audio.Source
}

// App owns all subsystem lifetimes and drives the segmentation loop.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler

	// Subsystems, initialised in New and torn down in Shutdown.
	session vad.SessionHandle
	stream  *segment.Stream
	diag    *diag.Writer
	journal journal.Store
	hub     *hub.Hub
	health  *health.Handler

	started atomic.Bool
	capture atomic.Int32 // captureState
	failure atomic.Pointer[error]
	done    chan struct{}

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// captureState is the lifecycle of the capture loop driven by Run.
type captureState int32

const (
	captureIdle captureState = iota
	captureRunning
	captureFinished
	captureFailed
)

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithJournal injects a journal store instead of creating one from config.
func WithJournal(s journal.Store) Option {
	return func(a *App) { a.journal = s }
}

// WithMetrics overrides the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler served on /metrics. Default:
// promhttp.Handler over the global Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// New creates an App by wiring all subsystems together. The providers come
// from main.go; both the classifier engine and the capture source are
// required.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.VAD == nil || providers.Capture == nil {
		return nil, errors.New("app: vad engine and capture source are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}
	a.closers = append(a.closers, providers.Capture.Close)

	// ── 1. Segment journal ──────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 2. Diagnostic dump ──────────────────────────────────────────────
	w, err := diag.New(diag.Config{
		Dir:        cfg.Diagnostics.Dir,
		KeepAll:    cfg.Diagnostics.KeepAll,
		SampleRate: cfg.Capture.SampleRate,
		Enabled:    cfg.Diagnostics.Enabled,
	}, diag.WithMetrics(a.metrics))
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init diagnostics: %w", err)
	}
	a.diag = w

	// ── 3. Classifier session + stream ──────────────────────────────────
	if err := a.initStream(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init stream: %w", err)
	}

	// ── 4. Fan-out + health ─────────────────────────────────────────────
	a.hub = hub.New(hub.WithMetrics(a.metrics))
	a.health = health.New(
		health.Checker{Name: "capture", Check: a.checkCapture},
		health.Checker{Name: "journal", Check: a.checkJournal},
	)

	slog.Info("app initialised",
		"capture", cfg.Capture.Source,
		"vad", cfg.VAD.Name,
		"lookback_frames", a.stream.LookbackBound(),
		"overflow", cfg.Segmenter.Overflow,
		"diagnostics", cfg.Diagnostics.Enabled,
	)
	return a, nil
}

func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}
	if a.cfg.Journal.PostgresDSN == "" {
		a.journal = journal.NewMemStore(a.cfg.Journal.MemoryLimit)
		return nil
	}
	pool, err := journal.NewPool(ctx, a.cfg.Journal.PostgresDSN)
	if err != nil {
		return err
	}
	store := journal.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return err
	}
	// Appends degrade to the in-memory ring while the database fails.
	a.journal = journal.NewFallbackStore(store, journal.NewMemStore(a.cfg.Journal.MemoryLimit), resilience.BreakerConfig{})
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	return nil
}

func (a *App) initStream() error {
	sess, err := a.providers.VAD.NewSession(a.cfg.SessionConfig())
	if err != nil {
		return fmt.Errorf("new vad session: %w", err)
	}
	a.session = sess
	a.closers = append(a.closers, sess.Close)

	stream, err := segment.NewStream(a.providers.Capture, sess, a.cfg.StreamConfig(),
		segment.WithDiagnostics(a.diag),
		segment.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.stream = stream
	return nil
}

// Run pulls segments from the capture stream, journals them and publishes
// them to feed subscribers. It blocks until ctx is cancelled or the source
// ends. A finite source that reaches EOF returns nil; cancellation returns
// the context error; device and classifier failures are returned wrapped.
func (a *App) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return errors.New("app: already running")
	}
	defer close(a.done)
	a.capture.Store(int32(captureRunning))

	slog.Info("app running", "sample_rate", a.cfg.Capture.SampleRate, "frame_size", a.cfg.Capture.FrameSize)
	for seg, err := range a.stream.All(ctx) {
		if err != nil {
			err = fmt.Errorf("app: segment stream: %w", err)
			a.failure.Store(&err)
			a.capture.Store(int32(captureFailed))
			return err
		}
		a.emit(ctx, seg)
	}
	slog.Info("capture stream ended", "frames", a.stream.FramesRead())
	a.capture.Store(int32(captureFinished))
	return ctx.Err()
}

// emit journals seg and hands it to the feed. A journal failure is counted
// and logged; the segment is still published with the unsaved record.
func (a *App) emit(ctx context.Context, seg *segment.Segment) {
	rec := journal.FromSegment(seg)
	stored, err := a.journal.Append(ctx, rec)
	if err != nil {
		a.metrics.JournalErrors.Add(ctx, 1)
		observe.Logger(ctx).Warn("journal append failed", "seq", seg.Seq, "part", seg.Part, "err", err)
		stored = rec
	}
	a.hub.Publish(ctx, hub.Message{Header: stored, Samples: seg.Tensor.Data})
}

// SetDiagnosticsEnabled toggles the diagnostic dump at runtime.
func (a *App) SetDiagnosticsEnabled(on bool) {
	a.diag.SetEnabled(on)
	slog.Info("diagnostics toggled", "enabled", on)
}

// Handler returns the HTTP surface: metrics, health, the recent-segments
// query and the websocket feed, wrapped in the observability middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.metricsHandler)
	a.health.Register(mux)
	mux.HandleFunc("GET /v1/segments/recent", a.handleRecent)
	mux.Handle("GET /v1/segments/stream", a.hub)
	return observe.Middleware(a.metrics)(mux)
}

type recentResponse struct {
	Segments []journal.Record `json:"segments"`
}

func (a *App) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxRecentLimit {
			http.Error(w, fmt.Sprintf("limit must be an integer between 1 and %d", maxRecentLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}
	recs, err := a.journal.Recent(r.Context(), limit)
	if err != nil {
		observe.Logger(r.Context()).Error("journal query failed", "err", err)
		http.Error(w, "journal unavailable", http.StatusServiceUnavailable)
		return
	}
	if recs == nil {
		recs = []journal.Record{}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(recentResponse{Segments: recs})
}

// checkCapture passes while the capture loop runs and after it ended cleanly;
// the journal and feed keep serving a finished source.
func (a *App) checkCapture(context.Context) error {
	switch captureState(a.capture.Load()) {
	case captureRunning, captureFinished:
		return nil
	case captureFailed:
		if err := a.failure.Load(); err != nil {
			return *err
		}
		return errors.New("capture stream failed")
	default:
		return errors.New("capture stream not started")
	}
}

func (a *App) checkJournal(ctx context.Context) error {
	_, err := a.journal.Recent(ctx, 1)
	return err
}

// Shutdown marks the service as draining, waits for Run to return, flushes
// a segment still in progress when segmenter.flush_on_shutdown is set, and
// then tears down all subsystems. It respects the context deadline: if ctx
// expires while Run is still blocked, every closer runs regardless, capture
// source first so a stalled read is released, and the context error is
// returned. The caller must cancel the context passed to Run first.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.health.SetDraining(true)

		if a.started.Load() {
			select {
			case <-a.done:
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded waiting for the stream, closing capture")
				shutdownErr = ctx.Err()
				a.hub.Close()
				a.closeAll()
				return
			}
		}

		if a.cfg.Segmenter.FlushOnShutdown {
			for _, seg := range a.stream.Finalize(ctx) {
				a.emit(ctx, seg)
			}
		}

		a.hub.Close()
		a.diag.Wait()

		if err := a.runClosers(ctx); err != nil {
			shutdownErr = err
			return
		}
		slog.Info("shutdown complete", "diagnostics_written", a.diag.Written())
	})
	return shutdownErr
}

func (a *App) runClosers(ctx context.Context) error {
	for i, closer := range a.closers {
		select {
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
			return ctx.Err()
		default:
		}
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	return nil
}

// closeAll releases whatever New acquired before failing.
func (a *App) closeAll() {
	_ = a.runClosers(context.Background())
}
