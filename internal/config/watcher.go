package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// Reload is delivered to the watcher callback when the config file changed
// in a way [Diff] can see.
type Reload struct {
	Old, New *Config
	Diff     ConfigDiff
}

// fileStamp identifies one observed version of the config file.
type fileStamp struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// Watcher polls the config file and reports validated changes. Edits that
// fail to load are logged and counted, and the last good config stays
// current. Edits that do not change any setting (comments, reordering) are
// absorbed silently.
type Watcher struct {
	path     string
	interval time.Duration
	onReload func(Reload)

	mu      sync.Mutex
	current *Config
	stamp   fileStamp

	rejected atomic.Int64
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path, then polls it in the background until ctx is done
// or [Watcher.Stop] is called. onReload may be nil.
func NewWatcher(ctx context.Context, path string, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onReload: onReload,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.stamp = cfg, stamp

	go w.loop(ctx)
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Rejected returns how many edits failed to load or validate.
func (w *Watcher) Rejected() int64 { return w.rejected.Load() }

// Stop ends polling and waits for the loop to exit. Safe to call more than
// once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.stopped
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.stopped)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-t.C:
			w.poll()
		}
	}
}

// poll reloads the file when its mtime or size moved and its content hash
// differs from the last accepted or rejected version.
func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config file unavailable", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	prev := w.stamp
	w.mu.Unlock()
	if info.ModTime().Equal(prev.mtime) && info.Size() == prev.size {
		return
	}

	cfg, stamp, err := w.read()
	if err != nil {
		if stamp.sum != prev.sum {
			w.rejected.Add(1)
			slog.Warn("config reload rejected, keeping previous config", "path", w.path, "err", err)
		}
		// Remember the bad version so it is reported once.
		w.mu.Lock()
		w.stamp = stamp
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.stamp = stamp
	if stamp.sum == prev.sum {
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	d := Diff(old, cfg)
	if !d.HasChanges() {
		slog.Debug("config file rewritten without setting changes", "path", w.path)
		return
	}
	slog.Info("config reloaded", "path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"diagnostics_changed", d.DiagnosticsChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onReload != nil {
		w.onReload(Reload{Old: old, New: cfg, Diff: d})
	}
}

// read loads and validates the file. The stamp is filled whenever the file
// could be read, even if it does not validate.
func (w *Watcher) read() (*Config, fileStamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	stamp := fileStamp{mtime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}
	cfg, err := LoadBytes(data)
	if err != nil {
		return nil, stamp, err
	}
	return cfg, stamp, nil
}
