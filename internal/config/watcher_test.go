package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxseg/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
capture:
  source: file
  path: /tmp/capture.f32
diagnostics:
  enabled: false
`

const watcherUpdatedYAML = `
server:
  log_level: debug
capture:
  source: file
  path: /tmp/capture.f32
diagnostics:
  enabled: true
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(context.Background(), cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var mu sync.Mutex
	var got config.Reload
	called := make(chan struct{}, 1)

	w, err := config.NewWatcher(context.Background(), cfgPath, func(r config.Reload) {
		mu.Lock()
		got = r
		mu.Unlock()
		select {
		case called <- struct{}{}:
		default:
		}
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	// Give the initial poll a moment, then update the file.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, cfgPath, watcherUpdatedYAML)

	// Wait for callback.
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}

	mu.Lock()
	defer mu.Unlock()

	if got.Old == nil || got.New == nil {
		t.Fatal("callback received nil configs")
	}
	if got.Old.Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level: got %q, want %q", got.Old.Server.LogLevel, config.LogInfo)
	}
	if got.New.Server.LogLevel != config.LogDebug {
		t.Errorf("new log_level: got %q, want %q", got.New.Server.LogLevel, config.LogDebug)
	}
	if !got.Diff.LogLevelChanged || got.Diff.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level debug", got.Diff)
	}
	if !got.Diff.DiagnosticsChanged || !got.Diff.DiagnosticsEnabled {
		t.Errorf("diff = %+v, want diagnostics enabled", got.Diff)
	}

	// Current should return the new config.
	cur := w.Current()
	if cur.Server.LogLevel != config.LogDebug {
		t.Errorf("Current() log_level: got %q, want %q", cur.Server.LogLevel, config.LogDebug)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	callCount := 0
	var mu sync.Mutex

	w, err := config.NewWatcher(context.Background(), cfgPath, func(config.Reload) {
		mu.Lock()
		callCount++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	// Write invalid config.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, cfgPath, watcherInvalidYAML)

	// Wait enough polls for it to notice the change.
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	calls := callCount
	mu.Unlock()

	if calls != 0 {
		t.Errorf("callback should not be called for invalid config, got %d calls", calls)
	}
	if got := w.Rejected(); got != 1 {
		t.Errorf("Rejected() = %d, want 1", got)
	}

	// Current should still be the old valid config.
	cur := w.Current()
	if cur.Server.LogLevel != config.LogInfo {
		t.Errorf("Current() should still have old config, got log_level=%q", cur.Server.LogLevel)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	_, err := config.NewWatcher(context.Background(), "/nonexistent/path.yaml", nil)
	if err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(context.Background(), cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Multiple stops should not panic.
	w.Stop()
	w.Stop()
	w.Stop()
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	callCount := 0
	var mu sync.Mutex

	w, err := config.NewWatcher(context.Background(), cfgPath, func(config.Reload) {
		mu.Lock()
		callCount++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	// Touch the file (update mtime) without changing content.
	time.Sleep(100 * time.Millisecond)
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(cfgPath, now, now); err != nil {
		t.Fatalf("failed to touch file: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	calls := callCount
	mu.Unlock()

	if calls != 0 {
		t.Errorf("callback should not fire for touch-only, got %d calls", calls)
	}
}

func TestWatcher_StopsWithContext(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	ctx, cancel := context.WithCancel(context.Background())
	called := make(chan struct{}, 1)
	w, err := config.NewWatcher(ctx, cfgPath, func(config.Reload) {
		called <- struct{}{}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	cancel()
	time.Sleep(60 * time.Millisecond)
	writeFile(t, cfgPath, watcherUpdatedYAML)
	time.Sleep(200 * time.Millisecond)

	select {
	case <-called:
		t.Error("callback fired after context was cancelled")
	default:
	}
}

func TestWatcher_SettingNeutralEditIsAbsorbed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	called := make(chan struct{}, 1)
	w, err := config.NewWatcher(context.Background(), cfgPath, func(config.Reload) {
		select {
		case called <- struct{}{}:
		default:
		}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	writeFile(t, cfgPath, "# tuned for the lab mic\n"+watcherValidYAML)
	time.Sleep(200 * time.Millisecond)

	select {
	case <-called:
		t.Error("callback fired for a comment-only edit")
	default:
	}
	if w.Rejected() != 0 {
		t.Errorf("Rejected() = %d, want 0", w.Rejected())
	}
}

func TestWatcher_RecoversAfterRejectedEdit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	reloads := make(chan config.Reload, 4)
	w, err := config.NewWatcher(context.Background(), cfgPath, func(r config.Reload) {
		reloads <- r
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	writeFile(t, cfgPath, watcherInvalidYAML)
	time.Sleep(150 * time.Millisecond)
	writeFile(t, cfgPath, watcherUpdatedYAML)

	select {
	case r := <-reloads:
		if r.Old.Server.LogLevel != config.LogInfo || r.New.Server.LogLevel != config.LogDebug {
			t.Errorf("reload %s -> %s, want info -> debug", r.Old.Server.LogLevel, r.New.Server.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid edit after a rejected one was not reported")
	}
	if w.Rejected() != 1 {
		t.Errorf("Rejected() = %d, want 1", w.Rejected())
	}
}
