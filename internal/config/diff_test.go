package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/voxseg/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.VAD.Options = map[string]any{"speech_threshold": 0.02}

	d := config.Diff(cfg, cfg)
	if d.HasChanges() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level is live; RestartRequired = %v", d.RestartRequired)
	}
}

func TestDiff_DiagnosticsToggled(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Diagnostics.Enabled = true

	d := config.Diff(old, new)
	if !d.DiagnosticsChanged || !d.DiagnosticsEnabled {
		t.Errorf("expected diagnostics enabled change, got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("diagnostics toggle is live; RestartRequired = %v", d.RestartRequired)
	}
}

func TestDiff_DiagnosticsDirRequiresRestart(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Diagnostics.Dir = "/var/lib/voxseg"

	d := config.Diff(old, new)
	if d.DiagnosticsChanged {
		t.Error("expected DiagnosticsChanged=false when only dir changed")
	}
	if !slices.Contains(d.RestartRequired, "diagnostics") {
		t.Errorf("RestartRequired = %v, want diagnostics", d.RestartRequired)
	}
}

func TestDiff_RestartRequiredSections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		section string
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9999" }, "server"},
		{"tls", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"} }, "server"},
		{"capture device", func(c *config.Config) { c.Capture.Device = "USB Mic" }, "capture"},
		{"capture options", func(c *config.Config) { c.Capture.Options = map[string]any{"latency": "low"} }, "capture"},
		{"vad mode", func(c *config.Config) { c.VAD.Mode = "aggressive" }, "vad"},
		{"lookback", func(c *config.Config) { c.Segmenter.LookbackMs = 200 }, "segmenter"},
		{"overflow", func(c *config.Config) { c.Segmenter.Overflow = "drop" }, "segmenter"},
		{"journal", func(c *config.Config) { c.Journal.PostgresDSN = "postgres://db/voxseg" }, "journal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			new := config.Default()
			tt.mutate(new)

			d := config.Diff(old, new)
			if !d.HasChanges() {
				t.Fatal("expected changes")
			}
			if len(d.RestartRequired) != 1 || d.RestartRequired[0] != tt.section {
				t.Errorf("RestartRequired = %v, want [%s]", d.RestartRequired, tt.section)
			}
		})
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogWarn
	new.Diagnostics.Enabled = true
	new.Segmenter.MaxDurationSeconds = 10
	new.Journal.MemoryLimit = 16

	d := config.Diff(old, new)
	if !d.LogLevelChanged || !d.DiagnosticsChanged {
		t.Errorf("expected live changes, got %+v", d)
	}
	want := []string{"segmenter", "journal"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
}
