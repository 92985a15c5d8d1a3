package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/voxseg/internal/config"
	"github.com/MrWong99/voxseg/internal/segment"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "server.log_level") {
		t.Errorf("error should mention server.log_level, got: %v", err)
	}
}

func TestValidate_InvalidMode(t *testing.T) {
	t.Parallel()
	yaml := `
vad:
  mode: paranoid
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid vad mode, got nil")
	}
	if !strings.Contains(err.Error(), "vad.mode") {
		t.Errorf("error should mention vad.mode, got: %v", err)
	}
}

func TestValidate_InvalidOverflow(t *testing.T) {
	t.Parallel()
	yaml := `
segmenter:
  overflow: wrap
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid overflow policy, got nil")
	}
	if !strings.Contains(err.Error(), "segmenter.overflow") {
		t.Errorf("error should mention segmenter.overflow, got: %v", err)
	}
}

func TestValidate_FileSourceRequiresPath(t *testing.T) {
	t.Parallel()
	yaml := `
capture:
  source: file
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for file source without path, got nil")
	}
	if !strings.Contains(err.Error(), "capture.path") {
		t.Errorf("error should mention capture.path, got: %v", err)
	}
}

func TestValidate_IncompleteTLS(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/voxseg/cert.pem
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for TLS without key_file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_NegativeValues(t *testing.T) {
	t.Parallel()
	yaml := `
segmenter:
  lookback_ms: -1
  max_duration_seconds: -5
journal:
  memory_limit: -2
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative values, got nil")
	}
	for _, field := range []string{"segmenter.lookback_ms", "segmenter.max_duration_seconds", "journal.memory_limit"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error should mention %s, got: %v", field, err)
		}
	}
}

func TestValidate_ZeroLookbackAllowed(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Segmenter.LookbackMs = 0
	if err := config.Validate(cfg); err != nil {
		t.Errorf("zero lookback should be valid, got: %v", err)
	}
}

func TestLoad_ExplicitZeroLookbackDisablesContext(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("segmenter:\n  lookback_ms: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Segmenter.LookbackMs != 0 {
		t.Errorf("lookback_ms = %d, want 0", cfg.Segmenter.LookbackMs)
	}
	if got := cfg.StreamConfig().LookbackMs; got != segment.NoLookback {
		t.Errorf("StreamConfig().LookbackMs = %d, want %d", got, segment.NoLookback)
	}

	def, err := config.LoadFromReader(strings.NewReader("segmenter:\n  overflow: drop\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Segmenter.LookbackMs != config.DefaultLookbackMs {
		t.Errorf("omitted lookback_ms = %d, want %d", def.Segmenter.LookbackMs, config.DefaultLookbackMs)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
vad:
  mode: off
segmenter:
  overflow: wrap
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected multiple validation errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("should report log level error, got: %v", err)
	}
	if !strings.Contains(errStr, "vad.mode") {
		t.Errorf("should report vad mode error, got: %v", err)
	}
	if !strings.Contains(errStr, "overflow") {
		t.Errorf("should report overflow error, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "voxseg.yaml")
	if err := os.WriteFile(path, []byte("segmenter:\n  lookback_ms: 200\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Segmenter.LookbackMs != 200 {
		t.Errorf("lookback_ms = %d, want 200", cfg.Segmenter.LookbackMs)
	}
}

func TestValidComponentNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"capture", "vad"} {
		names, ok := config.ValidComponentNames[kind]
		if !ok {
			t.Errorf("ValidComponentNames missing kind %q", kind)
			continue
		}
		if len(names) == 0 {
			t.Errorf("ValidComponentNames[%q] is empty", kind)
		}
	}
	if !slices.Contains(config.ValidComponentNames["capture"], config.SourceFile) {
		t.Error("capture names should include the file source")
	}
}
