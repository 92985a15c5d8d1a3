package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxseg/internal/segment"
	"github.com/MrWong99/voxseg/pkg/audio"
	"github.com/MrWong99/voxseg/pkg/provider/vad"
)

// Defaults applied by [Default] and [LoadFromReader].
const (
	DefaultListenAddr           = ":8080"
	DefaultLookbackMs           = segment.DefaultLookbackMs
	DefaultMaxDurationSeconds   = 30
	DefaultMinSilenceDurationMs = 300
	DefaultMinSpeechDurationMs  = 50
	DefaultDiagnosticsDir       = "./debug"
	DefaultJournalMemoryLimit   = 256
)

// ValidComponentNames lists known component names per kind. Used by
// [Validate] to warn about unrecognised names.
var ValidComponentNames = map[string][]string{
	"capture": {SourcePortAudio, SourceFile},
	"vad":     {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := seeded()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBytes is [LoadFromReader] over an in-memory document.
func LoadBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := seeded()
	ApplyDefaults(cfg)
	return cfg
}

// seeded returns a config holding the defaults for fields where zero is a
// meaningful value, so that an explicit zero in YAML survives decoding.
func seeded() *Config {
	return &Config{Segmenter: SegmenterConfig{LookbackMs: DefaultLookbackMs}}
}

// ApplyDefaults fills zero-valued fields of cfg. segmenter.lookback_ms is
// left alone: zero there disables pre-speech context.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Capture.Source == "" {
		cfg.Capture.Source = SourcePortAudio
	}
	if cfg.Capture.SampleRate == 0 {
		cfg.Capture.SampleRate = audio.DefaultSampleRate
	}
	if cfg.Capture.FrameSize == 0 {
		cfg.Capture.FrameSize = audio.DefaultFrameSize
	}
	if cfg.VAD.Name == "" {
		cfg.VAD.Name = "energy"
	}
	if cfg.VAD.Mode == "" {
		cfg.VAD.Mode = vad.ModeNormal.String()
	}
	if cfg.VAD.MinSilenceDurationMs == 0 {
		cfg.VAD.MinSilenceDurationMs = DefaultMinSilenceDurationMs
	}
	if cfg.VAD.MinSpeechDurationMs == 0 {
		cfg.VAD.MinSpeechDurationMs = DefaultMinSpeechDurationMs
	}
	if cfg.Segmenter.MaxDurationSeconds == 0 {
		cfg.Segmenter.MaxDurationSeconds = DefaultMaxDurationSeconds
	}
	if cfg.Segmenter.Overflow == "" {
		cfg.Segmenter.Overflow = string(segment.OverflowSplit)
	}
	if cfg.Diagnostics.Dir == "" {
		cfg.Diagnostics.Dir = DefaultDiagnosticsDir
	}
	if cfg.Journal.MemoryLimit == 0 {
		cfg.Journal.MemoryLimit = DefaultJournalMemoryLimit
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Capture
	validateComponentName("capture", cfg.Capture.Source)
	if cfg.Capture.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive", cfg.Capture.SampleRate))
	} else if cfg.Capture.SampleRate != audio.DefaultSampleRate {
		slog.Warn("capture.sample_rate differs from the 16 kHz the classifier and assembler are tuned for",
			"sample_rate", cfg.Capture.SampleRate)
	}
	if cfg.Capture.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("capture.frame_size %d must be positive", cfg.Capture.FrameSize))
	}
	if cfg.Capture.Source == SourceFile && cfg.Capture.Path == "" {
		errs = append(errs, errors.New("capture.path is required when capture.source is file"))
	}

	// VAD
	validateComponentName("vad", cfg.VAD.Name)
	if _, err := vad.ParseMode(cfg.VAD.Mode); err != nil {
		errs = append(errs, fmt.Errorf("vad.mode %q is invalid; valid values: normal, aggressive, very_aggressive", cfg.VAD.Mode))
	}
	if cfg.VAD.MinSilenceDurationMs < 0 {
		errs = append(errs, fmt.Errorf("vad.min_silence_duration_ms %d must not be negative", cfg.VAD.MinSilenceDurationMs))
	}
	if cfg.VAD.MinSpeechDurationMs < 0 {
		errs = append(errs, fmt.Errorf("vad.min_speech_duration_ms %d must not be negative", cfg.VAD.MinSpeechDurationMs))
	}

	// Segmenter
	if cfg.Segmenter.LookbackMs < 0 {
		errs = append(errs, fmt.Errorf("segmenter.lookback_ms %d must not be negative", cfg.Segmenter.LookbackMs))
	}
	if cfg.Segmenter.MaxDurationSeconds <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.max_duration_seconds %d must be positive", cfg.Segmenter.MaxDurationSeconds))
	} else if cfg.Capture.FrameSize > 0 && cfg.Segmenter.MaxDurationSeconds*cfg.Capture.SampleRate < cfg.Capture.FrameSize {
		errs = append(errs, errors.New("segmenter.max_duration_seconds holds less than one frame"))
	}
	if _, err := segment.ParseOverflowPolicy(cfg.Segmenter.Overflow); err != nil {
		errs = append(errs, fmt.Errorf("segmenter.overflow %q is invalid; valid values: split, truncate, drop", cfg.Segmenter.Overflow))
	}

	// Diagnostics
	if cfg.Diagnostics.Enabled && cfg.Diagnostics.Dir == "" {
		errs = append(errs, errors.New("diagnostics.dir is required when diagnostics are enabled"))
	}

	// Journal
	if cfg.Journal.MemoryLimit < 0 {
		errs = append(errs, fmt.Errorf("journal.memory_limit %d must not be negative", cfg.Journal.MemoryLimit))
	}

	return errors.Join(errs...)
}

// validateComponentName logs a warning if name is non-empty and not found in
// the [ValidComponentNames] list for the given kind.
func validateComponentName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidComponentNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown component name, may be a typo or a third-party registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
