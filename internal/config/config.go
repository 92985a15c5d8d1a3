// Package config provides the configuration schema, loader, component
// registry, and hot-reload watcher for the voxseg segmentation service.
package config

import "log/slog"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its slog level. Unknown and empty values map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Capture source names understood by the built-in registry.
const (
	SourcePortAudio = "portaudio"
	SourceFile      = "file"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Capture     CaptureConfig     `yaml:"capture"`
	VAD         VADConfig         `yaml:"vad"`
	Segmenter   SegmenterConfig   `yaml:"segmenter"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Journal     JournalConfig     `yaml:"journal"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// CaptureConfig selects and configures the audio source.
type CaptureConfig struct {
	// Source selects the registered capture factory ("portaudio", "file").
	Source string `yaml:"source"`

	// Device names the PortAudio input device. Empty selects the default.
	Device string `yaml:"device"`

	// Path is the raw little-endian float32 file replayed by the "file"
	// source.
	Path string `yaml:"path"`

	// SampleRate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize in samples per classifier window. Default: 512.
	FrameSize int `yaml:"frame_size"`

	// Options holds source-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// VADConfig selects and configures the speech classifier.
type VADConfig struct {
	// Name selects the registered classifier engine. Default: "energy".
	Name string `yaml:"name"`

	// Mode is the sensitivity: normal, aggressive or very_aggressive.
	Mode string `yaml:"mode"`

	// MinSilenceDurationMs is the silence run that ends speech. Default: 300.
	MinSilenceDurationMs int `yaml:"min_silence_duration_ms"`

	// MinSpeechDurationMs is the speech run that starts speech. Default: 50.
	MinSpeechDurationMs int `yaml:"min_speech_duration_ms"`

	// Options holds engine-specific values, e.g. energy thresholds.
	Options map[string]any `yaml:"options"`
}

// SegmenterConfig controls buffering and assembly.
type SegmenterConfig struct {
	// LookbackMs is the pre-speech context kept while idle. Default: 400.
	// Zero keeps no context.
	LookbackMs int `yaml:"lookback_ms"`

	// MaxDurationSeconds caps one emitted tensor. Default: 30.
	MaxDurationSeconds int `yaml:"max_duration_seconds"`

	// Overflow is split, truncate or drop. Default: split.
	Overflow string `yaml:"overflow"`

	// FlushOnShutdown emits a segment still in progress when the service
	// stops instead of discarding it.
	FlushOnShutdown bool `yaml:"flush_on_shutdown"`
}

// DiagnosticsConfig controls the debug WAV dump.
type DiagnosticsConfig struct {
	// Enabled turns dumping on. Hot-reloadable.
	Enabled bool `yaml:"enabled"`

	// Dir receives the WAV files. Default: ./debug.
	Dir string `yaml:"dir"`

	// KeepAll writes one file per segment instead of overwriting debug.wav.
	KeepAll bool `yaml:"keep_all"`
}

// JournalConfig controls the segment metadata journal.
type JournalConfig struct {
	// PostgresDSN enables the PostgreSQL journal. Empty keeps the journal in
	// memory.
	PostgresDSN string `yaml:"postgres_dsn"`

	// MemoryLimit is the number of records kept by the in-memory journal.
	// Default: 256.
	MemoryLimit int `yaml:"memory_limit"`
}
