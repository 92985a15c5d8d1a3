package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is set when server.log_level differs; applied live.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DiagnosticsChanged is set when diagnostics.enabled differs; applied
	// live.
	DiagnosticsChanged bool
	DiagnosticsEnabled bool

	// RestartRequired lists the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// HasChanges reports whether anything differs.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.DiagnosticsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Diagnostics.Enabled != new.Diagnostics.Enabled {
		d.DiagnosticsChanged = true
		d.DiagnosticsEnabled = new.Diagnostics.Enabled
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Capture, new.Capture) {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if !reflect.DeepEqual(old.VAD, new.VAD) {
		d.RestartRequired = append(d.RestartRequired, "vad")
	}
	if old.Segmenter != new.Segmenter {
		d.RestartRequired = append(d.RestartRequired, "segmenter")
	}
	if old.Diagnostics.Dir != new.Diagnostics.Dir || old.Diagnostics.KeepAll != new.Diagnostics.KeepAll {
		d.RestartRequired = append(d.RestartRequired, "diagnostics")
	}
	if old.Journal != new.Journal {
		d.RestartRequired = append(d.RestartRequired, "journal")
	}

	return d
}
