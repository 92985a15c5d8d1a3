// Command voxseg captures audio, cuts it into speech segments and serves them
// to downstream consumers. With -decode it instead converts a raw float32
// PCM file into a tensor and optionally writes it out as a WAV file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/voxseg/internal/app"
	"github.com/MrWong99/voxseg/internal/config"
	"github.com/MrWong99/voxseg/internal/diag"
	"github.com/MrWong99/voxseg/internal/observe"
	"github.com/MrWong99/voxseg/pkg/audio"
	"github.com/MrWong99/voxseg/pkg/audio/portaudio"
	"github.com/MrWong99/voxseg/pkg/provider/vad"
	"github.com/MrWong99/voxseg/pkg/provider/vad/energy"
	"github.com/MrWong99/voxseg/pkg/tensor"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	decodePath := flag.String("decode", "", "decode a raw little-endian float32 PCM file and exit")
	wavPath := flag.String("wav", "", "with -decode: write the decoded tensor to this WAV file")
	sampleRate := flag.Int("rate", audio.DefaultSampleRate, "with -decode: sample rate of the input in Hz")
	maxSeconds := flag.Int("max-seconds", config.DefaultMaxDurationSeconds, "with -decode: tensor capacity in seconds")
	flag.Parse()

	if *decodePath != "" {
		slog.SetDefault(newLogger(new(slog.LevelVar)))
		if err := decode(*decodePath, *wavPath, *sampleRate, *maxSeconds); err != nil {
			fmt.Fprintf(os.Stderr, "voxseg: %v\n", err)
			return 1
		}
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxseg: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxseg: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(level))

	slog.Info("voxseg starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Component registry ────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltins(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers, app.WithMetricsHandler(provider.MetricsHandler()))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(ctx, *configPath, func(r config.Reload) {
		applyDiff(r.Diff, level, application)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           application.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	slog.Info("server ready; press Ctrl+C to shut down")

	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(ctx) }()

	exit := 0
	select {
	case err := <-runErr:
		switch {
		case err == nil:
			// A finite source ran out; keep serving the journal and feed.
			slog.Info("capture finished; serving until interrupted")
			select {
			case <-ctx.Done():
			case err := <-srvErr:
				if err != nil {
					slog.Error("http server error", "err", err)
					exit = 1
				}
			}
		case errors.Is(err, context.Canceled):
		default:
			slog.Error("run error", "err", err)
			exit = 1
		}
	case err := <-srvErr:
		if err != nil {
			slog.Error("http server error", "err", err)
			exit = 1
		}
	}
	stop()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return exit
}

// applyDiff applies the live-reloadable parts of a config change and warns
// about the rest.
func applyDiff(d config.ConfigDiff, level *slog.LevelVar, application *app.App) {
	if !d.HasChanges() {
		return
	}
	if d.LogLevelChanged {
		level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.DiagnosticsChanged {
		application.SetDiagnosticsEnabled(d.DiagnosticsEnabled)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// ── Offline decode ────────────────────────────────────────────────────────────

func decode(path, wavOut string, sampleRate, maxSeconds int) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	t, err := tensor.FromRawPCM(raw, tensor.MaxSamples(maxSeconds, sampleRate))
	if err != nil {
		return err
	}
	fmt.Printf("shape=%v samples=%d duration=%s\n", t.Shape, t.Samples(), t.Duration(sampleRate))
	if wavOut == "" {
		return nil
	}

	f, err := os.Create(wavOut)
	if err != nil {
		return fmt.Errorf("create %q: %w", wavOut, err)
	}
	if err := diag.WriteWAV(f, []audio.Frame{t.Data}, sampleRate); err != nil {
		f.Close()
		return fmt.Errorf("write %q: %w", wavOut, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("wav written", "path", wavOut, "samples", t.Samples())
	return nil
}

// ── Registry ──────────────────────────────────────────────────────────────────

func registerBuiltins(reg *config.Registry) {
	reg.RegisterVAD("energy", func(c config.VADConfig) (vad.Engine, error) {
		var opts []energy.Option
		speech, okSpeech := optFloat(c.Options, "speech_threshold")
		silence, okSilence := optFloat(c.Options, "silence_threshold")
		if okSpeech || okSilence {
			if !okSpeech || !okSilence {
				return nil, errors.New("energy: speech_threshold and silence_threshold must be set together")
			}
			opts = append(opts, energy.WithThresholds(speech, silence))
		}
		return energy.New(opts...)
	})

	reg.RegisterCapture(config.SourcePortAudio, func(c config.CaptureConfig) (audio.Source, error) {
		return portaudio.Open(portaudio.Config{
			Device:          c.Device,
			SampleRate:      c.SampleRate,
			FramesPerBuffer: c.FrameSize,
		})
	})

	reg.RegisterCapture(config.SourceFile, func(c config.CaptureConfig) (audio.Source, error) {
		f, err := os.Open(c.Path)
		if err != nil {
			return nil, err
		}
		return audio.NewReaderSource(f), nil
	})

	for _, kind := range []string{"vad", "capture"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered component", "kind", kind, "name", name)
		}
	}
}

func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	eng, err := reg.CreateVAD(cfg.VAD)
	if err != nil {
		return nil, fmt.Errorf("create vad %q: %w", cfg.VAD.Name, err)
	}
	slog.Info("component created", "kind", "vad", "name", cfg.VAD.Name, "mode", cfg.VAD.Mode)

	src, err := reg.CreateCapture(cfg.Capture)
	if err != nil {
		return nil, fmt.Errorf("create capture %q: %w", cfg.Capture.Source, err)
	}
	slog.Info("component created", "kind", "capture", "name", cfg.Capture.Source,
		"sample_rate", cfg.Capture.SampleRate, "frame_size", cfg.Capture.FrameSize)

	return &app.Providers{VAD: eng, Capture: src}, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optFloat extracts a numeric value from an Options map[string]any. YAML
// decodes whole numbers as int, so both are accepted.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
