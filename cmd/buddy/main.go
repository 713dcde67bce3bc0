// Command buddy is the FUNtastic voice companion and content server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ramadascd1-rgb/FUNtastic/internal/app"
	"github.com/ramadascd1-rgb/FUNtastic/internal/config"
	"github.com/ramadascd1-rgb/FUNtastic/internal/observe"
	"github.com/ramadascd1-rgb/FUNtastic/internal/resilience"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/device"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "dotenv file with API keys; missing files are ignored")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "buddy: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "buddy: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "buddy: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("buddy starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "funtastic",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(tel.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, opts, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg, providers)

	opts = append(opts, app.WithMetrics(metrics), app.WithMetricsHandler(tel.Handler()))
	application, err := app.New(cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProviders instantiates the live provider, the content failover group
// and, when enabled, the host audio devices.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, []app.Option, error) {
	ps := &app.Providers{}
	var opts []app.Option

	// ── Content ───────────────────────────────────────────────────────────────
	entries := cfg.Content.ContentEntries()
	cb := cfg.Content.CircuitBreaker
	fcfg := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  cb.MaxFailures,
		ResetTimeout: cb.ResetTimeout,
		HalfOpenMax:  cb.HalfOpenMax,
	}}
	var group *resilience.ContentFallback
	for _, entry := range entries {
		b, err := reg.CreateContent(ctx, entry, cfg.Content)
		if err != nil {
			// A broken fallback must not keep the primary from serving.
			if group != nil {
				slog.Warn("content fallback unavailable, skipping", "name", entry.Name, "err", err)
				continue
			}
			return nil, nil, fmt.Errorf("create content provider %q: %w", entry.Name, err)
		}
		if group == nil {
			group = resilience.NewContentFallback(b, entry.Name, fcfg)
		} else {
			group.AddFallback(entry.Name, b)
		}
		slog.Info("provider created", "kind", "content", "name", entry.Name)
	}
	if group == nil {
		return nil, nil, errors.New("no content provider configured")
	}
	ps.Content = group
	ps.ContentName = cfg.Content.Primary.Name
	ps.ContentStatus = group.Status

	if !cfg.Audio.Devices {
		slog.Info("audio devices disabled; serving the content API only")
		return ps, opts, nil
	}

	// ── Live ──────────────────────────────────────────────────────────────────
	lp, err := reg.CreateLive(ctx, cfg.Live.Provider)
	if err != nil {
		return nil, nil, fmt.Errorf("create live provider %q: %w", cfg.Live.Provider.Name, err)
	}
	ps.Live = lp
	slog.Info("provider created", "kind", "live", "name", cfg.Live.Provider.Name)

	// ── Devices ───────────────────────────────────────────────────────────────
	spk, err := device.NewSpeaker(audio.Format{SampleRate: cfg.Audio.PlaybackSampleRate, Channels: 1}, cfg.Audio.SpeakerBuffer)
	if err != nil {
		return nil, nil, err
	}
	ps.Sink = spk
	ps.Clock = spk
	opts = append(opts, app.WithCloser(spk.Close))

	var micOpts []device.MicOption
	if cfg.Audio.FrameSize > 0 {
		micOpts = append(micOpts, device.WithFrameSize(cfg.Audio.FrameSize))
	}
	if cfg.Audio.FrameBuffer > 0 {
		micOpts = append(micOpts, device.WithFrameBuffer(cfg.Audio.FrameBuffer))
	}
	ps.Microphone = device.NewMicrophone(cfg.Audio.CaptureSampleRate, micOpts...)
	return ps, opts, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, ps *app.Providers) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        FUNtastic startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	if ps.Live != nil {
		printProvider("Live", cfg.Live.Provider.Name, cfg.Live.Provider.Model)
		printProvider("Voice", cfg.Live.Voice, "")
	} else {
		printProvider("Live", "", "")
	}
	printProvider("Content", cfg.Content.Primary.Name, cfg.Content.Primary.Model)
	for _, fb := range cfg.Content.Fallbacks {
		printProvider("  fallback", fb.Name, fb.Model)
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, providerLabel(name, model, 19))
}

// providerLabel formats name and model for a summary cell of width runes.
func providerLabel(name, model string, width int) string {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if r := []rune(value); len(r) > width {
		value = string(r[:width-1]) + "…"
	}
	return value
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
