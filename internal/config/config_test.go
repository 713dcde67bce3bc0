package config_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ramadascd1-rgb/FUNtastic/internal/config"
	"github.com/ramadascd1-rgb/FUNtastic/internal/content"
	contentmock "github.com/ramadascd1-rgb/FUNtastic/internal/content/mock"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live"
	livemock "github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

live:
  provider:
    name: openai-realtime
    api_key: sk-live
    model: gpt-4o-realtime-preview
  voice: alloy
  instructions: Be silly.

audio:
  capture_sample_rate: 16000
  playback_sample_rate: 24000
  frame_size: 2048
  frame_buffer: 4
  send_queue: 8
  transcript_lines: 3
  speaker_buffer: 80ms
  devices: true

content:
  primary:
    name: gemini
    api_key: gm-test
    model: gemini-2.5-flash-image
  fallbacks:
    - name: openai
      api_key: sk-content
  poll_interval: 2s
  circuit_breaker:
    max_failures: 2
    reset_timeout: 1m
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Live.Provider.Name != "openai-realtime" || cfg.Live.Provider.APIKey != "sk-live" {
		t.Errorf("live.provider = %+v", cfg.Live.Provider)
	}
	if cfg.Live.Voice != "alloy" || cfg.Live.Instructions != "Be silly." {
		t.Errorf("live = %+v", cfg.Live)
	}
	if cfg.Audio.FrameSize != 2048 || cfg.Audio.SendQueue != 8 || cfg.Audio.TranscriptLines != 3 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Audio.FrameBuffer != 4 {
		t.Errorf("audio.frame_buffer = %d, want 4", cfg.Audio.FrameBuffer)
	}
	if cfg.Audio.SpeakerBuffer != 80*time.Millisecond || !cfg.Audio.Devices {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Content.PollInterval != 2*time.Second {
		t.Errorf("content.poll_interval = %v", cfg.Content.PollInterval)
	}
	if cfg.Content.CircuitBreaker.MaxFailures != 2 || cfg.Content.CircuitBreaker.ResetTimeout != time.Minute {
		t.Errorf("content.circuit_breaker = %+v", cfg.Content.CircuitBreaker)
	}
	names := []string{}
	for _, e := range cfg.Content.ContentEntries() {
		names = append(names, e.Name)
	}
	if !slices.Equal(names, []string{"gemini", "openai"}) {
		t.Errorf("content entries = %v", names)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	for _, doc := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("LoadFromReader(%q): %v", doc, err)
		}
		if cfg.Server.ListenAddr != config.DefaultListenAddr || cfg.Server.LogLevel != config.LogInfo {
			t.Errorf("server = %+v", cfg.Server)
		}
		if cfg.Live.Provider.Name != config.DefaultLiveProvider || cfg.Live.Voice != config.DefaultVoice {
			t.Errorf("live = %+v", cfg.Live)
		}
		if cfg.Live.Instructions != config.DefaultInstructions {
			t.Errorf("instructions = %q", cfg.Live.Instructions)
		}
		if cfg.Audio.TranscriptLines != 5 || cfg.Audio.CaptureSampleRate != 16000 || cfg.Audio.PlaybackSampleRate != 24000 {
			t.Errorf("audio = %+v", cfg.Audio)
		}
		if cfg.Audio.FrameSize != 4096 || cfg.Audio.SendQueue != config.DefaultSendQueue || cfg.Audio.FrameBuffer != config.DefaultFrameBuffer {
			t.Errorf("audio = %+v", cfg.Audio)
		}
		if cfg.Content.Primary.Name != "gemini" || cfg.Content.PollInterval != 5*time.Second {
			t.Errorf("content = %+v", cfg.Content)
		}
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: ':1'\n"))
	if err == nil || !strings.Contains(err.Error(), "listen_adr") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: verbose\n", "log_level"},
		{"tls incomplete", "server:\n  tls:\n    cert_file: a.pem\n", "server.tls"},
		{"capture rate", "audio:\n  capture_sample_rate: 44100\n", "capture_sample_rate"},
		{"playback rate", "audio:\n  playback_sample_rate: 48000\n", "playback_sample_rate"},
		{"frame size", "audio:\n  frame_size: -1\n", "frame_size"},
		{"frame buffer", "audio:\n  frame_buffer: -3\n", "frame_buffer"},
		{"send queue", "audio:\n  send_queue: -4\n", "send_queue"},
		{"transcript lines", "audio:\n  transcript_lines: -2\n", "transcript_lines"},
		{"fallback name", "content:\n  fallbacks:\n    - api_key: x\n", "content.fallbacks[0].name"},
		{"duplicate", "content:\n  primary:\n    name: openai\n  fallbacks:\n    - name: openai\n", "duplicate"},
		{"poll interval", "content:\n  poll_interval: -1s\n", "poll_interval"},
		{"breaker", "content:\n  circuit_breaker:\n    max_failures: -1\n", "circuit_breaker"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error should mention %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: "loud"},
		Audio:  config.AudioConfig{CaptureSampleRate: 8000, SendQueue: -1},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "capture_sample_rate", "send_queue", "content.primary.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviderIsWarningOnly(t *testing.T) {
	t.Parallel()
	yaml := "live:\n  provider:\n    name: my-custom-live\ncontent:\n  primary:\n    name: stable-diffusion\n"
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names must not fail validation: %v", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

func TestRegistry_CreateLive(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &livemock.Provider{}
	var got config.ProviderEntry
	reg.RegisterLive("gemini-live", func(_ context.Context, e config.ProviderEntry) (live.Provider, error) {
		got = e
		return want, nil
	})

	p, err := reg.CreateLive(context.Background(), config.ProviderEntry{Name: "gemini-live", Model: "m"})
	if err != nil {
		t.Fatalf("CreateLive: %v", err)
	}
	if p != want || got.Model != "m" {
		t.Errorf("provider = %v, entry = %+v", p, got)
	}
}

func TestRegistry_CreateContent(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	backend := &contentmock.Backend{}
	var poll time.Duration
	reg.RegisterContent("gemini", func(_ context.Context, _ config.ProviderEntry, cfg config.ContentConfig) (content.Backend, error) {
		poll = cfg.PollInterval
		return backend, nil
	})

	b, err := reg.CreateContent(context.Background(), config.ProviderEntry{Name: "gemini"},
		config.ContentConfig{PollInterval: 3 * time.Second})
	if err != nil {
		t.Fatalf("CreateContent: %v", err)
	}
	if b != backend || poll != 3*time.Second {
		t.Errorf("backend = %v, poll = %v", b, poll)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	ctx := context.Background()

	if _, err := reg.CreateLive(ctx, config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLive err = %v", err)
	}
	if _, err := reg.CreateContent(ctx, config.ProviderEntry{Name: "nope"}, config.ContentConfig{}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateContent err = %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("bad key")
	reg.RegisterLive("x", func(context.Context, config.ProviderEntry) (live.Provider, error) { return nil, boom })

	if _, err := reg.CreateLive(context.Background(), config.ProviderEntry{Name: "x"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterLive("openai-realtime", nil)
	reg.RegisterLive("gemini-live", nil)
	reg.RegisterContent("openai", nil)

	if got := reg.LiveNames(); !slices.Equal(got, []string{"gemini-live", "openai-realtime"}) {
		t.Errorf("LiveNames = %v", got)
	}
	if got := reg.ContentNames(); !slices.Equal(got, []string{"openai"}) {
		t.Errorf("ContentNames = %v", got)
	}
}
