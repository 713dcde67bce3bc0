package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/pcm"
)

// Environment variables consulted for provider API keys.
const (
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"live":    {"gemini-live", "genai-live", "openai-realtime"},
	"content": {"gemini", "openai"},
}

// LoadDotEnv loads KEY=value pairs from files (".env" when none are given)
// into the process environment. Variables already set are left alone and
// missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", f, err)
		}
		slog.Debug("loaded environment file", "path", f)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, fills defaults and API keys
// from the environment and validates the result. An empty document yields
// the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	ApplyEnv(cfg, os.Getenv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Live.Provider.Name == "" {
		cfg.Live.Provider.Name = DefaultLiveProvider
	}
	if cfg.Live.Voice == "" {
		cfg.Live.Voice = DefaultVoice
	}
	if cfg.Live.Instructions == "" {
		cfg.Live.Instructions = DefaultInstructions
	}
	if cfg.Audio.CaptureSampleRate == 0 {
		cfg.Audio.CaptureSampleRate = pcm.CaptureSampleRate
	}
	if cfg.Audio.PlaybackSampleRate == 0 {
		cfg.Audio.PlaybackSampleRate = pcm.PlaybackSampleRate
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = pcm.CaptureFrameSize
	}
	if cfg.Audio.FrameBuffer == 0 {
		cfg.Audio.FrameBuffer = DefaultFrameBuffer
	}
	if cfg.Audio.SendQueue == 0 {
		cfg.Audio.SendQueue = DefaultSendQueue
	}
	if cfg.Audio.TranscriptLines == 0 {
		cfg.Audio.TranscriptLines = DefaultTranscriptLines
	}
	if cfg.Content.Primary.Name == "" {
		cfg.Content.Primary.Name = DefaultContentProvider
	}
	if cfg.Content.PollInterval == 0 {
		cfg.Content.PollInterval = DefaultPollInterval
	}
}

// APIKeyEnv returns the environment variable that supplies the API key for
// the named provider, or "" when there is none.
func APIKeyEnv(provider string) string {
	switch {
	case strings.HasPrefix(provider, "gemini"), strings.HasPrefix(provider, "genai"):
		return EnvGeminiAPIKey
	case strings.HasPrefix(provider, "openai"):
		return EnvOpenAIAPIKey
	}
	return ""
}

// ApplyEnv fills empty API keys from the environment through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	fill := func(e *ProviderEntry) {
		if e.APIKey != "" {
			return
		}
		if key := APIKeyEnv(e.Name); key != "" {
			e.APIKey = getenv(key)
		}
	}
	fill(&cfg.Live.Provider)
	fill(&cfg.Content.Primary)
	for i := range cfg.Content.Fallbacks {
		fill(&cfg.Content.Fallbacks[i])
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	a := cfg.Audio
	if a.CaptureSampleRate != 0 && a.CaptureSampleRate != pcm.CaptureSampleRate {
		errs = append(errs, fmt.Errorf("audio.capture_sample_rate %d is unsupported; the live protocol requires %d", a.CaptureSampleRate, pcm.CaptureSampleRate))
	}
	if a.PlaybackSampleRate != 0 && a.PlaybackSampleRate != pcm.PlaybackSampleRate {
		errs = append(errs, fmt.Errorf("audio.playback_sample_rate %d is unsupported; the live protocol emits %d", a.PlaybackSampleRate, pcm.PlaybackSampleRate))
	}
	if a.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", a.FrameSize))
	}
	if a.FrameBuffer < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_buffer %d must be positive", a.FrameBuffer))
	}
	if a.SendQueue < 0 {
		errs = append(errs, fmt.Errorf("audio.send_queue %d must be positive", a.SendQueue))
	}
	if a.TranscriptLines < 0 {
		errs = append(errs, fmt.Errorf("audio.transcript_lines %d must be positive", a.TranscriptLines))
	}
	if a.SpeakerBuffer < 0 {
		errs = append(errs, fmt.Errorf("audio.speaker_buffer %v must not be negative", a.SpeakerBuffer))
	}

	// Live
	validateProviderName("live", cfg.Live.Provider.Name)
	if a.Devices && cfg.Live.Provider.APIKey == "" {
		slog.Warn("live provider has no API key; sessions will fail to connect",
			"provider", cfg.Live.Provider.Name, "env", APIKeyEnv(cfg.Live.Provider.Name))
	}

	// Content
	seen := make(map[string]int)
	for i, e := range cfg.Content.ContentEntries() {
		prefix := "content.primary"
		if i > 0 {
			prefix = fmt.Sprintf("content.fallbacks[%d]", i-1)
		}
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[e.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of entry %d", prefix, e.Name, prev))
		}
		seen[e.Name] = i
		validateProviderName("content", e.Name)
	}
	if cfg.Content.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("content.poll_interval %v must not be negative", cfg.Content.PollInterval))
	}
	cb := cfg.Content.CircuitBreaker
	if cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("content.circuit_breaker values must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
