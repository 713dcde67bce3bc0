// Package config provides the configuration schema, loader and provider
// registry for the FUNtastic buddy server.
package config

import "time"

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

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultLiveProvider    = "gemini-live"
	DefaultContentProvider = "gemini"
	DefaultVoice           = "Kore"
	DefaultTranscriptLines = 5
	DefaultSendQueue       = 32
	DefaultFrameBuffer     = 8
	DefaultPollInterval    = 5 * time.Second
)

// DefaultInstructions is the persona used when live.instructions is empty.
const DefaultInstructions = "You are FUNtastic Buddy, a high-energy, friendly AI living in a social media app. " +
	"Keep responses short, fun, and full of personality. Use emojis. " +
	"If the user sounds bored, suggest something fun!"

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Live    LiveConfig    `yaml:"live"`
	Audio   AudioConfig   `yaml:"audio"`
	Content ContentConfig `yaml:"content"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP control API (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProviderEntry is the configuration block shared by all provider kinds. Name
// selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "gemini-live").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. When empty it is taken from
	// the provider's environment variable, see [APIKeyEnv].
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// LiveConfig configures the realtime voice session.
type LiveConfig struct {
	Provider ProviderEntry `yaml:"provider"`

	// Voice is the prebuilt voice the model speaks with.
	Voice string `yaml:"voice"`

	// Instructions is the system instruction that shapes the persona.
	Instructions string `yaml:"instructions"`

	// DisableTranscripts turns off input and output transcription.
	DisableTranscripts bool `yaml:"disable_transcripts"`
}

// AudioConfig holds capture and playback settings. The sample rates are
// fixed by the live protocol; they may be stated for documentation but any
// other value is rejected.
type AudioConfig struct {
	CaptureSampleRate  int `yaml:"capture_sample_rate"`
	PlaybackSampleRate int `yaml:"playback_sample_rate"`

	// FrameSize is the number of samples per captured frame.
	FrameSize int `yaml:"frame_size"`

	// FrameBuffer is how many captured frames may wait for the pipeline
	// before the device drops new ones.
	FrameBuffer int `yaml:"frame_buffer"`

	// SendQueue bounds the chunks waiting for the transport.
	SendQueue int `yaml:"send_queue"`

	// TranscriptLines is the size of the rolling transcript window.
	TranscriptLines int `yaml:"transcript_lines"`

	// SpeakerBuffer is the output device buffer length.
	SpeakerBuffer time.Duration `yaml:"speaker_buffer"`

	// Devices opens the local microphone and speaker. Without devices only
	// the content API is served.
	Devices bool `yaml:"devices"`
}

// ContentConfig selects the media generation backends. Fallbacks are tried
// in order when the primary fails or its circuit breaker is open.
type ContentConfig struct {
	Primary   ProviderEntry   `yaml:"primary"`
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// PollInterval is how often a running video job is checked.
	PollInterval time.Duration `yaml:"poll_interval"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the per-backend breakers of the content
// failover group. Zero values select the breaker defaults.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ContentEntries returns the primary followed by every fallback.
func (c ContentConfig) ContentEntries() []ProviderEntry {
	out := make([]ProviderEntry, 0, 1+len(c.Fallbacks))
	out = append(out, c.Primary)
	return append(out, c.Fallbacks...)
}
