package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/ramadascd1-rgb/FUNtastic/internal/config"
	"github.com/ramadascd1-rgb/FUNtastic/internal/content"
	contentgemini "github.com/ramadascd1-rgb/FUNtastic/internal/content/gemini"
	contentopenai "github.com/ramadascd1-rgb/FUNtastic/internal/content/openai"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live/gemini"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live/genailive"
	oailive "github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live/openai"
)

// registerBuiltinProviders wires every provider that ships with the binary
// into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Live ──────────────────────────────────────────────────────────────────

	reg.RegisterLive("gemini-live", func(_ context.Context, entry config.ProviderEntry) (live.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if n := optInt(entry.Options, "event_buffer"); n > 0 {
			opts = append(opts, gemini.WithEventBuffer(n))
		}
		return gemini.New(entry.APIKey, opts...), nil
	})

	reg.RegisterLive("genai-live", func(ctx context.Context, entry config.ProviderEntry) (live.Provider, error) {
		var opts []genailive.Option
		if entry.Model != "" {
			opts = append(opts, genailive.WithModel(entry.Model))
		}
		return genailive.NewWithAPIKey(ctx, entry.APIKey, opts...)
	})

	reg.RegisterLive("openai-realtime", func(_ context.Context, entry config.ProviderEntry) (live.Provider, error) {
		var opts []oailive.Option
		if entry.Model != "" {
			opts = append(opts, oailive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oailive.WithBaseURL(entry.BaseURL))
		}
		return oailive.New(entry.APIKey, opts...), nil
	})

	// ── Content ───────────────────────────────────────────────────────────────

	reg.RegisterContent("gemini", func(ctx context.Context, entry config.ProviderEntry, cc config.ContentConfig) (content.Backend, error) {
		image := optString(entry.Options, "image_model")
		if image == "" {
			image = entry.Model
		}
		return contentgemini.NewWithAPIKey(ctx, entry.APIKey,
			contentgemini.WithImageModel(image),
			contentgemini.WithVideoModel(optString(entry.Options, "video_model")),
			contentgemini.WithCaptionModel(optString(entry.Options, "caption_model")),
			contentgemini.WithPollInterval(cc.PollInterval),
		)
	})

	reg.RegisterContent("openai", func(_ context.Context, entry config.ProviderEntry, _ config.ContentConfig) (content.Backend, error) {
		var opts []contentopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, contentopenai.WithBaseURL(entry.BaseURL))
		}
		if image := optString(entry.Options, "image_model"); image != "" {
			opts = append(opts, contentopenai.WithImageModel(image))
		} else if entry.Model != "" {
			opts = append(opts, contentopenai.WithImageModel(entry.Model))
		}
		if caption := optString(entry.Options, "caption_model"); caption != "" {
			opts = append(opts, contentopenai.WithCaptionModel(caption))
		}
		if d, err := time.ParseDuration(optString(entry.Options, "timeout")); err == nil {
			opts = append(opts, contentopenai.WithTimeout(d))
		}
		return contentopenai.New(entry.APIKey, opts...)
	})

	slog.Debug("registered providers", "live", reg.LiveNames(), "content", reg.ContentNames())
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer value from a provider Options map. YAML decodes
// whole numbers as int.
func optInt(opts map[string]any, key string) int {
	n, _ := opts[key].(int)
	return n
}
