package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ramadascd1-rgb/FUNtastic/internal/config"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "buddy.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Live.Provider.Name != "openai-realtime" {
		t.Errorf("live.provider.name = %q", cfg.Live.Provider.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestAPIKeyEnv(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"gemini":          config.EnvGeminiAPIKey,
		"gemini-live":     config.EnvGeminiAPIKey,
		"genai-live":      config.EnvGeminiAPIKey,
		"openai":          config.EnvOpenAIAPIKey,
		"openai-realtime": config.EnvOpenAIAPIKey,
		"custom":          "",
	}
	for name, want := range tests {
		if got := config.APIKeyEnv(name); got != want {
			t.Errorf("APIKeyEnv(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		config.EnvGeminiAPIKey: "from-env-gemini",
		config.EnvOpenAIAPIKey: "from-env-openai",
	}
	cfg := &config.Config{
		Live: config.LiveConfig{Provider: config.ProviderEntry{Name: "gemini-live"}},
		Content: config.ContentConfig{
			Primary: config.ProviderEntry{Name: "gemini", APIKey: "explicit"},
			Fallbacks: []config.ProviderEntry{
				{Name: "openai"},
				{Name: "custom"},
			},
		},
	}
	config.ApplyEnv(cfg, func(k string) string { return env[k] })

	if cfg.Live.Provider.APIKey != "from-env-gemini" {
		t.Errorf("live key = %q", cfg.Live.Provider.APIKey)
	}
	if cfg.Content.Primary.APIKey != "explicit" {
		t.Errorf("explicit key overwritten: %q", cfg.Content.Primary.APIKey)
	}
	if cfg.Content.Fallbacks[0].APIKey != "from-env-openai" {
		t.Errorf("openai key = %q", cfg.Content.Fallbacks[0].APIKey)
	}
	if cfg.Content.Fallbacks[1].APIKey != "" {
		t.Errorf("custom key = %q, want empty", cfg.Content.Fallbacks[1].APIKey)
	}
}

func TestLoadDotEnv(t *testing.T) {
	// Mutates the process environment; not parallel.
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("FUNTASTIC_TEST_DOTENV=hello\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FUNTASTIC_TEST_DOTENV", "")
	os.Unsetenv("FUNTASTIC_TEST_DOTENV")

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("FUNTASTIC_TEST_DOTENV"); got != "hello" {
		t.Errorf("FUNTASTIC_TEST_DOTENV = %q, want hello", got)
	}
}
