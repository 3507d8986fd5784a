package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Memory.Model != DefaultModel {
		t.Fatalf("expected default model %q, got %q", DefaultModel, cfg.Memory.Model)
	}
	if cfg.Memory.MaxTokens != DefaultMaxTokens {
		t.Fatalf("expected default max tokens %d, got %d", DefaultMaxTokens, cfg.Memory.MaxTokens)
	}
	if cfg.Session.TTLMinutes != DefaultSessionTTLMinutes {
		t.Fatalf("expected TTL %d, got %d", DefaultSessionTTLMinutes, cfg.Session.TTLMinutes)
	}
	if cfg.Session.MaxRecentMessages != DefaultMaxRecentMessages {
		t.Fatalf("expected max recent %d, got %d", DefaultMaxRecentMessages, cfg.Session.MaxRecentMessages)
	}
	if cfg.Maintenance.ConsolidationThreshold != DefaultConsolidationThreshold {
		t.Fatalf("expected threshold %d, got %d", DefaultConsolidationThreshold, cfg.Maintenance.ConsolidationThreshold)
	}
	if !cfg.Analytics.Enabled {
		t.Fatalf("expected analytics enabled by default")
	}
}

func TestLoadConfigFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfigFrom error: %v", err)
	}
	if cfg.Memory.Model != DefaultModel {
		t.Fatalf("expected defaults for missing file, got model %q", cfg.Memory.Model)
	}
	if cfg.Memory.DBPath == "" {
		t.Fatalf("expected a derived db path")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := map[string]any{
		"provider": map[string]any{"apiKey": "sk-test", "baseUrl": "https://api.example.com/v1"},
		"memory": map[string]any{
			"model":     "custom-model",
			"maxTokens": 2048,
		},
		"session": map[string]any{"ttlMinutes": 10},
	}
	data, _ := json.Marshal(doc)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom error: %v", err)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Fatalf("expected api key from file, got %q", cfg.Provider.APIKey)
	}
	if cfg.Memory.Model != "custom-model" || cfg.Memory.MaxTokens != 2048 {
		t.Fatalf("expected overrides applied, got %+v", cfg.Memory)
	}
	if cfg.Session.TTLMinutes != 10 {
		t.Fatalf("expected TTL override, got %d", cfg.Session.TTLMinutes)
	}
	// Unset fields still fall back to defaults.
	if cfg.Session.MaxRecentMessages != DefaultMaxRecentMessages {
		t.Fatalf("expected default max recent, got %d", cfg.Session.MaxRecentMessages)
	}
	if cfg.Maintenance.Schedule != DefaultMaintenanceSchedule {
		t.Fatalf("expected default schedule, got %q", cfg.Maintenance.Schedule)
	}
}

func TestLoadConfigEnvOverridesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"provider":{"apiKey":"from-file"}}`), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PERSONA_API_KEY", "from-env")

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom error: %v", err)
	}
	if cfg.Provider.APIKey != "from-env" {
		t.Fatalf("env var should win, got %q", cfg.Provider.APIKey)
	}
}

func TestLoadConfigRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfigFrom(path); err == nil {
		t.Fatalf("expected parse error for malformed config")
	}
}

func TestMemoryProviderOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider.APIKey = "root-key"
	cfg.Provider.BaseURL = "https://root.example.com"

	if got := cfg.MemoryProviderAPIKey(); got != "root-key" {
		t.Fatalf("expected root key fallback, got %q", got)
	}

	cfg.Memory.Provider = &ProviderConfig{APIKey: "memory-key", BaseURL: "https://memory.example.com"}
	if got := cfg.MemoryProviderAPIKey(); got != "memory-key" {
		t.Fatalf("expected memory override, got %q", got)
	}
	if got := cfg.MemoryProviderBaseURL(); got != "https://memory.example.com" {
		t.Fatalf("expected memory base url override, got %q", got)
	}
}
