package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultModel             = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens         = 1024
	DefaultTemperature       = 0.7
	DefaultEmbeddingModel    = "text-embedding-3-small"
	DefaultEmbeddingTimeout  = 5000
	DefaultAnalyzerTimeout   = 8000
	DefaultGenerationTimeout = 60000

	DefaultSessionTTLMinutes      = 30
	DefaultMaxRecentMessages      = 50
	DefaultConsolidationThreshold = 100
	DefaultMaintenanceSchedule    = "0 0 4 * * *"
	DefaultAnalyticsBufferSize    = 256
)

type Config struct {
	Provider    ProviderConfig    `json:"provider"`
	Memory      MemoryConfig      `json:"memory"`
	Session     SessionConfig     `json:"session"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Analytics   AnalyticsConfig   `json:"analytics"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type MemoryConfig struct {
	DBPath    string          `json:"dbPath,omitempty"`
	Model     string          `json:"model,omitempty"`
	MaxTokens int             `json:"maxTokens,omitempty"`
	Provider  *ProviderConfig `json:"provider,omitempty"`
	Embedding EmbeddingConfig `json:"embedding"`
}

type EmbeddingConfig struct {
	Model     string `json:"model,omitempty"`
	Dimension int    `json:"dimension,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

type SessionConfig struct {
	TTLMinutes        int `json:"ttlMinutes,omitempty"`
	MaxRecentMessages int `json:"maxRecentMessages,omitempty"`
}

type MaintenanceConfig struct {
	Schedule               string `json:"schedule,omitempty"`
	ConsolidationThreshold int    `json:"consolidationThreshold,omitempty"`
}

type AnalyticsConfig struct {
	Enabled    bool `json:"enabled"`
	BufferSize int  `json:"bufferSize,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{},
		Memory: MemoryConfig{
			Model:     DefaultModel,
			MaxTokens: DefaultMaxTokens,
			Embedding: EmbeddingConfig{
				Model:     DefaultEmbeddingModel,
				TimeoutMs: DefaultEmbeddingTimeout,
			},
		},
		Session: SessionConfig{
			TTLMinutes:        DefaultSessionTTLMinutes,
			MaxRecentMessages: DefaultMaxRecentMessages,
		},
		Maintenance: MaintenanceConfig{
			Schedule:               DefaultMaintenanceSchedule,
			ConsolidationThreshold: DefaultConsolidationThreshold,
		},
		Analytics: AnalyticsConfig{
			Enabled:    true,
			BufferSize: DefaultAnalyticsBufferSize,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".persona")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func DefaultDBPath() string {
	return filepath.Join(ConfigDir(), "data", "persona.db")
}

func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if key := os.Getenv("PERSONA_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Memory.DBPath == "" {
		c.Memory.DBPath = DefaultDBPath()
	}
	if c.Memory.Model == "" {
		c.Memory.Model = DefaultModel
	}
	if c.Memory.MaxTokens <= 0 {
		c.Memory.MaxTokens = DefaultMaxTokens
	}
	if c.Memory.Embedding.Model == "" {
		c.Memory.Embedding.Model = DefaultEmbeddingModel
	}
	if c.Memory.Embedding.TimeoutMs <= 0 {
		c.Memory.Embedding.TimeoutMs = DefaultEmbeddingTimeout
	}
	if c.Session.TTLMinutes <= 0 {
		c.Session.TTLMinutes = DefaultSessionTTLMinutes
	}
	if c.Session.MaxRecentMessages <= 0 {
		c.Session.MaxRecentMessages = DefaultMaxRecentMessages
	}
	if c.Maintenance.Schedule == "" {
		c.Maintenance.Schedule = DefaultMaintenanceSchedule
	}
	if c.Maintenance.ConsolidationThreshold <= 0 {
		c.Maintenance.ConsolidationThreshold = DefaultConsolidationThreshold
	}
	if c.Analytics.BufferSize <= 0 {
		c.Analytics.BufferSize = DefaultAnalyticsBufferSize
	}
}

// SaveConfig writes cfg to the default config path, creating the directory
// on first run.
func SaveConfig(cfg *Config) error {
	if err := os.MkdirAll(ConfigDir(), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(ConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// MemoryProviderAPIKey resolves the key for memory-subsystem LLM calls,
// preferring the memory-specific provider override.
func (c *Config) MemoryProviderAPIKey() string {
	if c.Memory.Provider != nil && c.Memory.Provider.APIKey != "" {
		return c.Memory.Provider.APIKey
	}
	return c.Provider.APIKey
}

func (c *Config) MemoryProviderBaseURL() string {
	if c.Memory.Provider != nil && c.Memory.Provider.BaseURL != "" {
		return c.Memory.Provider.BaseURL
	}
	return c.Provider.BaseURL
}
