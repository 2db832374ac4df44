// Package config handles Herald configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./herald.yaml, ~/.config/herald/herald.yaml, /etc/herald/herald.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"herald.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "herald", "herald.yaml"))
	}

	paths = append(paths, "/etc/herald/herald.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Herald configuration.
type Config struct {
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Perplexity PerplexityConfig `yaml:"perplexity"`
	Session    SessionConfig    `yaml:"session"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
}

// OpenAIConfig defines the chat-completion model settings.
type OpenAIConfig struct {
	// APIKey falls back to the OPENAI_API_KEY environment variable
	// when empty.
	APIKey string `yaml:"api_key"`
	// BaseURL defaults to the public OpenAI endpoint. Point it at any
	// OpenAI-compatible server for local models.
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// PerplexityConfig defines the web search provider settings.
type PerplexityConfig struct {
	// APIKey falls back to the PERPLEXITY_API_KEY environment variable
	// when empty. A missing key is reported on first use, not at startup.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// SessionConfig defines per-thread conversation behavior.
type SessionConfig struct {
	UserID   string `yaml:"user_id"`
	ThreadID string `yaml:"thread_id"`
	// HistoryLimit is how many persisted messages seed a fresh turn.
	HistoryLimit int `yaml:"history_limit"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Perplexity: PerplexityConfig{
			Model: "sonar",
		},
		Session: SessionConfig{
			UserID:       "local",
			ThreadID:     "default",
			HistoryLimit: 10,
		},
		DataDir: "data",
	}
	cfg.applyEnv()
	return cfg
}

// applyEnv fills API keys from the environment when the config file
// leaves them empty.
func (c *Config) applyEnv() {
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Perplexity.APIKey == "" {
		c.Perplexity.APIKey = os.Getenv("PERPLEXITY_API_KEY")
	}
}

// DatabasePath returns the conversation database location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "conversations.db")
}

// RequestTimeout is the fixed per-call timeout applied to model and
// search requests. There is no retry layer; a call either returns
// within this window or fails.
const RequestTimeout = 15 * time.Second
