// Package config provides configuration loading and structs for the studyrag client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the file configuration.
const (
	EnvAPIURL = "STUDYRAG_API_URL"
	EnvWSURL  = "STUDYRAG_WS_URL"
	EnvDebug  = "STUDYRAG_DEBUG"
)

// Config holds all configuration for the client.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Upload   UploadConfig   `yaml:"upload"`
	Watch    WatchConfig    `yaml:"watch"`
}

// ServerConfig holds the backend endpoints.
type ServerConfig struct {
	APIBaseURL     string        `yaml:"api_base_url"`
	WSBaseURL      string        `yaml:"ws_base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// RealtimeConfig holds push channel settings.
type RealtimeConfig struct {
	Enabled        *bool         `yaml:"enabled"`
	Path           string        `yaml:"path"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Jitter         float64       `yaml:"jitter"`
}

// EnabledOrDefault returns whether the push channel is used; defaults to true when unset.
func (r *RealtimeConfig) EnabledOrDefault() bool {
	if r.Enabled != nil {
		return *r.Enabled
	}
	return true
}

// PushURL joins the websocket base URL and the channel path.
func (c *Config) PushURL() string {
	return strings.TrimRight(c.Server.WSBaseURL, "/") + "/" + strings.TrimLeft(c.Realtime.Path, "/")
}

// UploadConfig holds file submission settings.
type UploadConfig struct {
	Extensions    []string      `yaml:"extensions"`
	MaxFileSize   int64         `yaml:"max_file_size"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	RealtimeGrace time.Duration `yaml:"realtime_grace"`
}

// WatchConfig holds watch-folder settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, applies
// environment overrides and defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with defaults and environment overrides applied,
// for running without a config file.
func Default() *Config {
	var cfg Config
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	return &cfg
}

// ApplyEnv overrides endpoint and debug settings from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.Server.APIBaseURL = v
	}
	if v := os.Getenv(EnvWSURL); v != "" {
		cfg.Server.WSBaseURL = v
	}
	switch strings.ToLower(os.Getenv(EnvDebug)) {
	case "1", "true", "yes":
		cfg.Debug = true
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.APIBaseURL, "http://") && !strings.HasPrefix(c.Server.APIBaseURL, "https://") {
		return fmt.Errorf("api_base_url must be an http(s) URL, got %q", c.Server.APIBaseURL)
	}
	if !strings.HasPrefix(c.Server.WSBaseURL, "ws://") && !strings.HasPrefix(c.Server.WSBaseURL, "wss://") {
		return fmt.Errorf("ws_base_url must be a ws(s) URL, got %q", c.Server.WSBaseURL)
	}
	if c.Realtime.Jitter < 0 || c.Realtime.Jitter > 1 {
		return fmt.Errorf("realtime jitter must be within [0,1], got %v", c.Realtime.Jitter)
	}
	if c.Realtime.MaxBackoff < c.Realtime.InitialBackoff {
		return fmt.Errorf("max_backoff (%s) is below initial_backoff (%s)", c.Realtime.MaxBackoff, c.Realtime.InitialBackoff)
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
