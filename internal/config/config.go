// Package config provides configuration loading and structs for the Underwriter client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file. They are read once at load time.
const (
	EnvAPIBase = "UNDERWRITER_API_BASE"
	EnvDebug   = "UNDERWRITER_DEBUG"
)

// Config holds all configuration for the application.
// It is resolved once at startup and must not be mutated afterwards.
type Config struct {
	Debug  bool         `yaml:"debug"`
	API    APIConfig    `yaml:"api"`
	Server ServerConfig `yaml:"server"`
	Upload UploadConfig `yaml:"upload"`
	Watch  WatchConfig  `yaml:"watch"`
	UI     UIConfig     `yaml:"ui"`
}

// APIConfig holds the analysis backend location.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout is the transport timeout; zero keeps the http.Client default (none).
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig holds settings for the local web UI.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// UploadConfig holds the file-type filter applied by upload controls.
type UploadConfig struct {
	Extensions []string `yaml:"extensions"`
}

// WatchConfig holds inbox directory settings. Files dropped into a watched
// directory are uploaded as policies.
type WatchConfig struct {
	Directories   []string `yaml:"directories"`
	Extensions    []string `yaml:"extensions"`
	Recursive     *bool    `yaml:"recursive"`
	RatePerSecond float64  `yaml:"rate_per_second"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// UIConfig holds front-end settings.
type UIConfig struct {
	NoColor bool `yaml:"no_color"`
	// LogFile receives diagnostics while the terminal UI owns the screen.
	LogFile string `yaml:"log_file"`
	// DocumentCacheTTL is how long parsed policy documents stay cached by
	// both front-ends. Negative disables expiry.
	DocumentCacheTTL time.Duration `yaml:"document_cache_ttl"`
}

// Addr returns host:port for the web UI listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads and parses the config file at path, applies environment overrides,
// expands paths, and applies defaults.
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
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
	if cfg.UI.LogFile != "" {
		cfg.UI.LogFile = expandPath(cfg.UI.LogFile, configDir)
	}
	return &cfg, nil
}

// Default returns a config with defaults and environment overrides applied,
// for running without a config file.
func Default() (*Config, error) {
	var cfg Config
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvAPIBase)); v != "" {
		cfg.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDebug)); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDebug, err)
		}
		cfg.Debug = debug
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
