package config

import (
	"strings"
	"time"
)

const (
	// DefaultAPIBase is the backend origin used when none is configured.
	DefaultAPIBase = "http://localhost:8000"
	// DefaultDocumentCacheTTL is how long parsed documents are cached.
	DefaultDocumentCacheTTL = 30 * time.Minute
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultAPIBase
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5173
	}
	if cfg.Upload.Extensions == nil {
		cfg.Upload.Extensions = []string{".pdf"}
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = append([]string(nil), cfg.Upload.Extensions...)
	}
	if cfg.Watch.RatePerSecond == 0 {
		cfg.Watch.RatePerSecond = 1
	}
	if cfg.UI.DocumentCacheTTL == 0 {
		cfg.UI.DocumentCacheTTL = DefaultDocumentCacheTTL
	}
}
