package config

import "time"

// DefaultExtensions are the file types the backend can ingest.
var DefaultExtensions = []string{".pdf", ".docx", ".html", ".txt", ".md"}

const (
	DefaultAPIBaseURL     = "http://localhost:8000"
	DefaultWSBaseURL      = "ws://localhost:8000"
	DefaultRequestTimeout = 120 * time.Second
	DefaultRealtimePath   = "/ws/processing"
	DefaultMaxFileSize    = 50 << 20
	DefaultPollInterval   = 2 * time.Second
	DefaultRealtimeGrace  = 10 * time.Second
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.APIBaseURL == "" {
		cfg.Server.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.Server.WSBaseURL == "" {
		cfg.Server.WSBaseURL = DefaultWSBaseURL
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Realtime.Path == "" {
		cfg.Realtime.Path = DefaultRealtimePath
	}
	if cfg.Realtime.InitialBackoff == 0 {
		cfg.Realtime.InitialBackoff = time.Second
	}
	if cfg.Realtime.MaxBackoff == 0 {
		cfg.Realtime.MaxBackoff = 30 * time.Second
	}
	if cfg.Realtime.Jitter == 0 {
		cfg.Realtime.Jitter = 0.2
	}
	if cfg.Upload.Extensions == nil {
		cfg.Upload.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Upload.MaxFileSize == 0 {
		cfg.Upload.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Upload.PollInterval == 0 {
		cfg.Upload.PollInterval = DefaultPollInterval
	}
	if cfg.Upload.RealtimeGrace == 0 {
		cfg.Upload.RealtimeGrace = DefaultRealtimeGrace
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = append([]string(nil), cfg.Upload.Extensions...)
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
