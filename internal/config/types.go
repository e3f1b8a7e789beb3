package config

type Config struct {
	Server    ServerConfig    `json:"server"`
	Auth      AuthConfig      `json:"auth"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Stream    StreamConfig    `json:"stream,omitempty"`
	Provider  ProviderConfig  `json:"provider"`
	Logging   LoggingConfig   `json:"logging"`
	Pprof     PprofConfig     `json:"pprof,omitempty"`
	Janitor   JanitorConfig   `json:"janitor,omitempty"`
}

// ServerConfig controls the public HTTP listener.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type ServerConfig struct {
	Addr         string `json:"addr,omitempty"` // default ":8080"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// AuthConfig provisions the credential set accepted by the daemon.
//
// Backend values:
//   - "static": tokens are listed inline (hot-reloadable via config watch)
//   - "sqlite": tokens live in a SQLite table (optional build tag)
type AuthConfig struct {
	Backend string       `json:"backend,omitempty"` // default "static"
	Tokens  []TokenEntry `json:"tokens,omitempty"`
	SQLite  SQLiteConfig `json:"sqlite,omitempty"`
}

type TokenEntry struct {
	Token string `json:"token"`
	// Expires is an RFC3339 timestamp; empty means no expiry.
	Expires  string `json:"expires,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

type SQLiteConfig struct {
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// RateLimitConfig controls admission of mutating requests.
//
// Windows are fixed and wall-clock aligned (not sliding). This trades burst
// tolerance at window boundaries for a trivially correct concurrent
// implementation; see ratelimit package docs.
//
// Scope values: "credential" (default) or "global".
type RateLimitConfig struct {
	Ceiling     int    `json:"ceiling,omitempty"` // default 60
	Window      string `json:"window,omitempty"`  // default "1m"
	Scope       string `json:"scope,omitempty"`
	ExemptReads *bool  `json:"exempt_reads,omitempty"` // default true
}

// DispatchConfig controls the worker pool and retry behavior.
type DispatchConfig struct {
	MaxWorkers int `json:"max_workers,omitempty"` // default 64

	RetryMax      int    `json:"retry_max,omitempty"`       // total attempt budget, default 3
	BackoffBase   string `json:"backoff_base,omitempty"`    // default "250ms"
	BackoffCap    string `json:"backoff_cap,omitempty"`     // default "10s"
	BackoffJitter string `json:"backoff_jitter,omitempty"`  // fraction, default "0.2"
	CallTimeout   string `json:"call_timeout,omitempty"`    // default "10s"
	OutboundRPS   int    `json:"outbound_rps,omitempty"`    // provider pacing, default 25
	ShutdownGrace string `json:"shutdown_grace,omitempty"`  // default "10s"
	Retention     string `json:"retention,omitempty"`       // terminal record retention, default "1h"
}

type StreamConfig struct {
	// Buffer is the per-subscriber delivery buffer; default 16.
	Buffer int `json:"buffer,omitempty"`
}

// ProviderConfig selects and configures the external messaging provider.
//
// Driver values: "http" (generic JSON webhook) or "telegram".
type ProviderConfig struct {
	Driver   string             `json:"driver"`
	HTTP     HTTPProviderConfig `json:"http,omitempty"`
	Telegram TeleProviderConfig `json:"telegram,omitempty"`
}

type HTTPProviderConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	Timeout  string `json:"timeout,omitempty"` // default "10s"
}

type TeleProviderConfig struct {
	Token string `json:"token,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"` // default "info"
	Console *bool             `json:"console,omitempty"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note: prefer binding to localhost (e.g. "127.0.0.1:6060").
type PprofConfig struct {
	Enabled              bool   `json:"enabled"`
	Address              string `json:"address,omitempty"`
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
}

// JanitorConfig controls periodic cleanup of in-memory state.
type JanitorConfig struct {
	// Spec is a cron spec ("@every 1m" style accepted); default "@every 1m".
	Spec string `json:"spec,omitempty"`
}
