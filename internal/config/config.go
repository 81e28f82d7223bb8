package config

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultAPIBase is the remote API used when nothing is stored in the database.
const DefaultAPIBase = "http://localhost:3001/api"

// Config holds application configuration.
type Config struct {
	// DefaultAPIBase is the fallback remote API base URL.
	// The value persisted via 'synapse config set-api-base' always wins over this.
	DefaultAPIBase string `json:"default_api_base,omitempty"`

	// RequestTimeoutMs bounds each remote write request.
	RequestTimeoutMs int `json:"request_timeout_ms,omitempty"`

	// RetryBaseBackoffMs is the delay before the first retry of a failed entry.
	// Doubled on every further failure, capped at RetryMaxBackoffMs.
	RetryBaseBackoffMs int `json:"retry_base_backoff_ms,omitempty"`

	// RetryMaxBackoffMs caps the retry delay.
	RetryMaxBackoffMs int `json:"retry_max_backoff_ms,omitempty"`

	// RetryMaxAttempts is the number of failed sync attempts after which an entry is parked.
	// Parked entries stay local until requeued or cleared.
	RetryMaxAttempts int `json:"retry_max_attempts,omitempty"`

	// SyncOnCapture triggers a sync pass right after every capture.
	SyncOnCapture *bool `json:"sync_on_capture,omitempty"`

	// DisableRemote turns off queueing for remote sync entirely (CSV-only mode).
	DisableRemote bool `json:"disable_remote,omitempty"`

	// ContentMaxChars is the maximum character count for captured content.
	ContentMaxChars int `json:"content_max_chars,omitempty"`

	// AllowedPaths is an allowlist of directories for export.
	// Paths outside ~/.synapse/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export.
	// When true, any directory is allowed (but symlink and extension checks still apply).
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `json:"log_level,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	syncOnCapture := true
	return &Config{
		DefaultAPIBase:     DefaultAPIBase,
		RequestTimeoutMs:   15000,
		RetryBaseBackoffMs: 30000,
		RetryMaxBackoffMs:  3600000,
		RetryMaxAttempts:   10,
		SyncOnCapture:      &syncOnCapture,
		ContentMaxChars:    500000,
		LogLevel:           "info",
	}
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// RetryBaseBackoff returns the initial retry delay as a duration.
func (c *Config) RetryBaseBackoff() time.Duration {
	return time.Duration(c.RetryBaseBackoffMs) * time.Millisecond
}

// RetryMaxBackoff returns the retry delay cap as a duration.
func (c *Config) RetryMaxBackoff() time.Duration {
	return time.Duration(c.RetryMaxBackoffMs) * time.Millisecond
}

// ShouldSyncOnCapture reports whether a capture triggers an immediate sync pass.
func (c *Config) ShouldSyncOnCapture() bool {
	return c.SyncOnCapture != nil && *c.SyncOnCapture
}

// SlogLevel maps LogLevel to a slog.Level. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.synapse.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// BaseDir resolves the data directory: $SYNAPSE_HOME if set, else ~/.synapse.
func BaseDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("SYNAPSE_HOME")); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".synapse"), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.DefaultAPIBase = firstString(overlay.DefaultAPIBase, base.DefaultAPIBase)
	result.LogLevel = firstString(overlay.LogLevel, base.LogLevel)

	// Scalars: overlay wins if non-zero, else base
	result.RequestTimeoutMs = firstInt(overlay.RequestTimeoutMs, base.RequestTimeoutMs)
	result.RetryBaseBackoffMs = firstInt(overlay.RetryBaseBackoffMs, base.RetryBaseBackoffMs)
	result.RetryMaxBackoffMs = firstInt(overlay.RetryMaxBackoffMs, base.RetryMaxBackoffMs)
	result.RetryMaxAttempts = firstInt(overlay.RetryMaxAttempts, base.RetryMaxAttempts)
	result.ContentMaxChars = firstInt(overlay.ContentMaxChars, base.ContentMaxChars)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Tri-state: explicit overlay value wins, including false
	result.SyncOnCapture = base.SyncOnCapture
	if overlay.SyncOnCapture != nil {
		result.SyncOnCapture = overlay.SyncOnCapture
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.DisableRemote = base.DisableRemote || overlay.DisableRemote

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstString(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func firstInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
