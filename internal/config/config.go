package config

import (
	"time"

	"github.com/parlorhq/parlor/internal/ailink"
	"github.com/parlorhq/parlor/internal/core"
)

// Config represents the complete application configuration.
//
// Values are layered, lowest first: built-in defaults, the config file read
// through viper, environment variables, then runtime overrides.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Relay    RelayConfig    `mapstructure:"relay"`
	AILink   ailink.Config  `mapstructure:"ailink"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Debug    DebugConfig    `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RelayConfig tunes the rate limiter, the summarizer and the turn pipeline.
type RelayConfig struct {
	// Window and MaxPerWindow define the per-user sliding window.
	Window       time.Duration `mapstructure:"window"`
	MaxPerWindow int           `mapstructure:"max_per_window"`

	// CompactionThreshold is the number of user messages that triggers a
	// summary rewrite.
	CompactionThreshold int `mapstructure:"compaction_threshold"`
	SummaryWordCap      int `mapstructure:"summary_word_cap"`

	// MaxBufferBytes caps the uncompacted transcript. Oldest entries are
	// dropped once it is exceeded.
	MaxBufferBytes int `mapstructure:"max_buffer_bytes"`

	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`

	// MaxTrackedUsers bounds the in-memory rate windows.
	MaxTrackedUsers int           `mapstructure:"max_tracked_users"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

// RateLimitPolicy returns the limiter policy with defaults applied.
func (c RelayConfig) RateLimitPolicy() core.RateLimitPolicy {
	return core.RateLimitPolicy{Window: c.Window, MaxPerWindow: c.MaxPerWindow}.WithDefaults()
}

// TelegramConfig configures the long-polling transport.
type TelegramConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Token       string        `mapstructure:"token"`
	APIBase     string        `mapstructure:"api_base"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	MaxInFlight int           `mapstructure:"max_in_flight"`
	Greeting    string        `mapstructure:"greeting"`
}

// NotifyConfig configures operator alerts.
type NotifyConfig struct {
	// QueueSize bounds alerts waiting for delivery.
	QueueSize int `mapstructure:"queue_size"`

	// History records every alert in the store.
	History bool `mapstructure:"history"`

	// MediaKeywords trigger a media request alert. Empty uses the built-in list.
	MediaKeywords []string `mapstructure:"media_keywords"`

	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig configures mail delivery. Mail is disabled when Host is empty.
type SMTPConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	From        string        `mapstructure:"from"`
	To          []string      `mapstructure:"to"`
	ImplicitTLS bool          `mapstructure:"implicit_tls"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	// Metrics are also available at the main HTTP port in JSON format
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled exposes pprof under /debug/pprof when Enabled is also set.
	// Only enable in development or staging.
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
