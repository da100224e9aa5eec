package config

import (
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"

	"github.com/parlorhq/parlor/internal/core"
)

// EnvVarSpec maps one environment variable onto a config path.
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// setting is one config key: its default (nil for none) and the env var,
// without prefix, that overrides it ("" for none). Durations travel as
// strings and are decoded by mapstructure.
type setting struct {
	key string
	def any
	env EnvVarSpec
}

func str(key string, def any, env string) setting {
	return setting{key: key, def: def, env: EnvVarSpec{Name: env, Type: EnvString}}
}

func num(key string, def any, env string) setting {
	return setting{key: key, def: def, env: EnvVarSpec{Name: env, Type: EnvInt}}
}

func flag(key string, def any, env string) setting {
	return setting{key: key, def: def, env: EnvVarSpec{Name: env, Type: EnvBool}}
}

// settings lists every scalar key. Provider maps under ailink are handled by
// applyAILinkEnv because their keys are user-chosen.
func settings() []setting {
	return []setting{
		str("server.host", "localhost", "HOST"),
		num("server.port", 8080, "PORT"),
		str("server.read_timeout", "30s", "READ_TIMEOUT"),
		str("server.write_timeout", "90s", "WRITE_TIMEOUT"),
		str("server.idle_timeout", "120s", "IDLE_TIMEOUT"),
		str("server.shutdown_timeout", "10s", "SHUTDOWN_TIMEOUT"),

		str("logging.level", "info", "LOG_LEVEL"),
		str("logging.profile", "SIMPLE", "LOG_PROFILE"),

		str("store.driver", "libsql", "DB_DRIVER"),
		str("store.path", DefaultStorePath(), "DB_PATH"),
		str("store.url", "", "DB_URL"),
		str("store.auth_token", "", "DB_AUTH_TOKEN"),

		str("relay.window", core.DefaultRateWindow.String(), "RELAY_WINDOW"),
		num("relay.max_per_window", core.DefaultMaxPerWindow, "RELAY_MAX_PER_WINDOW"),
		num("relay.compaction_threshold", core.DefaultCompactionThreshold, "RELAY_COMPACTION_THRESHOLD"),
		num("relay.summary_word_cap", core.DefaultSummaryWordCap, "RELAY_SUMMARY_WORD_CAP"),
		num("relay.max_buffer_bytes", core.DefaultMaxBufferBytes, "RELAY_MAX_BUFFER_BYTES"),
		str("relay.generation_timeout", "60s", "RELAY_GENERATION_TIMEOUT"),
		num("relay.max_tracked_users", 10000, "RELAY_MAX_TRACKED_USERS"),
		str("relay.sweep_interval", "5m", "RELAY_SWEEP_INTERVAL"),

		str("ailink.default_provider", nil, "AILINK_DEFAULT_PROVIDER"),
		str("ailink.default_timeout", "60s", "AILINK_DEFAULT_TIMEOUT"),
		str("ailink.prompts_dir", nil, "AILINK_PROMPTS_DIR"),
		flag("ailink.debug.capture_raw_enabled", false, "AILINK_DEBUG_CAPTURE_RAW_ENABLED"),
		num("ailink.debug.capture_raw_max_bytes", 2048, "AILINK_DEBUG_CAPTURE_RAW_MAX_BYTES"),

		flag("telegram.enabled", false, "TELEGRAM_ENABLED"),
		str("telegram.token", nil, "TELEGRAM_BOT_TOKEN"),
		str("telegram.api_base", "https://api.telegram.org", "TELEGRAM_API_BASE"),
		str("telegram.poll_timeout", "30s", "TELEGRAM_POLL_TIMEOUT"),
		num("telegram.max_in_flight", 64, "TELEGRAM_MAX_IN_FLIGHT"),

		num("notify.queue_size", 64, "NOTIFY_QUEUE_SIZE"),
		flag("notify.history", true, "NOTIFY_HISTORY"),
		str("notify.media_keywords", nil, "NOTIFY_MEDIA_KEYWORDS"),
		str("notify.smtp.host", nil, "SMTP_HOST"),
		num("notify.smtp.port", 465, "SMTP_PORT"),
		str("notify.smtp.username", nil, "SMTP_USERNAME"),
		str("notify.smtp.password", nil, "SMTP_PASSWORD"),
		str("notify.smtp.from", nil, "SMTP_FROM"),
		str("notify.smtp.to", nil, "SMTP_TO"),
		flag("notify.smtp.implicit_tls", true, "SMTP_IMPLICIT_TLS"),
		str("notify.smtp.timeout", "15s", ""),

		flag("metrics.enabled", true, "METRICS_ENABLED"),
		num("metrics.port", 9090, "METRICS_PORT"),

		flag("health.enabled", true, "HEALTH_ENABLED"),

		flag("debug.enabled", false, "DEBUG_ENABLED"),
		flag("debug.pprof_enabled", false, "DEBUG_PPROF_ENABLED"),
	}
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	for _, s := range settings() {
		if s.def != nil {
			v.SetDefault(s.key, s.def)
		}
	}
}

// getEnvSpecs returns the {PREFIX}{NAME} environment mappings.
func getEnvSpecs() []EnvVarSpec {
	prefix := envPrefix()
	var specs []EnvVarSpec
	for _, s := range settings() {
		if s.env.Name == "" {
			continue
		}
		spec := s.env
		spec.Name = prefix + spec.Name
		spec.Path = strings.Split(s.key, ".")
		specs = append(specs, spec)
	}
	return specs
}
