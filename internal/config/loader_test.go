package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	// Test basic config loading with defaults
	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := LoadFrom(ctx, viper.New())
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("parlor"), "parlor.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.Equal(t, "", cfg.Store.URL)

		// Verify relay defaults
		assert.Equal(t, time.Hour, cfg.Relay.Window)
		assert.Equal(t, 30, cfg.Relay.MaxPerWindow)
		assert.Equal(t, 3, cfg.Relay.CompactionThreshold)
		assert.Equal(t, 300, cfg.Relay.SummaryWordCap)
		assert.Equal(t, 16384, cfg.Relay.MaxBufferBytes)
		assert.Equal(t, 60*time.Second, cfg.Relay.GenerationTimeout)
		assert.Equal(t, 10000, cfg.Relay.MaxTrackedUsers)
		assert.Equal(t, 5*time.Minute, cfg.Relay.SweepInterval)

		// Verify transport and alert defaults
		assert.False(t, cfg.Telegram.Enabled)
		assert.Equal(t, "https://api.telegram.org", cfg.Telegram.APIBase)
		assert.Equal(t, 30*time.Second, cfg.Telegram.PollTimeout)
		assert.Equal(t, 64, cfg.Notify.QueueSize)
		assert.True(t, cfg.Notify.History)
		assert.Equal(t, 465, cfg.Notify.SMTP.Port)
		assert.True(t, cfg.Notify.SMTP.ImplicitTLS)

		assert.Equal(t, 60*time.Second, cfg.AILink.DefaultTimeout)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
		assert.False(t, cfg.Debug.Enabled)
	})

	t.Run("FileLayer", func(t *testing.T) {
		v := viper.New()
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(`
relay:
  window: 30m
  max_per_window: 5
notify:
  media_keywords: [selfie, video]
`)))

		cfg, err := LoadFrom(ctx, v)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Minute, cfg.Relay.Window)
		assert.Equal(t, 5, cfg.Relay.MaxPerWindow)
		assert.Equal(t, 3, cfg.Relay.CompactionThreshold)
		assert.Equal(t, []string{"selfie", "video"}, cfg.Notify.MediaKeywords)
	})

	// Test runtime overrides
	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9999,
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := LoadFrom(ctx, viper.New(), overrides)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 9999, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "localhost", cfg.Server.Host)
	})

	// Test environment variable overrides
	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("PARLOR_PORT", "7777")
		t.Setenv("PARLOR_LOG_LEVEL", "warn")
		t.Setenv("PARLOR_RELAY_MAX_PER_WINDOW", "12")
		t.Setenv("PARLOR_TELEGRAM_ENABLED", "true")
		t.Setenv("PARLOR_TELEGRAM_BOT_TOKEN", "123:abc")
		t.Setenv("PARLOR_SMTP_HOST", "smtp.example.com")
		t.Setenv("PARLOR_SMTP_TO", "ops@example.com,owner@example.com")

		cfg, err := LoadFrom(ctx, viper.New())
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 7777, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 12, cfg.Relay.MaxPerWindow)
		assert.True(t, cfg.Telegram.Enabled)
		assert.Equal(t, "123:abc", cfg.Telegram.Token)
		assert.Equal(t, "smtp.example.com", cfg.Notify.SMTP.Host)
		assert.Equal(t, []string{"ops@example.com", "owner@example.com"}, cfg.Notify.SMTP.To)
	})

	// Test precedence: runtime overrides > env vars > file > defaults
	t.Run("Precedence", func(t *testing.T) {
		t.Setenv("PARLOR_PORT", "6666")

		v := viper.New()
		v.Set("server.port", 5555)
		v.Set("server.host", "0.0.0.0")

		overrides := map[string]any{
			"server": map[string]any{
				"port": 5000,
			},
		}

		cfg, err := LoadFrom(ctx, v, overrides)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	})

	t.Run("AILinkDynamicEnv", func(t *testing.T) {
		t.Setenv("PARLOR_AILINK_PROVIDERS_GROQ_ENABLED", "true")
		t.Setenv("PARLOR_AILINK_PROVIDERS_GROQ_AI_PROVIDER", "groq")
		t.Setenv("PARLOR_AILINK_PROVIDERS_GROQ_MODELS_DEFAULT", "llama-3.3-70b-versatile")
		t.Setenv("PARLOR_AILINK_PROVIDERS_GROQ_CREDENTIALS_0_API_KEY", "gsk-test")
		t.Setenv("PARLOR_AILINK_ROUTING_REPLY", "groq")

		cfg, err := LoadFrom(ctx, viper.New())
		require.NoError(t, err)

		provider, ok := cfg.AILink.Providers["groq"]
		require.True(t, ok)
		assert.True(t, provider.Enabled)
		assert.Equal(t, "groq", provider.AIProvider)
		assert.Equal(t, "llama-3.3-70b-versatile", provider.Models["default"])
		require.Len(t, provider.Credentials, 1)
		assert.Equal(t, "gsk-test", provider.Credentials[0].APIKey)
		assert.Equal(t, "groq", cfg.AILink.Routing["reply"])
	})

	t.Run("InvalidRelaySettings", func(t *testing.T) {
		_, err := LoadFrom(ctx, viper.New(), map[string]any{
			"relay": map[string]any{"max_per_window": 0},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "relay.max_per_window")
	})

	t.Run("TelegramRequiresToken", func(t *testing.T) {
		t.Setenv("PARLOR_TELEGRAM_ENABLED", "true")

		_, err := LoadFrom(ctx, viper.New())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telegram.token")
	})

	t.Run("CanceledContext", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := LoadFrom(canceled, viper.New())
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRelayRateLimitPolicy(t *testing.T) {
	policy := RelayConfig{Window: 10 * time.Minute}.RateLimitPolicy()
	assert.Equal(t, 10*time.Minute, policy.Window)
	assert.Equal(t, 30, policy.MaxPerWindow)
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()

	// Load config first
	cfg, err := Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Test GetConfig returns the same instance
	t.Run("GetConfigReturnsLoadedConfig", func(t *testing.T) {
		retrieved := GetConfig()
		assert.NotNil(t, retrieved)
		assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
		assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
	})
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs()
	assert.NotEmpty(t, specs)

	// Verify critical env var mappings exist
	envVarNames := make(map[string]bool)
	for _, spec := range specs {
		envVarNames[spec.Name] = true
	}

	assert.True(t, envVarNames["PARLOR_LOG_LEVEL"], "LOG_LEVEL env var must be mapped")
	assert.True(t, envVarNames["PARLOR_PORT"], "PORT env var must be mapped")
	assert.True(t, envVarNames["PARLOR_DB_PATH"], "DB_PATH env var must be mapped")
	assert.True(t, envVarNames["PARLOR_RELAY_MAX_PER_WINDOW"], "rate limit env var must be mapped")
	assert.True(t, envVarNames["PARLOR_TELEGRAM_BOT_TOKEN"], "bot token env var must be mapped")
	assert.True(t, envVarNames["PARLOR_SMTP_PASSWORD"], "smtp password env var must be mapped")
}

func TestDurationParsing(t *testing.T) {
	t.Setenv("PARLOR_READ_TIMEOUT", "45s")
	t.Setenv("PARLOR_RELAY_WINDOW", "2h")

	cfg, err := LoadFrom(context.Background(), viper.New())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Relay.Window)
}

func TestConfigReload(t *testing.T) {
	ctx := context.Background()

	// Load initial config
	cfg1, err := LoadFrom(ctx, viper.New())
	require.NoError(t, err)
	initialPort := cfg1.Server.Port

	// Reload with different runtime overrides
	cfg2, err := LoadFrom(ctx, viper.New(), map[string]any{
		"server": map[string]any{
			"port": initialPort + 1000,
		},
	})
	require.NoError(t, err)

	// Verify reload updated the config
	assert.Equal(t, initialPort+1000, cfg2.Server.Port)

	// Verify GetConfig returns the updated config
	current := GetConfig()
	assert.Equal(t, cfg2.Server.Port, current.Server.Port)
}

func TestMergeSettings(t *testing.T) {
	dst := map[string]any{
		"server": map[string]any{"host": "localhost", "port": 8080},
	}
	mergeSettings(dst, map[string]any{
		"Server":  map[string]any{"port": 9000},
		"routing": map[string]string{"reply": "groq"},
	})

	server := dst["server"].(map[string]any)
	assert.Equal(t, "localhost", server["host"])
	assert.Equal(t, 9000, server["port"])
	assert.Equal(t, map[string]any{"reply": "groq"}, dst["routing"])
}

func TestProviderEnvVariables(t *testing.T) {
	t.Setenv("PARLOR_AILINK_PROVIDERS_PARLOR_GROQ_ENABLED", "1")
	t.Setenv("PARLOR_AILINK_PROVIDERS_PARLOR_GROQ_BASE_URL", "http://localhost:8000/v1")
	t.Setenv("PARLOR_AILINK_PROVIDERS_PARLOR_GROQ_SELECTION_POLICY", "ROUND_ROBIN")
	t.Setenv("PARLOR_AILINK_PROVIDERS_PARLOR_GROQ_DEFAULT_CREDENTIAL", "backup")
	t.Setenv("PARLOR_AILINK_PROVIDERS_PARLOR_GROQ_CREDENTIALS_1_LABEL", "backup")
	t.Setenv("PARLOR_AILINK_PROVIDERS_PARLOR_GROQ_CREDENTIALS_1_PRIORITY", "5")
	t.Setenv("PARLOR_AILINK_PROVIDERS_PARLOR_GROQ_CREDENTIALS_1_ENABLED", "true")
	t.Setenv("PARLOR_AILINK_ROUTING_COMPACTION", "parlor-groq")
	t.Setenv("PARLOR_AILINK_PROVIDERS_ORPHAN", "ignored")

	overrides := map[string]any{}
	applyAILinkEnv("PARLOR_", overrides)

	ailinkMap := overrides["ailink"].(map[string]any)
	provider := ailinkMap["providers"].(map[string]any)["parlor-groq"].(map[string]any)
	assert.Equal(t, true, provider["enabled"])
	assert.Equal(t, "http://localhost:8000/v1", provider["base_url"])
	assert.Equal(t, "round_robin", provider["selection_policy"])
	assert.Equal(t, "backup", provider["default_credential"])

	creds := provider["credentials"].([]any)
	require.Len(t, creds, 2)
	assert.Equal(t, map[string]any{}, creds[0])
	assert.Equal(t, map[string]any{"label": "backup", "priority": 5, "enabled": true}, creds[1])

	assert.Equal(t, "parlor-groq", ailinkMap["routing"].(map[string]any)["compaction"])
	assert.NotContains(t, ailinkMap["providers"], "orphan")
}

func TestSettingsKeysAreUnique(t *testing.T) {
	keys := map[string]bool{}
	envs := map[string]bool{}
	for _, s := range settings() {
		assert.False(t, keys[s.key], "duplicate key %s", s.key)
		keys[s.key] = true
		if s.env.Name != "" {
			assert.False(t, envs[s.env.Name], "duplicate env %s", s.env.Name)
			envs[s.env.Name] = true
		}
	}
}
