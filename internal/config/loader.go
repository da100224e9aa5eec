// Package config provides centralized configuration management for parlor.
// Configuration is layered, lowest first: built-in defaults, the config file
// and bound flags held by viper, environment variables mapped through
// gofulmen/config env specs, then runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/parlorhq/parlor/internal/appid"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// Load builds the configuration on top of the global viper instance. It may
// be called again to reload.
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	return LoadFrom(ctx, viper.GetViper(), runtimeOverrides...)
}

// LoadFrom builds the configuration using v for the file layer. A nil v
// skips that layer.
func LoadFrom(ctx context.Context, v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defaults := viper.New()
	SetDefaults(defaults)
	merged := defaults.AllSettings()

	if v != nil {
		mergeSettings(merged, v.AllSettings())
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if envOverrides == nil {
		envOverrides = map[string]any{}
	}
	applyAILinkEnv(envPrefix(), envOverrides)
	mergeSettings(merged, envOverrides)

	for _, overrides := range runtimeOverrides {
		mergeSettings(merged, overrides)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// Validate reports settings the relay cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	for _, field := range []struct {
		name  string
		value int64
	}{
		{"relay.window", int64(c.Relay.Window)},
		{"relay.max_per_window", int64(c.Relay.MaxPerWindow)},
		{"relay.compaction_threshold", int64(c.Relay.CompactionThreshold)},
		{"relay.summary_word_cap", int64(c.Relay.SummaryWordCap)},
		{"relay.max_buffer_bytes", int64(c.Relay.MaxBufferBytes)},
		{"relay.max_tracked_users", int64(c.Relay.MaxTrackedUsers)},
	} {
		if field.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", field.name))
		}
	}
	if c.Telegram.Enabled && strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required when telegram is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func envPrefix() string {
	prefix := appid.EnvPrefix()
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// mergeSettings deep-merges src into dst. Nested maps merge key by key;
// any other value replaces what dst holds.
func mergeSettings(dst map[string]any, src map[string]any) {
	for key, value := range src {
		key = strings.ToLower(key)
		srcMap, srcIsMap := toSettingsMap(value)
		if srcIsMap {
			if dstMap, ok := toSettingsMap(dst[key]); ok {
				mergeSettings(dstMap, srcMap)
				dst[key] = dstMap
				continue
			}
			copied := map[string]any{}
			mergeSettings(copied, srcMap)
			dst[key] = copied
			continue
		}
		dst[key] = value
	}
}

func toSettingsMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case map[string]string:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = v
		}
		return out, true
	default:
		return nil, false
	}
}
