package ailink

import (
	"strings"
	"time"
)

// Config defines provider configuration for AILink.
//
// The subtree is self-contained and decoded from the `ailink` config key.
type Config struct {
	DefaultProvider string        `mapstructure:"default_provider"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`

	// PromptsDir overrides embedded prompts with files of the same slug.
	PromptsDir string `mapstructure:"prompts_dir"`

	// Debug controls raw provider payload capture in error details.
	Debug DebugConfig `mapstructure:"debug"`

	// Providers is a set of provider instances keyed by a user-defined id (slug).
	// Each instance declares its underlying provider type via AIProvider.
	Providers map[string]ProviderInstanceConfig `mapstructure:"providers"`

	// Routing maps a role ("reply", "compaction") to a provider id.
	Routing map[string]string `mapstructure:"routing"`
}

type DebugConfig struct {
	CaptureRawEnabled  bool `mapstructure:"capture_raw_enabled"`
	CaptureRawMaxBytes int  `mapstructure:"capture_raw_max_bytes"`
}

// ProviderInstanceConfig defines a configured provider instance (e.g. "parlor-groq").
type ProviderInstanceConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// AIProvider is the provider type: "groq", "openai" or "xai".
	AIProvider string `mapstructure:"ai_provider"`

	// SelectionPolicy controls which credential is chosen.
	// Supported values: "priority" (default), "round_robin".
	SelectionPolicy string `mapstructure:"selection_policy"`

	// DefaultCredential, if set, forces selecting the matching credential label.
	// If missing/invalid, selection falls back to SelectionPolicy.
	DefaultCredential string `mapstructure:"default_credential"`

	BaseURL string            `mapstructure:"base_url"`
	Models  map[string]string `mapstructure:"models"`
	Roles   []string          `mapstructure:"roles"`

	// Temperature and MaxTokens are sent when set.
	Temperature *float64 `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`

	Credentials []CredentialConfig `mapstructure:"credentials"`
}

// CredentialConfig is a single credential for a provider instance.
//
// Multiple credentials enable key rotation across a provider's rate limits.
type CredentialConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Label    string `mapstructure:"label"`
	APIKey   string `mapstructure:"api_key"`
	Priority int    `mapstructure:"priority"`
}

// Configured reports whether an enabled provider has a usable credential.
func (c Config) Configured() bool {
	for _, provider := range c.Providers {
		if !provider.Enabled {
			continue
		}
		for _, cred := range provider.Credentials {
			if cred.usable() {
				return true
			}
		}
	}
	return false
}

// usable mirrors credential selection: unlabeled credentials are enabled
// implicitly and every credential needs an API key.
func (c CredentialConfig) usable() bool {
	if !c.Enabled && strings.TrimSpace(c.Label) != "" {
		return false
	}
	return strings.TrimSpace(c.APIKey) != ""
}
