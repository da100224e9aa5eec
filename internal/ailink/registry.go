package ailink

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/parlorhq/parlor/internal/ailink/driver"
	"github.com/parlorhq/parlor/internal/ailink/driver/openai"
	"github.com/parlorhq/parlor/internal/ailink/prompt"
)

// Selection policies for providers with several credentials.
const (
	PolicyPriority   = "priority"
	PolicyRoundRobin = "round_robin"
)

// How Resolve chose a provider.
const (
	SourceRouting         = "routing"
	SourceRoles           = "roles"
	SourceDefaultProvider = "default_provider"
	SourceOnlyEnabled     = "only_enabled_provider"
)

// How Resolve chose a model.
const (
	ModelFromOverride = "override"
	ModelFromPrompt   = "prompt_preferred_models"
	ModelFromProvider = "provider.models.default"
)

// Registry maps generation roles to provider instances. Drivers are built
// lazily and reused per provider credential.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	drivers map[string]driver.Driver
	cursors map[string]int
}

// ResolvedProvider is everything a single generation call needs.
type ResolvedProvider struct {
	ProviderID string
	Provider   ProviderInstanceConfig
	Credential CredentialConfig
	Driver     driver.Driver
	Model      string
	BaseURL    string

	Source      string
	ModelSource string
}

// NewRegistry returns a registry over cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// Config returns the configuration the registry was built from.
func (r *Registry) Config() Config {
	if r == nil {
		return Config{}
	}
	return r.cfg
}

// Resolve picks the provider serving role and the credential, driver and
// model to call it with. modelOverride wins over prompt hints and the
// provider's default model.
func (r *Registry) Resolve(role string, promptDef *prompt.Prompt, modelOverride string) (*ResolvedProvider, error) {
	if r == nil {
		return nil, fmt.Errorf("ailink registry not configured")
	}

	providerID, providerCfg, source, err := r.providerForRole(strings.TrimSpace(role))
	if err != nil {
		return nil, err
	}

	cred, credKey, err := selectCredential(providerCfg, func(group string, n int) int {
		return r.rrIndex(providerID+":"+group, n)
	})
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerID, err)
	}

	drv, err := r.driverFor(providerID, providerCfg, cred, credKey)
	if err != nil {
		return nil, err
	}

	model, modelSource, err := resolveModel(providerCfg, promptDef, modelOverride)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerID, err)
	}

	resolved := &ResolvedProvider{
		ProviderID:  providerID,
		Provider:    providerCfg,
		Credential:  cred,
		Driver:      drv,
		Model:       model,
		BaseURL:     strings.TrimSpace(providerCfg.BaseURL),
		Source:      source,
		ModelSource: modelSource,
	}
	if client, ok := drv.(*openai.Client); ok {
		resolved.BaseURL = client.BaseURL
	}
	return resolved, nil
}

// providerForRole applies, in order: explicit routing, providers declaring
// the role, the default provider, and a sole enabled provider.
func (r *Registry) providerForRole(role string) (string, ProviderInstanceConfig, string, error) {
	if role != "" {
		if id := strings.TrimSpace(r.cfg.Routing[role]); id != "" {
			cfg, err := r.enabledProvider(id, fmt.Sprintf("role %q", role))
			return id, cfg, SourceRouting, err
		}
		for _, id := range r.providerIDs() {
			cfg := r.cfg.Providers[id]
			if cfg.Enabled && containsFold(cfg.Roles, role) {
				return id, cfg, SourceRoles, nil
			}
		}
	}

	if id := strings.TrimSpace(r.cfg.DefaultProvider); id != "" {
		cfg, err := r.enabledProvider(id, "default provider")
		return id, cfg, SourceDefaultProvider, err
	}

	var enabled []string
	for _, id := range r.providerIDs() {
		if r.cfg.Providers[id].Enabled {
			enabled = append(enabled, id)
		}
	}
	switch len(enabled) {
	case 0:
		return "", ProviderInstanceConfig{}, "", fmt.Errorf("no enabled providers configured")
	case 1:
		return enabled[0], r.cfg.Providers[enabled[0]], SourceOnlyEnabled, nil
	default:
		return "", ProviderInstanceConfig{}, "", fmt.Errorf("no provider routing configured for role %q and %d providers are enabled", role, len(enabled))
	}
}

func (r *Registry) enabledProvider(id, source string) (ProviderInstanceConfig, error) {
	cfg, ok := r.cfg.Providers[id]
	if !ok {
		return ProviderInstanceConfig{}, fmt.Errorf("provider %q for %s is not configured", id, source)
	}
	if !cfg.Enabled {
		return ProviderInstanceConfig{}, fmt.Errorf("provider %q for %s is disabled", id, source)
	}
	return cfg, nil
}

// providerIDs returns provider ids in a stable order so role fallback does
// not depend on map iteration.
func (r *Registry) providerIDs() []string {
	ids := make([]string, 0, len(r.cfg.Providers))
	for id := range r.cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// selectCredential returns the credential to use and the key its driver is
// cached under. next yields a round-robin index within a priority group.
func selectCredential(cfg ProviderInstanceConfig, next func(group string, n int) int) (CredentialConfig, string, error) {
	if len(cfg.Credentials) == 0 {
		return CredentialConfig{}, "", fmt.Errorf("no credentials configured")
	}

	var usable []CredentialConfig
	for _, cred := range cfg.Credentials {
		if cred.usable() {
			usable = append(usable, cred)
		}
	}
	if len(usable) == 0 {
		// Hand back the first credential so callers can report what is missing.
		return cfg.Credentials[0], credentialKey(cfg.Credentials[0], "0"), nil
	}

	if label := strings.TrimSpace(cfg.DefaultCredential); label != "" {
		for _, cred := range usable {
			if strings.EqualFold(strings.TrimSpace(cred.Label), label) {
				return cred, strings.TrimSpace(cred.Label), nil
			}
		}
	}

	top := usable[0].Priority
	for _, cred := range usable[1:] {
		top = max(top, cred.Priority)
	}
	var group []CredentialConfig
	for _, cred := range usable {
		if cred.Priority == top {
			group = append(group, cred)
		}
	}

	pick := 0
	policy := strings.ToLower(strings.TrimSpace(cfg.SelectionPolicy))
	if policy == PolicyRoundRobin && next != nil {
		pick = next(strconv.Itoa(top), len(group))
	}
	cred := group[pick]
	return cred, credentialKey(cred, "p"+strconv.Itoa(top)), nil
}

func credentialKey(cred CredentialConfig, fallback string) string {
	if label := strings.TrimSpace(cred.Label); label != "" {
		return label
	}
	return fallback
}

func (r *Registry) driverFor(providerID string, providerCfg ProviderInstanceConfig, cred CredentialConfig, credKey string) (driver.Driver, error) {
	cacheKey := providerID + ":" + credKey

	r.mu.Lock()
	defer r.mu.Unlock()
	if drv, ok := r.drivers[cacheKey]; ok {
		return drv, nil
	}

	kind := strings.ToLower(strings.TrimSpace(providerCfg.AIProvider))
	switch kind {
	case "groq", "openai", "xai":
	case "":
		return nil, fmt.Errorf("provider %q has no ai_provider set", providerID)
	default:
		return nil, fmt.Errorf("unsupported ai_provider %q for provider %q", kind, providerID)
	}

	client := openai.NewClient(kind, providerCfg.BaseURL, cred.APIKey)
	client.Timeout = r.cfg.DefaultTimeout
	if r.drivers == nil {
		r.drivers = make(map[string]driver.Driver)
	}
	r.drivers[cacheKey] = client
	return client, nil
}

// resolveModel prefers the override, then the prompt's preferred_models hint,
// then the provider's "default" model.
func resolveModel(providerCfg ProviderInstanceConfig, promptDef *prompt.Prompt, override string) (string, string, error) {
	if model := strings.TrimSpace(override); model != "" {
		return model, ModelFromOverride, nil
	}
	for _, model := range preferredModels(promptDef) {
		if model = strings.TrimSpace(model); model != "" {
			return model, ModelFromPrompt, nil
		}
	}
	if model := strings.TrimSpace(providerCfg.Models["default"]); model != "" {
		return model, ModelFromProvider, nil
	}
	return "", "", fmt.Errorf("model not configured")
}

func preferredModels(promptDef *prompt.Prompt) []string {
	if promptDef == nil {
		return nil
	}
	switch hint := promptDef.Config.ProviderHints["preferred_models"].(type) {
	case string:
		return []string{hint}
	case []string:
		return hint
	case []any:
		models := make([]string, 0, len(hint))
		for _, item := range hint {
			if s, ok := item.(string); ok {
				models = append(models, s)
			}
		}
		return models
	default:
		return nil
	}
}

func (r *Registry) rrIndex(key string, n int) int {
	if r == nil || n <= 1 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursors == nil {
		r.cursors = make(map[string]int)
	}
	idx := r.cursors[key] % n
	r.cursors[key]++
	return idx
}

func containsFold(values []string, needle string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), needle) {
			return true
		}
	}
	return false
}
