package config

import (
	"os"
	"strconv"
	"strings"
)

// Provider fields settable as {PREFIX}AILINK_PROVIDERS_<ID>_<FIELD>. The
// provider id is everything before the first recognized field, so ids may
// contain underscores (PARLOR_GROQ becomes "parlor-groq").
var providerFields = map[string]func(provider map[string]any, rest []string, value string){
	"ENABLED": func(p map[string]any, rest []string, v string) {
		if len(rest) == 0 {
			p["enabled"] = parseBool(v)
		}
	},
	"AI": func(p map[string]any, rest []string, v string) {
		if len(rest) == 1 && rest[0] == "PROVIDER" {
			p["ai_provider"] = strings.ToLower(v)
		}
	},
	"BASE": func(p map[string]any, rest []string, v string) {
		if len(rest) == 1 && rest[0] == "URL" {
			p["base_url"] = v
		}
	},
	"DEFAULT": func(p map[string]any, rest []string, v string) {
		if len(rest) == 1 && rest[0] == "CREDENTIAL" {
			p["default_credential"] = v
		}
	},
	"SELECTION": func(p map[string]any, rest []string, v string) {
		if len(rest) == 1 && rest[0] == "POLICY" {
			p["selection_policy"] = strings.ToLower(v)
		}
	},
	"MODELS": func(p map[string]any, rest []string, v string) {
		if len(rest) > 0 {
			child(p, "models")[strings.ToLower(strings.Join(rest, "_"))] = v
		}
	},
	"CREDENTIALS": func(p map[string]any, rest []string, v string) {
		if len(rest) < 2 {
			return
		}
		idx, err := strconv.Atoi(rest[0])
		if err != nil || idx < 0 {
			return
		}
		cred := credentialAt(p, idx)
		field := strings.ToLower(strings.Join(rest[1:], "_"))
		switch field {
		case "enabled":
			cred[field] = parseBool(v)
		case "priority":
			if n, err := strconv.Atoi(v); err == nil {
				cred[field] = n
				return
			}
			cred[field] = v
		default:
			cred[field] = v
		}
	},
}

// applyAILinkEnv folds provider and routing variables into overrides.
// Empty values are ignored.
func applyAILinkEnv(prefix string, overrides map[string]any) {
	providers := prefix + "AILINK_PROVIDERS_"
	routing := prefix + "AILINK_ROUTING_"

	for _, kv := range os.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if name, ok := strings.CutPrefix(key, providers); ok {
			applyProviderVar(overrides, name, value)
		} else if role, ok := strings.CutPrefix(key, routing); ok {
			if role = envSlug(role); role != "" {
				child(child(overrides, "ailink"), "routing")[role] = value
			}
		}
	}
}

func applyProviderVar(overrides map[string]any, name, value string) {
	parts := strings.Split(name, "_")
	for i := 1; i < len(parts); i++ {
		set, ok := providerFields[parts[i]]
		if !ok {
			continue
		}
		id := envSlug(strings.Join(parts[:i], "_"))
		if id == "" {
			return
		}
		provider := child(child(child(overrides, "ailink"), "providers"), id)
		set(provider, parts[i+1:], value)
		return
	}
}

func child(parent map[string]any, key string) map[string]any {
	if m, ok := parent[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	parent[key] = m
	return m
}

func credentialAt(provider map[string]any, idx int) map[string]any {
	creds, _ := provider["credentials"].([]any)
	for len(creds) <= idx {
		creds = append(creds, map[string]any{})
	}
	provider["credentials"] = creds
	cred, ok := creds[idx].(map[string]any)
	if !ok {
		cred = map[string]any{}
		creds[idx] = cred
	}
	return cred
}

func envSlug(raw string) string {
	var parts []string
	for _, part := range strings.Split(raw, "_") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "-")
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
