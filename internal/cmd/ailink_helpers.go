package cmd

import (
	"strings"

	"github.com/parlorhq/parlor/internal/ailink"
	"github.com/parlorhq/parlor/internal/ailink/prompt"
	"github.com/parlorhq/parlor/internal/config"
)

// buildPromptRegistry loads the embedded prompts overlaid with
// ailink.prompts_dir.
func buildPromptRegistry(cfg *config.Config) (prompt.Registry, error) {
	dir := ""
	if cfg != nil {
		dir = strings.TrimSpace(cfg.AILink.PromptsDir)
	}
	return prompt.LoadRegistry(dir)
}

// promptSlugForRole maps a generation role to the prompt it renders.
func promptSlugForRole(role string) string {
	switch strings.TrimSpace(role) {
	case ailink.RoleCompaction:
		return prompt.SlugCompaction
	default:
		return prompt.SlugReply
	}
}
