package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/parlorhq/parlor/internal/ailink"
	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/observability"
)

const pingPrompt = "Reply with the single word: pong\nUser: ping"

var (
	doctorAILinkRole  string
	doctorAILinkModel string
	doctorAILinkPing  bool
)

var doctorAILinkCmd = &cobra.Command{
	Use:   "ailink [prompt-slug]",
	Short: "Show which provider, model and credential a generation role uses",
	Long: `Resolve a generation role (reply or compaction) the way the relay does
and explain each choice. The prompt defaults to the one the role renders.

--ping sends a one-line prompt through the resolved provider to confirm the
credential and endpoint work.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		role := strings.TrimSpace(doctorAILinkRole)
		if role == "" {
			role = ailink.RoleReply
		}
		slug := promptSlugForRole(role)
		if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
			slug = strings.TrimSpace(args[0])
		}

		prompts, err := buildPromptRegistry(cfg)
		if err != nil {
			return fmt.Errorf("load prompts: %w", err)
		}
		promptDef, err := prompts.Get(slug)
		if err != nil {
			return err
		}

		providers := ailink.NewRegistry(cfg.AILink)
		resolved, err := providers.Resolve(role, promptDef, doctorAILinkModel)
		if err != nil {
			return fmt.Errorf("resolve provider for role %q: %w", role, err)
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), resolutionTable(role, slug, resolved))
		if err != nil {
			return err
		}
		if strings.TrimSpace(resolved.Credential.APIKey) == "" {
			observability.CLILogger.Warn(fmt.Sprintf("Credential %q for %s has no API key", resolved.Credential.Label, resolved.ProviderID))
		}

		if !doctorAILinkPing {
			return nil
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		started := time.Now()
		reply, err := ailink.NewService(providers, observability.CLILogger).Generate(ctx, role, pingPrompt)
		if err != nil {
			return fmt.Errorf("ping %s: %w", resolved.ProviderID, err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Ping ok in %s: %q\n", time.Since(started).Round(time.Millisecond), reply)
		return err
	},
}

func resolutionTable(role, slug string, resolved *ailink.ResolvedProvider) string {
	keyStatus := "(not set)"
	if strings.TrimSpace(resolved.Credential.APIKey) != "" {
		keyStatus = "(set)"
	}
	policy := strings.TrimSpace(resolved.Provider.SelectionPolicy)
	if policy == "" {
		policy = ailink.PolicyPriority
	}
	label := resolved.Credential.Label
	if label == "" {
		label = "-"
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle("Role " + role)
	t.AppendHeader(table.Row{"Setting", "Value", "Chosen by"})
	t.AppendRows([]table.Row{
		{"prompt", slug, ""},
		{"provider", resolved.ProviderID, resolved.Source},
		{"ai_provider", resolved.Provider.AIProvider, ""},
		{"base_url", resolved.BaseURL, ""},
		{"model", resolved.Model, resolved.ModelSource},
		{"credential", label, policy},
		{"credential.priority", resolved.Credential.Priority, ""},
		{"credential.api_key", keyStatus, ""},
	})
	return t.Render()
}

func init() {
	doctorCmd.AddCommand(doctorAILinkCmd)

	doctorAILinkCmd.Flags().StringVar(&doctorAILinkRole, "role", "", "Role to resolve: reply|compaction")
	doctorAILinkCmd.Flags().StringVar(&doctorAILinkModel, "model", "", "Model override")
	doctorAILinkCmd.Flags().BoolVar(&doctorAILinkPing, "ping", false, "Send a test prompt through the resolved provider")
}
