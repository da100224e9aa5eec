package cmd

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/parlorhq/parlor/internal/ailink/prompt"
	"github.com/parlorhq/parlor/internal/config"
)

var (
	ailinkRenderSummary string
	ailinkRenderMessage string
	ailinkRenderBuffer  string
)

var ailinkCmd = &cobra.Command{
	Use:   "ailink",
	Short: "Inspect generation prompts",
}

var ailinkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}

		registry, err := buildPromptRegistry(cfg)
		if err != nil {
			return err
		}

		prompts := registry.List()
		if len(prompts) == 0 {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "No prompts found.")
			return err
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Slug", "Version", "Description"})
		for _, p := range prompts {
			if p == nil {
				continue
			}
			t.AppendRow(table.Row{p.Config.Slug, p.Config.Version, p.Config.Description})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return err
	},
}

var ailinkRenderCmd = &cobra.Command{
	Use:   "render <prompt-slug>",
	Short: "Render a prompt with sample variables",
	Long: `Render a prompt exactly as the relay would send it. Lines prefixed
"User:" or "Assistant:" become chat turns, everything else system text.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		registry, err := buildPromptRegistry(cfg)
		if err != nil {
			return err
		}

		def, err := registry.Get(strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}

		rendered, err := prompt.Render(def, map[string]string{
			"summary":  ailinkRenderSummary,
			"message":  ailinkRenderMessage,
			"buffer":   ailinkRenderBuffer,
			"word_cap": fmt.Sprint(cfg.Relay.SummaryWordCap),
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	},
}

func init() {
	ailinkRenderCmd.Flags().StringVar(&ailinkRenderSummary, "summary", "", "summary variable")
	ailinkRenderCmd.Flags().StringVar(&ailinkRenderMessage, "message", "Hi there!", "message variable")
	ailinkRenderCmd.Flags().StringVar(&ailinkRenderBuffer, "buffer", "User: Hi there!\n", "buffer variable")

	rootCmd.AddCommand(ailinkCmd)
	ailinkCmd.AddCommand(ailinkListCmd)
	ailinkCmd.AddCommand(ailinkRenderCmd)
}
