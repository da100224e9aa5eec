package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/parlorhq/parlor/internal/core"
	"github.com/parlorhq/parlor/internal/core/store"
	"github.com/parlorhq/parlor/internal/output"
)

var (
	conversationListPrefix string
	conversationListLimit  int
)

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Inspect and reset stored conversations",
}

var conversationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.ConversationQuery{All: true}
		if prefix := strings.TrimSpace(conversationListPrefix); prefix != "" {
			query = store.ConversationQuery{Prefix: prefix}
		}

		states, err := db.ListConversations(cmd.Context(), query, conversationListLimit)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatConversations(states)
		if err != nil {
			return err
		}

		out, err := openOutput(cmd, format, "conversations")
		if err != nil {
			return err
		}
		defer func() { _ = out.Close() }()

		_, err = fmt.Fprintln(out, rendered)
		return err
	},
}

var conversationShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show the summary and buffered transcript for one user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format == output.FormatMarkdown {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		userID := strings.TrimSpace(args[0])
		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		state, err := db.GetConversation(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if state == nil {
			return fmt.Errorf("no conversation stored for user %s", userID)
		}

		out, err := openOutput(cmd, format, "conversation-"+userID)
		if err != nil {
			return err
		}
		defer func() { _ = out.Close() }()

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(payload))
			return err
		}

		_, err = fmt.Fprint(out, ascii.DrawBox(conversationLines(state), 0))
		return err
	},
}

// conversationLines renders a conversation for the boxed show view.
func conversationLines(state *core.ConversationState) string {
	updated := "-"
	if !state.LastUpdated.IsZero() {
		updated = state.LastUpdated.UTC().Format(time.RFC3339)
	}

	lines := []string{
		"Conversation " + state.UserID,
		"",
		fmt.Sprintf("Updated: %s", updated),
		fmt.Sprintf("Pending user messages: %d", state.PendingCount),
		fmt.Sprintf("Buffer: %d bytes", state.BufferBytes()),
		"",
		"Summary:",
	}
	if strings.TrimSpace(state.Summary) == "" {
		lines = append(lines, "  (none yet)")
	} else {
		for _, line := range strings.Split(strings.TrimSpace(state.Summary), "\n") {
			lines = append(lines, "  "+line)
		}
	}

	lines = append(lines, "", "Transcript since last compaction:")
	if len(state.Buffer) == 0 {
		lines = append(lines, "  (empty)")
	}
	for _, entry := range state.Buffer {
		lines = append(lines, "  "+strings.TrimRight(entry, "\n"))
	}
	return strings.Join(lines, "\n")
}

func init() {
	conversationListCmd.Flags().StringVar(&conversationListPrefix, "prefix", "", "List users whose id starts with prefix")
	conversationListCmd.Flags().IntVar(&conversationListLimit, "limit", 50, "Maximum rows (0 for all)")
	addOutputFlags(conversationListCmd, "table|json|markdown")
	addOutputFlags(conversationShowCmd, "table|json")

	conversationCmd.AddCommand(conversationListCmd)
	conversationCmd.AddCommand(conversationShowCmd)
	conversationCmd.AddCommand(conversationResetCmd)
	rootCmd.AddCommand(conversationCmd)
}
