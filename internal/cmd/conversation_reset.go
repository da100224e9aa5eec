package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parlorhq/parlor/internal/core/store"
	"github.com/parlorhq/parlor/internal/output"
)

var (
	conversationResetAll    bool
	conversationResetUser   string
	conversationResetPrefix string
	conversationResetYes    bool
	conversationResetDryRun bool
)

var conversationResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete stored conversation context",
	Long: `Delete stored summaries and transcripts. The next message from an
affected user starts a fresh conversation.

Rate limit windows live in memory and are not affected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.ConversationQuery{
			All:    conversationResetAll,
			UserID: strings.TrimSpace(conversationResetUser),
			Prefix: strings.TrimSpace(conversationResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !conversationResetYes && !conversationResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountConversations(cmd.Context(), query)
		if err != nil {
			return err
		}

		out, err := openOutput(cmd, format, "conversation.reset")
		if err != nil {
			return err
		}
		defer func() { _ = out.Close() }()

		if conversationResetDryRun {
			return writeConversationResetResult(format, out, matched, 0, true)
		}

		deleted, err := db.DeleteConversations(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeConversationResetResult(format, out, matched, deleted, false)
	},
}

func writeConversationResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(map[string]any{
			"matched": matched,
			"deleted": deleted,
			"dry_run": dryRun,
		}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d conversation(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d conversation(s)\n", deleted, matched)
	return err
}

func init() {
	conversationResetCmd.Flags().BoolVar(&conversationResetAll, "all", false, "Reset every conversation")
	conversationResetCmd.Flags().StringVar(&conversationResetUser, "user", "", "Reset a single user (exact match)")
	conversationResetCmd.Flags().StringVar(&conversationResetPrefix, "prefix", "", "Reset users whose id starts with prefix")
	conversationResetCmd.Flags().BoolVar(&conversationResetYes, "yes", false, "Confirm destructive reset")
	conversationResetCmd.Flags().BoolVar(&conversationResetDryRun, "dry-run", false, "Show what would be deleted")
	addOutputFlags(conversationResetCmd, "table|json")
}
