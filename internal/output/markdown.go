package output

import (
	"fmt"
	"strings"

	"github.com/parlorhq/parlor/internal/core"
	"github.com/parlorhq/parlor/internal/core/store"
)

// MarkdownFormatter renders listings as markdown tables.
type MarkdownFormatter struct{}

// FormatConversations renders a conversations table.
func (f *MarkdownFormatter) FormatConversations(states []*core.ConversationState) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Conversations\n\n")
	sb.WriteString("| User | Pending | Buffer | Updated | Summary |\n")
	sb.WriteString("|------|---------|--------|---------|---------|\n")

	for _, state := range states {
		if state == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %d B | %s | %s |\n",
			escapeMarkdownCell(state.UserID),
			state.PendingCount,
			state.BufferBytes(),
			formatTime(state.LastUpdated),
			escapeMarkdownCell(orDash(Preview(state.Summary, previewRunes))),
		))
	}
	return sb.String(), nil
}

// FormatAlerts renders an alerts table.
func (f *MarkdownFormatter) FormatAlerts(alerts []store.AlertRecord) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Alerts\n\n")
	sb.WriteString("| ID | At | Subject | Body |\n")
	sb.WriteString("|----|----|---------|------|\n")

	for _, alert := range alerts {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s |\n",
			alert.ID,
			formatTime(alert.CreatedAt),
			escapeMarkdownCell(alert.Subject),
			escapeMarkdownCell(Preview(alert.Body, previewRunes)),
		))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
