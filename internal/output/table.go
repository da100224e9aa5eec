package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/parlorhq/parlor/internal/core"
	"github.com/parlorhq/parlor/internal/core/store"
)

// TableFormatter renders listings as an ASCII table.
type TableFormatter struct{}

// FormatConversations renders one row per conversation.
func (f *TableFormatter) FormatConversations(states []*core.ConversationState) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"User", "Pending", "Buffer", "Updated", "Summary"})

	count := 0
	for _, state := range states {
		if state == nil {
			continue
		}
		count++
		t.AppendRow(table.Row{
			state.UserID,
			state.PendingCount,
			fmt.Sprintf("%d B", state.BufferBytes()),
			formatTime(state.LastUpdated),
			orDash(Preview(state.Summary, previewRunes)),
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d conversations", count), "", "", "", ""})
	return t.Render(), nil
}

// FormatAlerts renders one row per recorded alert.
func (f *TableFormatter) FormatAlerts(alerts []store.AlertRecord) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "At", "Subject", "Body"})

	for _, alert := range alerts {
		t.AppendRow(table.Row{
			alert.ID,
			formatTime(alert.CreatedAt),
			alert.Subject,
			Preview(alert.Body, previewRunes),
		})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d alerts", len(alerts)), ""})
	return t.Render(), nil
}
