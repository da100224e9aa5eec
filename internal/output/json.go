package output

import (
	"encoding/json"

	"github.com/parlorhq/parlor/internal/core"
	"github.com/parlorhq/parlor/internal/core/store"
)

// JSONFormatter renders listings as JSON arrays.
type JSONFormatter struct {
	Indent bool
}

// FormatConversations renders the full conversation states.
func (f *JSONFormatter) FormatConversations(states []*core.ConversationState) (string, error) {
	kept := make([]*core.ConversationState, 0, len(states))
	for _, state := range states {
		if state != nil {
			kept = append(kept, state)
		}
	}
	return f.marshal(kept)
}

// FormatAlerts renders the alert records.
func (f *JSONFormatter) FormatAlerts(alerts []store.AlertRecord) (string, error) {
	if alerts == nil {
		alerts = []store.AlertRecord{}
	}
	return f.marshal(alerts)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
