package core

import (
	"strings"
	"time"
)

// Role identifies who authored a conversation entry.
type Role string

const (
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
)

// Valid reports whether the role is one the relay records.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ConversationState is the persisted per-user conversation context.
//
// Summary is the authoritative compacted context. Buffer holds the
// role-tagged entries accumulated since the last compaction and
// PendingCount counts the user-originated entries among them.
type ConversationState struct {
	UserID       string    `json:"user_id"`
	Summary      string    `json:"summary"`
	Buffer       []string  `json:"buffer"`
	PendingCount int       `json:"pending_count"`
	LastUpdated  time.Time `json:"last_updated"`
}

// NewConversationState returns the empty state used on first interaction.
func NewConversationState(userID string) *ConversationState {
	return &ConversationState{UserID: userID}
}

// BufferText renders the buffered entries as a single transcript.
func (s *ConversationState) BufferText() string {
	if s == nil {
		return ""
	}
	return strings.Join(s.Buffer, "")
}

// BufferBytes returns the size of the rendered transcript.
func (s *ConversationState) BufferBytes() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, entry := range s.Buffer {
		n += len(entry)
	}
	return n
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Buffer != nil {
		clone.Buffer = append([]string(nil), s.Buffer...)
	}
	return &clone
}

// FormatEntry renders a buffer entry as "{role}: {message}\n".
func FormatEntry(role Role, message string) string {
	return string(role) + ": " + message + "\n"
}
