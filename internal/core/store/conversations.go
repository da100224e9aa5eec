package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parlorhq/parlor/internal/core"
)

// GetConversation returns the stored state for userID, or nil when none exists.
func (s *Store) GetConversation(ctx context.Context, userID string) (*core.ConversationState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT user_id, summary, buffer, pending_count, last_updated
		FROM conversations
		WHERE user_id = ?
	`, userID)

	state, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch conversation: %w", err)
	}
	return state, nil
}

// UpsertConversation writes the full state for state.UserID.
func (s *Store) UpsertConversation(ctx context.Context, state *core.ConversationState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if state == nil {
		return errors.New("conversation state is required")
	}
	userID := strings.TrimSpace(state.UserID)
	if userID == "" {
		return errors.New("user id is required")
	}

	buffer := state.Buffer
	if buffer == nil {
		buffer = []string{}
	}
	bufferJSON, err := json.Marshal(buffer)
	if err != nil {
		return fmt.Errorf("encode conversation buffer: %w", err)
	}

	updated := state.LastUpdated
	if updated.IsZero() {
		updated = time.Now()
	}
	now := time.Now().UTC().UnixMilli()

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO conversations (user_id, summary, buffer, pending_count, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			summary = excluded.summary,
			buffer = excluded.buffer,
			pending_count = excluded.pending_count,
			last_updated = excluded.last_updated
	`, userID, state.Summary, string(bufferJSON), state.PendingCount, updated.UTC().UnixMilli(), now)
	if err != nil {
		return fmt.Errorf("store conversation: %w", err)
	}

	return nil
}

// ConversationQuery selects conversations for admin operations.
type ConversationQuery struct {
	All    bool
	UserID string
	Prefix string
}

// Validate requires exactly one way of selecting rows.
func (q ConversationQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.UserID) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --user, or --prefix")
}

func (q ConversationQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if userID := strings.TrimSpace(q.UserID); userID != "" {
		return "WHERE user_id = ?", []any{userID}, nil
	}
	return "WHERE user_id LIKE ? ESCAPE '\\'", []any{escapeLike(strings.TrimSpace(q.Prefix)) + "%"}, nil
}

// ListConversations returns matching conversations, most recently updated first.
func (s *Store) ListConversations(ctx context.Context, q ConversationQuery, limit int) ([]*core.ConversationState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT user_id, summary, buffer, pending_count, last_updated
		FROM conversations
		%s
		ORDER BY last_updated DESC, user_id
	`, where)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	states := []*core.ConversationState{}
	for rows.Next() {
		state, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversations: %w", err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	return states, nil
}

// CountConversations counts matching conversations.
func (s *Store) CountConversations(ctx context.Context, q ConversationQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM conversations
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return count, nil
}

// DeleteConversations removes matching conversations and reports how many.
func (s *Store) DeleteConversations(ctx context.Context, q ConversationQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM conversations
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("delete conversations: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete conversations: %w", err)
	}
	return affected, nil
}

// ResetConversation deletes the stored context for one user and reports
// whether a row existed.
func (s *Store) ResetConversation(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, errors.New("user id is required")
	}
	n, err := s.DeleteConversations(ctx, ConversationQuery{UserID: userID})
	return n > 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*core.ConversationState, error) {
	var (
		userID       string
		summary      string
		bufferJSON   sql.NullString
		pendingCount int
		lastUpdated  int64
	)
	if err := row.Scan(&userID, &summary, &bufferJSON, &pendingCount, &lastUpdated); err != nil {
		return nil, err
	}

	state := &core.ConversationState{
		UserID:       userID,
		Summary:      summary,
		PendingCount: pendingCount,
		LastUpdated:  time.UnixMilli(lastUpdated).UTC(),
	}
	if bufferJSON.Valid && bufferJSON.String != "" {
		if err := json.Unmarshal([]byte(bufferJSON.String), &state.Buffer); err != nil {
			return nil, fmt.Errorf("decode conversation buffer: %w", err)
		}
	}
	if len(state.Buffer) == 0 {
		state.Buffer = nil
	}
	return state, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
