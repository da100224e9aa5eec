package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/core"
	"github.com/parlorhq/parlor/internal/metrics"
)

// ConversationStore persists conversation state.
type ConversationStore interface {
	// GetConversation returns nil, nil when the user has no state yet.
	GetConversation(ctx context.Context, userID string) (*core.ConversationState, error)
	UpsertConversation(ctx context.Context, state *core.ConversationState) error
}

// ConversationResetter is implemented by stores that can discard a user's
// state. ResetConversation reports whether anything was stored.
type ConversationResetter interface {
	ResetConversation(ctx context.Context, userID string) (bool, error)
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// PromptBuilder renders the prompts sent to the generator.
type PromptBuilder interface {
	ReplyPrompt(summary, message string) (string, error)
	CompactionPrompt(summary, buffer string, wordCap int) (string, error)
}

var errEmptySummary = errors.New("generator returned an empty summary")

// Summarizer keeps a rolling summary per user and compacts the buffered
// transcript into it every Threshold user messages.
type Summarizer struct {
	Store          ConversationStore
	Generator      Generator
	Prompts        PromptBuilder
	Threshold      int
	WordCap        int
	MaxBufferBytes int
	Timeout        time.Duration
	Clock          func() time.Time
	Logger         *logging.Logger

	locks keyLocker
}

// Record appends a role-tagged message to the user's buffer, compacts when
// the pending user count reaches the threshold, persists the state, and
// returns the authoritative summary.
//
// A failed compaction leaves summary, buffer and pending count untouched
// and is not reported to the caller.
func (s *Summarizer) Record(ctx context.Context, userID string, message string, role core.Role) (string, error) {
	if s == nil || s.Store == nil {
		return "", core.PersistenceFailure(userID, errors.New("conversation store not configured"))
	}
	if !role.Valid() {
		return "", core.InvalidMessage(userID, "unknown role "+string(role))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	state, err := s.Store.GetConversation(ctx, userID)
	if err != nil {
		return "", core.PersistenceFailure(userID, err)
	}
	if state == nil {
		state = core.NewConversationState(userID)
	}

	state.Buffer = append(state.Buffer, core.FormatEntry(role, message))
	if role == core.RoleUser {
		state.PendingCount++
	}
	s.truncateBuffer(state)

	// Only a user entry can trigger compaction, even when an earlier
	// attempt failed and the count is already past the threshold.
	if role == core.RoleUser && state.PendingCount >= s.threshold() {
		s.compact(ctx, state)
	}

	state.LastUpdated = s.now()
	if err := s.Store.UpsertConversation(ctx, state); err != nil {
		return "", core.PersistenceFailure(userID, err)
	}
	return state.Summary, nil
}

// Fetch returns a copy of the user's current state, or nil when the store
// has never seen the user.
func (s *Summarizer) Fetch(ctx context.Context, userID string) (*core.ConversationState, error) {
	if s == nil || s.Store == nil {
		return nil, core.PersistenceFailure(userID, errors.New("conversation store not configured"))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	state, err := s.Store.GetConversation(ctx, userID)
	if err != nil {
		return nil, core.PersistenceFailure(userID, err)
	}
	if state == nil {
		return nil, nil
	}
	return state.Clone(), nil
}

// Reset discards the user's state. It waits for any Record in flight for
// the same user.
func (s *Summarizer) Reset(ctx context.Context, userID string) (bool, error) {
	if s == nil || s.Store == nil {
		return false, core.PersistenceFailure(userID, errors.New("conversation store not configured"))
	}
	resetter, ok := s.Store.(ConversationResetter)
	if !ok {
		return false, core.PersistenceFailure(userID, errors.New("conversation store cannot reset"))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	found, err := resetter.ResetConversation(ctx, userID)
	if err != nil {
		return false, core.PersistenceFailure(userID, err)
	}
	return found, nil
}

func (s *Summarizer) compact(ctx context.Context, state *core.ConversationState) {
	started := time.Now()
	if s.Logger != nil {
		s.Logger.Info("Compaction threshold reached",
			zap.String("user_id", state.UserID),
			zap.Int("pending_count", state.PendingCount))
	}

	summary, err := s.generateSummary(ctx, state)
	metrics.RecordCompaction(err == nil, time.Since(started))
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("Compaction failed, keeping existing summary",
				zap.String("user_id", state.UserID),
				zap.Int("pending_count", state.PendingCount),
				zap.Error(err))
		}
		return
	}

	state.Summary = summary
	state.Buffer = nil
	state.PendingCount = 0

	if s.Logger != nil {
		s.Logger.Info("Summary updated",
			zap.String("user_id", state.UserID),
			zap.Int("summary_words", len(strings.Fields(summary))))
	}
}

func (s *Summarizer) generateSummary(ctx context.Context, state *core.ConversationState) (string, error) {
	if s.Generator == nil {
		return "", errors.New("generator not configured")
	}
	if s.Prompts == nil {
		return "", errors.New("prompt builder not configured")
	}

	prompt, err := s.Prompts.CompactionPrompt(state.Summary, state.BufferText(), s.wordCap())
	if err != nil {
		return "", err
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	text, err := s.Generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	summary := truncateWords(strings.TrimSpace(text), s.wordCap())
	if summary == "" {
		return "", errEmptySummary
	}
	return summary, nil
}

// truncateBuffer drops the oldest entries while the buffer exceeds
// MaxBufferBytes. The newest entry is always kept.
func (s *Summarizer) truncateBuffer(state *core.ConversationState) {
	if s.MaxBufferBytes <= 0 {
		return
	}

	size := state.BufferBytes()
	dropped := 0
	for size > s.MaxBufferBytes && dropped < len(state.Buffer)-1 {
		size -= len(state.Buffer[dropped])
		dropped++
	}
	if dropped == 0 {
		return
	}

	state.Buffer = append([]string(nil), state.Buffer[dropped:]...)
	metrics.RecordBufferTruncation()
	if s.Logger != nil {
		s.Logger.Warn("Conversation buffer truncated",
			zap.String("user_id", state.UserID),
			zap.Int("dropped_entries", dropped),
			zap.Int("buffer_bytes", size))
	}
}

func (s *Summarizer) threshold() int {
	if s.Threshold <= 0 {
		return core.DefaultCompactionThreshold
	}
	return s.Threshold
}

func (s *Summarizer) wordCap() int {
	if s.WordCap <= 0 {
		return core.DefaultSummaryWordCap
	}
	return s.WordCap
}

func (s *Summarizer) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

// truncateWords keeps at most limit whitespace-separated words.
func truncateWords(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= limit {
		return text
	}
	return strings.Join(words[:limit], " ")
}
