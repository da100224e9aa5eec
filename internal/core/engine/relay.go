package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/core"
	"github.com/parlorhq/parlor/internal/metrics"
)

// AlertGenerationFailure is the subject of the alert emitted when a reply
// cannot be generated.
const AlertGenerationFailure = "LLM API Failure"

// Alerter accepts fire-and-forget operator alerts.
type Alerter interface {
	Alert(subject, body string)
}

// Relay runs one conversational turn per inbound message.
type Relay struct {
	Limiter    *RateLimiter
	Summarizer *Summarizer
	Generator  Generator
	Prompts    PromptBuilder
	Alerts     Alerter
	Timeout    time.Duration
	Clock      func() time.Time
	Logger     *logging.Logger

	// OnAdmit observes every admitted, trimmed message before it is recorded.
	OnAdmit func(userID, message string)

	turns keyLocker
}

// Handle admits, records, and answers a message for userID.
//
// Rate-limited turns return core.ErrRateLimited and should be dropped
// silently. A failed generation returns core.ErrGenerationFailed after the
// user turn has been recorded and an alert emitted. Store failures return
// core.ErrPersistence.
func (r *Relay) Handle(ctx context.Context, userID string, rawMessage string) (string, error) {
	if r == nil || r.Summarizer == nil {
		return "", errors.New("relay not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", core.InvalidMessage(userID, "user id is required")
	}
	message := strings.TrimSpace(rawMessage)
	if message == "" {
		return "", core.InvalidMessage(userID, "message is empty")
	}

	if !r.Limiter.Admit(userID, r.now()) {
		metrics.RecordRateLimited(transportFrom(ctx))
		if r.Logger != nil {
			r.Logger.Info("Turn dropped by rate limiter", zap.String("user_id", userID))
		}
		return "", core.RateLimited(userID)
	}

	started := time.Now()
	reply, err := r.turn(ctx, userID, message)
	metrics.RecordTurn(transportFrom(ctx), turnStatus(err), time.Since(started))
	return reply, err
}

// Conversation returns the user's persisted context, or nil when the user
// has never written.
func (r *Relay) Conversation(ctx context.Context, userID string) (*core.ConversationState, error) {
	if r == nil || r.Summarizer == nil {
		return nil, errors.New("relay not configured")
	}
	return r.Summarizer.Fetch(ctx, userID)
}

// ResetConversation discards the user's context once any turn in flight
// for that user has finished, so the turn cannot write it back.
func (r *Relay) ResetConversation(ctx context.Context, userID string) (bool, error) {
	if r == nil || r.Summarizer == nil {
		return false, errors.New("relay not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, core.InvalidMessage(userID, "user id is required")
	}

	unlock := r.turns.Lock(userID)
	defer unlock()

	found, err := r.Summarizer.Reset(ctx, userID)
	if err != nil {
		r.logPersistence(userID, err)
		return false, err
	}
	if found && r.Logger != nil {
		r.Logger.Info("Conversation reset", zap.String("user_id", userID))
	}
	return found, nil
}

func (r *Relay) turn(ctx context.Context, userID string, message string) (string, error) {
	unlock := r.turns.Lock(userID)
	defer unlock()

	if r.OnAdmit != nil {
		r.OnAdmit(userID, message)
	}

	summary, err := r.Summarizer.Record(ctx, userID, message, core.RoleUser)
	if err != nil {
		r.logPersistence(userID, err)
		return "", err
	}

	prompt, reply, err := r.generate(ctx, summary, message)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Error("Reply generation failed",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		r.alert(AlertGenerationFailure, fmt.Sprintf("Error generating response for user %s with prompt: %s\nError: %v", userID, prompt, err))
		return "", core.GenerationFailed(userID, core.ProviderFailure(userID, err))
	}

	if _, err := r.Summarizer.Record(ctx, userID, reply, core.RoleAssistant); err != nil {
		r.logPersistence(userID, err)
		return "", err
	}

	if r.Logger != nil {
		r.Logger.Debug("Turn completed",
			zap.String("user_id", userID),
			zap.Int("reply_chars", len(reply)))
	}
	return reply, nil
}

func (r *Relay) generate(ctx context.Context, summary string, message string) (string, string, error) {
	if r.Generator == nil {
		return "", "", errors.New("generator not configured")
	}
	if r.Prompts == nil {
		return "", "", errors.New("prompt builder not configured")
	}

	prompt, err := r.Prompts.ReplyPrompt(summary, message)
	if err != nil {
		return "", "", err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	reply, err := r.Generator.Generate(ctx, prompt)
	if err != nil {
		return prompt, "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return prompt, "", errors.New("generator returned an empty reply")
	}
	return prompt, reply, nil
}

func (r *Relay) alert(subject, body string) {
	if r.Alerts == nil {
		return
	}
	r.Alerts.Alert(subject, body)
}

func (r *Relay) logPersistence(userID string, err error) {
	if r.Logger != nil {
		r.Logger.Error("Conversation store failure",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

type transportKey struct{}

// WithTransport labels turns handled with ctx for metrics.
func WithTransport(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, transportKey{}, name)
}

func transportFrom(ctx context.Context) string {
	if name, ok := ctx.Value(transportKey{}).(string); ok && name != "" {
		return name
	}
	return "direct"
}

func (r *Relay) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func turnStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, core.ErrPersistence):
		return "persistence_error"
	default:
		return "error"
	}
}
