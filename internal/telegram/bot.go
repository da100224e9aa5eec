package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/core"
	"github.com/parlorhq/parlor/internal/core/engine"
)

// TransportName tags turns that arrive over Telegram.
const TransportName = "telegram"

// DefaultGreeting answers /start.
const DefaultGreeting = "[en] So great to see you here! How can I make you smile today? Let's begin our love story.\n" +
	"[pt] Que ótimo ter você por aqui! Então bora começar a nossa história de amor!"

const (
	defaultPollTimeout = 30 * time.Second
	defaultMaxInFlight = 64
	maxPollBackoff     = 30 * time.Second
)

// TurnHandler runs one conversational turn. *engine.Relay satisfies it.
type TurnHandler interface {
	Handle(ctx context.Context, userID string, message string) (string, error)
}

// Sender is the subset of the Bot API the bot needs.
type Sender interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Bot polls for updates and hands each text message to the relay on its own
// goroutine. Rate-limited and failed turns get no reply.
type Bot struct {
	API         Sender
	Turns       TurnHandler
	Logger      *logging.Logger
	Greeting    string
	PollTimeout time.Duration
	// MaxInFlight bounds concurrent turns; polling pauses when reached.
	MaxInFlight int
}

// Run polls until ctx is canceled, then waits for in-flight turns.
func (b *Bot) Run(ctx context.Context) error {
	if b == nil || b.API == nil || b.Turns == nil {
		return errors.New("telegram bot not configured")
	}

	limit := b.MaxInFlight
	if limit <= 0 {
		limit = defaultMaxInFlight
	}
	slots := make(chan struct{}, limit)

	var (
		wg      sync.WaitGroup
		offset  int64
		backoff time.Duration
	)
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := b.API.GetUpdates(ctx, offset, b.pollTimeout())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			backoff = nextBackoff(backoff)
			b.logWarn("Telegram poll failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			continue
		}
		backoff = 0

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil {
				continue
			}

			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func(msg *Message) {
				defer wg.Done()
				defer func() { <-slots }()
				b.HandleMessage(ctx, msg)
			}(update.Message)
		}
	}
}

// HandleMessage processes a single incoming message.
func (b *Bot) HandleMessage(ctx context.Context, msg *Message) {
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if command, ok := parseCommand(text); ok {
		if command == "start" {
			b.reply(ctx, msg.Chat.ID, b.greeting())
		}
		return
	}

	userID := senderID(msg)
	correlationID := uuid.NewString()

	reply, err := b.Turns.Handle(engine.WithTransport(ctx, TransportName), userID, text)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrRateLimited):
			b.logDebug("Telegram turn dropped by rate limiter",
				zap.String("user_id", userID),
				zap.String("correlation_id", correlationID))
		case errors.Is(err, core.ErrInvalidMessage):
		default:
			b.logError("Telegram turn failed",
				zap.String("user_id", userID),
				zap.String("correlation_id", correlationID),
				zap.Error(err))
		}
		return
	}

	b.reply(ctx, msg.Chat.ID, reply)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := b.API.SendMessage(ctx, chatID, text); err != nil {
		b.logError("Telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) greeting() string {
	if strings.TrimSpace(b.Greeting) != "" {
		return b.Greeting
	}
	return DefaultGreeting
}

func (b *Bot) pollTimeout() time.Duration {
	if b.PollTimeout > 0 {
		return b.PollTimeout
	}
	return defaultPollTimeout
}

func (b *Bot) logDebug(msg string, fields ...zap.Field) {
	if b.Logger != nil {
		b.Logger.Debug(msg, fields...)
	}
}

func (b *Bot) logWarn(msg string, fields ...zap.Field) {
	if b.Logger != nil {
		b.Logger.Warn(msg, fields...)
	}
}

func (b *Bot) logError(msg string, fields ...zap.Field) {
	if b.Logger != nil {
		b.Logger.Error(msg, fields...)
	}
}

// parseCommand returns the command name for "/name", "/name@bot" or
// "/name args".
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text[1:])
	if len(name) == 0 {
		return "", true
	}
	command, _, _ := strings.Cut(name[0], "@")
	return strings.ToLower(command), true
}

func senderID(msg *Message) string {
	if msg.From != nil && msg.From.ID != 0 {
		return strconv.FormatInt(msg.From.ID, 10)
	}
	return strconv.FormatInt(msg.Chat.ID, 10)
}

func nextBackoff(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	current *= 2
	if current > maxPollBackoff {
		return maxPollBackoff
	}
	return current
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
