package ailink

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/ailink/content"
	"github.com/parlorhq/parlor/internal/ailink/driver"
)

// Generation roles routed through Config.Routing.
const (
	RoleReply      = "reply"
	RoleCompaction = "compaction"
)

const (
	defaultGenerateTimeout = 60 * time.Second
	defaultRawCaptureBytes = 2048
)

var reasoningBlock = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)

// Service turns flat prompt text into a chat completion on the provider
// routed for a role.
type Service struct {
	Providers *Registry
	Logger    *logging.Logger
}

// NewService returns a Service over the provider registry.
func NewService(providers *Registry, logger *logging.Logger) *Service {
	return &Service{Providers: providers, Logger: logger}
}

// Generate sends promptText to the provider for role and returns the reply
// with any reasoning blocks removed. Errors are *Error values.
func (s *Service) Generate(ctx context.Context, role, promptText string) (string, error) {
	if s == nil || s.Providers == nil {
		return "", &Error{Code: CodeNotConfigured, Message: "ailink service not configured"}
	}

	messages := ParseMessages(promptText)
	if len(messages) == 0 {
		return "", &Error{Code: CodeProviderBadRequest, Message: "prompt is empty"}
	}

	resolved, err := s.Providers.Resolve(role, nil, "")
	if err != nil {
		return "", &Error{Code: CodeNotConfigured, Message: "no provider available", Details: err.Error(), Err: err}
	}

	req := &driver.Request{
		Model:       resolved.Model,
		Messages:    messages,
		Temperature: resolved.Provider.Temperature,
		PromptSlug:  role,
		Metadata:    map[string]string{"provider_id": resolved.ProviderID},
	}
	if resolved.Provider.MaxTokens > 0 {
		maxTokens := resolved.Provider.MaxTokens
		req.MaxTokens = &maxTokens
	}

	cfg := s.Providers.Config()
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := resolved.Driver.Complete(ctx, req)
	if err != nil {
		mapped := mapProviderError(err, rawCaptureLimit(cfg.Debug))
		if s.Logger != nil {
			s.Logger.Warn("Provider call failed",
				zap.String("role", role),
				zap.String("provider", resolved.ProviderID),
				zap.String("model", resolved.Model),
				zap.String("code", mapped.Code),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
		}
		return "", mapped
	}

	text := StripReasoning(resp.Text())
	if text == "" {
		return "", &Error{Code: CodeEmptyResponse, Message: "provider returned no text"}
	}

	if s.Logger != nil {
		fields := []zap.Field{
			zap.String("role", role),
			zap.String("provider", resolved.ProviderID),
			zap.String("model", resolved.Model),
			zap.Duration("duration", time.Since(start)),
		}
		if resp.Usage != nil {
			fields = append(fields, zap.Int("total_tokens", resp.Usage.TotalTokens))
		}
		s.Logger.Debug("Provider call completed", fields...)
	}
	return text, nil
}

// RoleGenerator binds a Service to one routing role.
type RoleGenerator struct {
	Service *Service
	Role    string
}

// Generate implements the relay's generator contract.
func (g RoleGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.Service.Generate(ctx, g.Role, prompt)
}

// ParseMessages splits a flat prompt into chat messages. Lines starting with
// "User:" become user messages, "Assistant:" or "Bot:" assistant messages.
// Consecutive other lines are merged into one system message. Blank lines
// are skipped.
func ParseMessages(promptText string) []content.Message {
	var (
		messages []content.Message
		system   []string
	)
	flush := func() {
		if len(system) == 0 {
			return
		}
		messages = append(messages, content.TextMessage(content.RoleSystem, strings.Join(system, "\n")))
		system = nil
	}

	for _, line := range strings.Split(promptText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		switch {
		case strings.HasPrefix(trimmed, "User:"):
			flush()
			messages = append(messages, content.TextMessage(content.RoleUser, strings.TrimSpace(strings.TrimPrefix(trimmed, "User:"))))
		case strings.HasPrefix(trimmed, "Assistant:"):
			flush()
			messages = append(messages, content.TextMessage(content.RoleAssistant, strings.TrimSpace(strings.TrimPrefix(trimmed, "Assistant:"))))
		case strings.HasPrefix(trimmed, "Bot:"):
			flush()
			messages = append(messages, content.TextMessage(content.RoleAssistant, strings.TrimSpace(strings.TrimPrefix(trimmed, "Bot:"))))
		default:
			system = append(system, trimmed)
		}
	}
	flush()
	return messages
}

// StripReasoning removes <think> blocks some models emit before the answer.
func StripReasoning(text string) string {
	return strings.TrimSpace(reasoningBlock.ReplaceAllString(text, ""))
}

func rawCaptureLimit(cfg DebugConfig) int {
	if !cfg.CaptureRawEnabled {
		return 0
	}
	if cfg.CaptureRawMaxBytes <= 0 {
		return defaultRawCaptureBytes
	}
	return cfg.CaptureRawMaxBytes
}
