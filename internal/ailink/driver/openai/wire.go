package openai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/parlorhq/parlor/internal/ailink/content"
	"github.com/parlorhq/parlor/internal/ailink/driver"
)

// Chat completions wire format shared by OpenAI, Groq and xAI.

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *driver.Usage `json:"usage,omitempty"`
}

var errNoChoices = errors.New("empty response choices")

func encodeRequest(req *driver.Request) (*chatCompletionRequest, error) {
	switch {
	case req == nil:
		return nil, errors.New("request is required")
	case strings.TrimSpace(req.Model) == "":
		return nil, errors.New("model is required")
	case len(req.Messages) == 0:
		return nil, errors.New("messages are required")
	}

	out := &chatCompletionRequest{
		Model:       req.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, msg := range req.Messages {
		for _, block := range msg.Content {
			if block.Type != "" && block.Type != content.ContentTypeText {
				return nil, fmt.Errorf("unsupported content type: %s", block.Type)
			}
		}
		out.Messages = append(out.Messages, chatMessage{Role: msg.Role, Content: msg.Text()})
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type != "" {
		out.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: req.ResponseFormat.Type}
	}
	return out, nil
}

// decode keeps the first choice; the relay never asks for more than one.
func (r *chatCompletionResponse) decode() (*driver.Response, error) {
	if len(r.Choices) == 0 {
		return nil, errNoChoices
	}
	first := r.Choices[0]
	return &driver.Response{
		Content:      []content.ContentBlock{{Type: content.ContentTypeText, Text: first.Message.Content}},
		FinishReason: first.FinishReason,
		Usage:        r.Usage,
	}, nil
}
