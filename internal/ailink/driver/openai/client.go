package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parlorhq/parlor/internal/ailink/driver"
)

// Default endpoints for the OpenAI-compatible providers this client serves.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultGroqBaseURL   = "https://api.groq.com/openai/v1"
	DefaultXAIBaseURL    = "https://api.x.ai/v1"
)

// Client speaks the OpenAI chat completions API over plain HTTP. Groq and
// xAI expose the same shape, so one client serves all three.
type Client struct {
	Provider   string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient returns a client for provider with defaults applied.
func NewClient(provider, baseURL, apiKey string) *Client {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = "openai"
	}

	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = DefaultBaseURL(provider)
	}

	return &Client{
		Provider: provider,
		BaseURL:  url,
		APIKey:   strings.TrimSpace(apiKey),
	}
}

// DefaultBaseURL returns the public endpoint for a provider type.
func DefaultBaseURL(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "groq":
		return DefaultGroqBaseURL
	case "xai":
		return DefaultXAIBaseURL
	default:
		return DefaultOpenAIBaseURL
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	if c == nil || c.Provider == "" {
		return "openai"
	}
	return c.Provider
}

// Complete sends a chat completion request.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("openai client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}

	payload, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	rec := driver.TraceRecord{
		Timestamp:   time.Now().UTC(),
		Driver:      c.Name(),
		Endpoint:    strings.TrimRight(c.BaseURL, "/") + "/chat/completions",
		Model:       payload.Model,
		PromptSlug:  req.PromptSlug,
		RequestBody: body,
	}
	status, respBody, err := c.post(ctx, rec.Endpoint, body)
	rec.DurationMs = time.Since(rec.Timestamp).Milliseconds()
	rec.StatusCode = status
	rec.Response = respBody
	if err != nil {
		rec.Error = err.Error()
	}
	driver.Record(rec)
	if err != nil {
		return nil, err
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, &driver.ProviderError{
			Provider:    c.Name(),
			StatusCode:  status,
			Message:     strings.TrimSpace(string(respBody)),
			RawResponse: respBody,
		}
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parsed.decode()
}

func (c *Client) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
