package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	errUpstreamStatus  = errors.New("completion API returned error status")
	errEmptyCompletion = errors.New("completion API returned no choices")
)

// ClientConfig holds configuration for the completion client.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	DefaultModel   string
	RequestTimeout time.Duration
}

// DefaultClientConfig returns default configuration for an OpenAI-compatible
// endpoint.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        "https://api.openai.com/v1",
		DefaultModel:   "gpt-4o-mini",
		RequestTimeout: 30 * time.Second,
	}
}

// Client calls an OpenAI-compatible chat-completions API.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger
}

// Ensure Client implements Completer.
var _ Completer = (*Client)(nil)

// NewClient creates a completion client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultClientConfig().BaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultClientConfig().DefaultModel
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultClientConfig().RequestTimeout
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the assembled prompt upstream and returns the reply text.
// The instructions travel as the system message; the rendered history plus
// live user message travel as a single user message.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}

	payload := chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.Instructions},
			{Role: "user", Content: req.Message},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call completion API: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close completion response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}

	var decoded chatCompletionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("completion API error",
			"status", resp.StatusCode,
			"agent", req.AgentName,
			"model", model,
		)
		if decoded.Error != nil && decoded.Error.Message != "" {
			return nil, fmt.Errorf("%w %d: %s", errUpstreamStatus, resp.StatusCode, decoded.Error.Message)
		}
		return nil, fmt.Errorf("%w %d", errUpstreamStatus, resp.StatusCode)
	}

	if len(decoded.Choices) == 0 {
		return nil, errEmptyCompletion
	}
	return &Response{Text: decoded.Choices[0].Message.Content}, nil
}
