// Package ai talks to OpenAI-compatible text-completion backends such as
// Cloudflare Workers AI and builds the notification prompts on top of them.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/config"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	openai "github.com/sashabaranov/go-openai"
)

// Completer produces a completion for a chat prompt.
type Completer interface {
	Complete(ctx context.Context, req notifier.CompletionRequest) (*notifier.Completion, error)
}

// Client is a Completer backed by an OpenAI-compatible chat completions API.
// It never retries; callers decide whether a failed generation is retried.
type Client struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	logger     *slog.Logger
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.AIConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = httpClient

	return &Client{
		client:     openai.NewClientWithConfig(oc),
		httpClient: httpClient,
		model:      cfg.Model,
		logger:     logger,
	}
}

// Model returns the default model.
func (c *Client) Model() string {
	return c.model
}

// Complete sends req to the backend. An empty model selects the default one.
func (c *Client) Complete(ctx context.Context, req notifier.CompletionRequest) (*notifier.Completion, error) {
	if len(req.Messages) == 0 {
		return nil, &notifier.ValidationError{Field: "messages", Message: "at least one message is required"}
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	c.logger.Info("AI completion request starting",
		"model", model,
		"messages", len(messages),
		"max_tokens", req.MaxTokens,
		"temperature", req.Temperature)

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	duration := time.Since(start)
	if err != nil {
		c.logger.Warn("AI completion request failed",
			"model", model,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, &notifier.ExternalServiceError{Service: "ai", Err: describeAPIError(err)}
	}

	out := &notifier.Completion{}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
	}
	if resp.Usage.TotalTokens > 0 {
		out.Usage = &notifier.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	c.logger.Info("AI completion request completed",
		"model", model,
		"duration_ms", duration.Milliseconds(),
		"choices", len(resp.Choices),
		"total_tokens", resp.Usage.TotalTokens)
	return out, nil
}

func describeAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("chat completion: HTTP %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	return fmt.Errorf("chat completion: %w", err)
}
