package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/liushuangls/go-anthropic/v2"

	"github.com/pulseweave/companion/pkg/model"
)

// AnthropicClient talks to the Anthropic messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *log.Logger
}

var _ Client = (*AnthropicClient)(nil)

func NewAnthropicClient(logger *log.Logger, apiKey string, modelName string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, &Error{
			Kind:     KindConfiguration,
			Provider: ProviderClaude,
			Message:  "ANTHROPIC_API_KEY is not set",
		}
	}

	return &AnthropicClient{
		client: anthropic.NewClient(apiKey),
		model:  modelName,
		logger: logger,
	}, nil
}

func (c *AnthropicClient) Provider() string { return ProviderClaude }

func (c *AnthropicClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	messages := make([]anthropic.Message, 0, len(req.History)+1)
	for _, turn := range req.History {
		if turn.Role == model.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantTextMessage(turn.Content))
		} else {
			messages = append(messages, anthropic.NewUserTextMessage(turn.Content))
		}
	}
	messages = append(messages, anthropic.NewUserTextMessage(req.UserMessage))

	request := anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		Messages:  messages,
		MaxTokens: maxTokensOrDefault(req),
	}
	if req.SystemPrompt != "" {
		request.System = req.SystemPrompt
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		request.Temperature = &temp
	}

	c.logger.Debug("Sending request to Anthropic", "model", c.model, "turns", len(messages))

	resp, err := c.client.CreateMessages(ctx, request)
	if err != nil {
		return nil, c.wrapError(err)
	}

	if len(resp.Content) == 0 || resp.Content[0].Text == nil || *resp.Content[0].Text == "" {
		return nil, &Error{Kind: KindGeneric, Provider: ProviderClaude, Message: "empty response"}
	}

	latency := time.Since(start)
	c.logger.Debug("Received response from Anthropic", "latency", latency)

	return &ChatResponse{
		Text:    *resp.Content[0].Text,
		Latency: latency,
		Model:   c.model,
	}, nil
}

func (c *AnthropicClient) IsAvailable(ctx context.Context) bool {
	_, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		Messages:  []anthropic.Message{anthropic.NewUserTextMessage("ping")},
		MaxTokens: 10,
	})
	if err != nil {
		c.logger.Warn("Anthropic availability check failed", "error", err)
		return false
	}
	return true
}

func (c *AnthropicClient) wrapError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimitErr():
			return &Error{Kind: KindRateLimited, Provider: ProviderClaude, Message: "rate limit exceeded", Err: err}
		case apiErr.IsOverloadedErr():
			return &Error{Kind: KindUnavailable, Provider: ProviderClaude, Message: "provider overloaded", Err: err}
		default:
			return &Error{Kind: KindGeneric, Provider: ProviderClaude, Message: "API error", Err: err}
		}
	}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.StatusCode == http.StatusTooManyRequests:
			return &Error{Kind: KindRateLimited, Provider: ProviderClaude, Message: "rate limit exceeded", Err: err}
		case reqErr.StatusCode >= http.StatusInternalServerError:
			return &Error{Kind: KindUnavailable, Provider: ProviderClaude, Message: "provider unavailable", Err: err}
		default:
			return &Error{Kind: KindGeneric, Provider: ProviderClaude, Message: "request failed", Err: err}
		}
	}

	// Anything that never produced an HTTP status is a connectivity failure.
	return &Error{Kind: KindUnavailable, Provider: ProviderClaude, Message: "cannot reach provider", Err: err}
}
