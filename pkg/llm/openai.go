package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pulseweave/companion/pkg/model"
)

// OpenAIClient talks to an OpenAI-compatible completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *log.Logger
}

var _ Client = (*OpenAIClient)(nil)

func NewOpenAIClient(logger *log.Logger, apiKey string, baseURL string, modelName string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, &Error{
			Kind:     KindConfiguration,
			Provider: ProviderOpenAI,
			Message:  "COMPLETIONS_API_KEY is not set",
		}
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &OpenAIClient{
		client: &client,
		model:  modelName,
		logger: logger,
	}, nil
}

func (c *OpenAIClient) Provider() string { return ProviderOpenAI }

func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, turn := range req.History {
		if turn.Role == model.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.UserMessage))

	params := openai.ChatCompletionNewParams{
		Messages:  messages,
		Model:     openai.ChatModel(c.model),
		MaxTokens: openai.Int(int64(maxTokensOrDefault(req))),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	c.logger.Debug("Sending request to OpenAI", "model", c.model, "turns", len(messages))

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.wrapError(err)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return nil, &Error{Kind: KindGeneric, Provider: ProviderOpenAI, Message: "returned no completion choices"}
	}

	latency := time.Since(start)
	c.logger.Debug("Received response from OpenAI", "latency", latency)

	return &ChatResponse{
		Text:    completion.Choices[0].Message.Content,
		Latency: latency,
		Model:   c.model,
	}, nil
}

func (c *OpenAIClient) IsAvailable(ctx context.Context) bool {
	_, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage("ping")},
		Model:     openai.ChatModel(c.model),
		MaxTokens: openai.Int(10),
	})
	if err != nil {
		c.logger.Warn("OpenAI availability check failed", "error", err)
		return false
	}
	return true
}

func (c *OpenAIClient) wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &Error{Kind: KindRateLimited, Provider: ProviderOpenAI, Message: "rate limit exceeded", Err: err}
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return &Error{Kind: KindUnavailable, Provider: ProviderOpenAI, Message: "provider unavailable", Err: err}
		default:
			return &Error{Kind: KindGeneric, Provider: ProviderOpenAI, Message: "API error", Err: err}
		}
	}

	return &Error{Kind: KindUnavailable, Provider: ProviderOpenAI, Message: "cannot reach provider", Err: err}
}
