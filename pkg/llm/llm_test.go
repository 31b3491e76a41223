package llm

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseweave/companion/pkg/config"
)

func TestNewClient(t *testing.T) {
	logger := log.New(io.Discard)

	tests := []struct {
		name         string
		cfg          config.Config
		wantProvider string
		wantErr      func(t *testing.T, err error)
	}{
		{
			name:         "claude",
			cfg:          config.Config{LLMProvider: "claude", AnthropicAPIKey: "key", AnthropicModel: "m"},
			wantProvider: ProviderClaude,
		},
		{
			name:         "anthropic alias",
			cfg:          config.Config{LLMProvider: "Anthropic", AnthropicAPIKey: "key", AnthropicModel: "m"},
			wantProvider: ProviderClaude,
		},
		{
			name:         "openai",
			cfg:          config.Config{LLMProvider: "openai", CompletionsAPIKey: "key", CompletionsAPIURL: "https://api.openai.com/v1", CompletionsModel: "m"},
			wantProvider: ProviderOpenAI,
		},
		{
			name: "claude without key",
			cfg:  config.Config{LLMProvider: "claude"},
			wantErr: func(t *testing.T, err error) {
				assert.True(t, IsConfiguration(err))
				assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
			},
		},
		{
			name: "openai without key",
			cfg:  config.Config{LLMProvider: "openai"},
			wantErr: func(t *testing.T, err error) {
				assert.True(t, IsConfiguration(err))
			},
		},
		{
			name: "unknown provider",
			cfg:  config.Config{LLMProvider: "bedrock"},
			wantErr: func(t *testing.T, err error) {
				assert.False(t, IsConfiguration(err))
				assert.Contains(t, err.Error(), `unknown LLM provider "bedrock"`)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(logger, &tc.cfg)
			if tc.wantErr != nil {
				require.Error(t, err)
				tc.wantErr(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantProvider, client.Provider())
		})
	}
}

func TestErrorKinds(t *testing.T) {
	rateLimited := &Error{Kind: KindRateLimited, Provider: "claude", Message: "slow down"}
	unavailable := &Error{Kind: KindUnavailable, Provider: "claude", Message: "down"}
	configErr := &Error{Kind: KindConfiguration, Provider: "claude", Message: "no key"}

	assert.True(t, IsRateLimited(rateLimited))
	assert.False(t, IsRateLimited(unavailable))
	assert.True(t, IsUnavailable(unavailable))
	assert.True(t, IsConfiguration(configErr))

	// Wrapped errors still classify.
	wrapped := errors.Wrap(rateLimited, "chat failed")
	assert.True(t, IsRateLimited(wrapped))

	// Foreign errors never classify.
	assert.False(t, IsRateLimited(errors.New("plain")))
	assert.False(t, IsUnavailable(nil))
}

func TestErrorMessage(t *testing.T) {
	bare := &Error{Kind: KindGeneric, Provider: "claude", Message: "API error"}
	assert.Equal(t, "claude: API error", bare.Error())

	cause := errors.New("status 500")
	withCause := &Error{Kind: KindUnavailable, Provider: "openai", Message: "provider unavailable", Err: cause}
	assert.Equal(t, "openai: provider unavailable: status 500", withCause.Error())
	assert.Equal(t, cause, errors.Unwrap(withCause))
}

func TestMaxTokensOrDefault(t *testing.T) {
	assert.Equal(t, defaultMaxTokens, maxTokensOrDefault(ChatRequest{}))
	assert.Equal(t, 50, maxTokensOrDefault(ChatRequest{MaxTokens: 50}))
}

func TestMockScriptedResponses(t *testing.T) {
	mock := &Mock{Responses: []string{"one", "two"}}
	ctx := context.Background()

	first, err := mock.Chat(ctx, ChatRequest{UserMessage: "a"})
	require.NoError(t, err)
	assert.Equal(t, "one", first.Text)

	second, err := mock.Chat(ctx, ChatRequest{UserMessage: "b"})
	require.NoError(t, err)
	assert.Equal(t, "two", second.Text)

	// Exhausted scripts repeat the last response.
	third, err := mock.Chat(ctx, ChatRequest{UserMessage: "c"})
	require.NoError(t, err)
	assert.Equal(t, "two", third.Text)

	assert.Len(t, mock.Calls, 3)
	assert.Equal(t, "c", mock.LastCall().UserMessage)
}
