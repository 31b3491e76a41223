package llm

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pulseweave/companion/pkg/config"
)

const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

// NewClient builds the configured provider. The provider set is closed;
// an unknown name is an error, not a fallback.
func NewClient(logger *log.Logger, cfg *config.Config) (Client, error) {
	provider := strings.ToLower(cfg.LLMProvider)

	switch provider {
	case ProviderClaude, "anthropic":
		return NewAnthropicClient(logger, cfg.AnthropicAPIKey, cfg.AnthropicModel)
	case ProviderOpenAI:
		return NewOpenAIClient(logger, cfg.CompletionsAPIKey, cfg.CompletionsAPIURL, cfg.CompletionsModel)
	default:
		return nil, &Error{
			Kind:     KindGeneric,
			Provider: provider,
			Message:  fmt.Sprintf("unknown LLM provider %q", cfg.LLMProvider),
		}
	}
}
