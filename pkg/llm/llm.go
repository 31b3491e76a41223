package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulseweave/companion/pkg/model"
)

const defaultMaxTokens = 1000

// ChatRequest carries one completion request. History is oldest-first; the
// client appends UserMessage as the final turn before transmission. A nil
// Temperature means the provider default.
type ChatRequest struct {
	UserMessage  string
	History      []model.Turn
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
}

// ChatResponse is the provider-independent completion result.
type ChatResponse struct {
	Text    string
	Latency time.Duration
	Model   string
}

// Client is the uniform interface to a remote text-generation provider.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// IsAvailable performs a minimal round trip and never returns an error.
	IsAvailable(ctx context.Context) bool
	Provider() string
}

// ErrorKind distinguishes the failure classes callers must react to
// differently.
type ErrorKind int

const (
	// KindGeneric covers auth failures, malformed requests and empty
	// responses. Not retryable within a single turn.
	KindGeneric ErrorKind = iota
	// KindConfiguration means the client could not be constructed, e.g. a
	// missing API key. Fatal at startup.
	KindConfiguration
	// KindRateLimited is transient; the caller may retry after backoff.
	KindRateLimited
	// KindUnavailable is a network or connectivity failure, also transient.
	KindUnavailable
)

// Error wraps a provider failure with its kind so callers can branch on it
// without importing provider SDKs.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func kindOf(err error) (ErrorKind, bool) {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Kind, true
	}
	return 0, false
}

// IsRateLimited reports whether err is a transient rate-limit failure.
func IsRateLimited(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindRateLimited
}

// IsUnavailable reports whether err is a transient connectivity failure.
func IsUnavailable(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnavailable
}

// IsConfiguration reports whether err is a construction-time failure.
func IsConfiguration(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConfiguration
}

func maxTokensOrDefault(req ChatRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}
