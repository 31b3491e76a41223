// Package orchestrator drives one conversation turn through its stations:
// load context, build the prompt, generate a response, persist the exchange,
// decide whether to continue, extract highlights. The user-visible contract
// is that a turn always yields a response string, however degraded the path
// that produced it.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/pulseweave/companion/pkg/assembler"
	"github.com/pulseweave/companion/pkg/db"
	"github.com/pulseweave/companion/pkg/highlights"
	"github.com/pulseweave/companion/pkg/llm"
	"github.com/pulseweave/companion/pkg/model"
	"github.com/pulseweave/companion/pkg/prompts"
)

const (
	// defaultMaxTurns caps a conversation at five exchanges.
	defaultMaxTurns = 10

	modelFailureResponse = "I'm sorry, I'm having trouble processing your request right now. Please try again in a moment."
)

// closingPhrases end a conversation when they are the entire user message.
var closingPhrases = map[string]bool{
	"bye":     true,
	"goodbye": true,
}

// Options tunes orchestrator behavior.
type Options struct {
	// ExtractEveryTurn runs highlight extraction after each persisted
	// exchange instead of only when the conversation stops.
	ExtractEveryTurn bool

	// MaxTurns stops the conversation once it holds this many turns.
	MaxTurns int

	// Nats, when set, receives each assistant turn on conversation.<id>.
	Nats *nats.Conn
}

// DefaultOptions matches the production configuration.
func DefaultOptions() Options {
	return Options{ExtractEveryTurn: true, MaxTurns: defaultMaxTurns}
}

// Orchestrator owns the turn state machine and conversation lifecycle.
type Orchestrator struct {
	store     *db.Store
	assembler *assembler.Assembler
	extractor *highlights.Extractor
	client    llm.Client
	builder   *prompts.Builder
	logger    *log.Logger
	opts      Options

	steps map[State]stepFunc
}

func New(
	store *db.Store,
	asm *assembler.Assembler,
	extractor *highlights.Extractor,
	client llm.Client,
	logger *log.Logger,
	opts Options,
) *Orchestrator {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = defaultMaxTurns
	}

	o := &Orchestrator{
		store:     store,
		assembler: asm,
		extractor: extractor,
		client:    client,
		builder:   prompts.NewBuilder(logger),
		logger:    logger,
		opts:      opts,
	}
	o.steps = map[State]stepFunc{
		StateLoadContext:       o.loadContext,
		StateBuildPrompt:       o.buildPrompt,
		StateGenerateResponse:  o.generateResponse,
		StatePersistTurn:       o.persistTurn,
		StateCheckContinue:     o.checkContinue,
		StateExtractHighlights: o.extractHighlights,
	}
	return o
}

// turn is the mutable state threaded through one chat pass.
type turn struct {
	userID         string
	message        string
	conversationID string
	history        []model.Turn

	context      *model.ConversationContext
	systemPrompt string
	response     string
	modelErr     error
	persisted    bool
	stop         bool
}

func (t *turn) result() *model.TurnResult {
	result := &model.TurnResult{
		Response:       t.response,
		ConversationID: t.conversationID,
		Stop:           t.stop,
	}
	if t.modelErr != nil {
		result.Error = t.modelErr.Error()
	}
	return result
}

// Chat runs exactly one pass of the state machine. It never returns nil and
// the result always carries a response string.
func (o *Orchestrator) Chat(ctx context.Context, userID, message, conversationID string, history []model.Turn) *model.TurnResult {
	t := &turn{
		userID:         userID,
		message:        message,
		conversationID: conversationID,
		history:        history,
	}

	state := StateLoadContext
	for state != StateEnd {
		step, ok := o.steps[state]
		if !ok {
			o.logger.Error("No step registered for state", "state", state)
			break
		}
		next := step(ctx, t)
		o.logger.Debug("Turn step finished", "state", state, "next", next)
		state = next
	}

	return t.result()
}

func (o *Orchestrator) loadContext(ctx context.Context, t *turn) State {
	t.context = o.assembler.AssembleFullContext(ctx, t.userID)
	return StateBuildPrompt
}

func (o *Orchestrator) buildPrompt(_ context.Context, t *turn) State {
	prompt := o.builder.BuildSystemPrompt(t.context, nil)
	if strings.TrimSpace(prompt) == "" {
		o.logger.Warn("Prompt assembly produced nothing; using fallback persona")
		prompt = prompts.FallbackSystemPrompt
	}
	t.systemPrompt = prompt
	return StateGenerateResponse
}

func (o *Orchestrator) generateResponse(ctx context.Context, t *turn) State {
	resp, err := o.client.Chat(ctx, llm.ChatRequest{
		UserMessage:  t.message,
		History:      t.history,
		SystemPrompt: t.systemPrompt,
	})
	if err != nil {
		o.logger.Error("Model call failed", "user_id", t.userID, "error", err)
		t.response = modelFailureResponse
		t.modelErr = err
		return StatePersistTurn
	}
	t.response = resp.Text
	return StatePersistTurn
}

func (o *Orchestrator) persistTurn(ctx context.Context, t *turn) State {
	conv, err := o.resolveConversation(ctx, t)
	if err != nil {
		o.logger.Error("Failed to resolve conversation; response returned unpersisted",
			"user_id", t.userID, "error", err)
		return StateCheckContinue
	}
	t.conversationID = conv.ID

	now := time.Now().UTC()
	exchange := []model.Turn{
		{Role: model.RoleUser, Content: t.message, CreatedAt: now},
		{Role: model.RoleAssistant, Content: t.response, CreatedAt: now},
	}
	if err := o.store.AppendTurns(ctx, conv.ID, exchange); err != nil {
		o.logger.Error("Failed to persist turn; response returned unpersisted",
			"conversation_id", conv.ID, "error", err)
		return StateCheckContinue
	}
	t.persisted = true

	o.publishAssistantTurn(conv.ID, t.response, now)
	return StateCheckContinue
}

func (o *Orchestrator) resolveConversation(ctx context.Context, t *turn) (*model.Conversation, error) {
	if t.conversationID != "" {
		conv, err := o.store.GetConversation(ctx, t.conversationID)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			return conv, nil
		}
		o.logger.Warn("Requested conversation not found; starting a new one",
			"conversation_id", t.conversationID)
	}
	return o.store.GetOrCreateActiveConversation(ctx, t.userID)
}

func (o *Orchestrator) checkContinue(ctx context.Context, t *turn) State {
	if closingPhrases[strings.ToLower(strings.TrimSpace(t.message))] {
		t.stop = true
	} else {
		count := len(t.history) + 2
		if t.persisted {
			stored, err := o.store.TurnCount(ctx, t.conversationID)
			if err != nil {
				o.logger.Error("Failed to count turns", "conversation_id", t.conversationID, "error", err)
			} else {
				count = stored
			}
		}
		t.stop = count >= o.opts.MaxTurns
	}

	if t.stop && t.persisted {
		if err := o.store.CompleteConversation(ctx, t.conversationID); err != nil {
			o.logger.Error("Failed to complete conversation",
				"conversation_id", t.conversationID, "error", err)
		}
	}

	if t.persisted && (o.opts.ExtractEveryTurn || t.stop) {
		return StateExtractHighlights
	}
	return StateEnd
}

func (o *Orchestrator) extractHighlights(ctx context.Context, t *turn) State {
	if _, err := o.extractor.ProcessConversation(ctx, t.conversationID); err != nil {
		o.logger.Error("Highlight extraction failed",
			"conversation_id", t.conversationID, "error", err)
	}
	return StateEnd
}

// EndConversation marks a conversation completed and runs a final highlight
// pass regardless of the per-turn extraction setting.
func (o *Orchestrator) EndConversation(ctx context.Context, conversationID string) error {
	if err := o.store.CompleteConversation(ctx, conversationID); err != nil {
		return err
	}
	if _, err := o.extractor.ProcessConversation(ctx, conversationID); err != nil {
		o.logger.Error("Final highlight extraction failed",
			"conversation_id", conversationID, "error", err)
	}
	return nil
}

// IsAvailable reports whether the underlying model client answers.
func (o *Orchestrator) IsAvailable(ctx context.Context) bool {
	return o.client.IsAvailable(ctx)
}

type turnEvent struct {
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

func (o *Orchestrator) publishAssistantTurn(conversationID, content string, at time.Time) {
	if o.opts.Nats == nil {
		return
	}
	payload, err := json.Marshal(turnEvent{
		ConversationID: conversationID,
		Role:           string(model.RoleAssistant),
		Content:        content,
		CreatedAt:      at,
	})
	if err != nil {
		o.logger.Error("Failed to marshal turn event", "error", err)
		return
	}
	subject := fmt.Sprintf("conversation.%s", conversationID)
	if err := o.opts.Nats.Publish(subject, payload); err != nil {
		o.logger.Error("Failed to publish turn event", "subject", subject, "error", err)
	}
}
