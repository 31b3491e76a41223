// Package assembler gathers the layered conversation context a system prompt
// is rendered from: raw health data, derived insights, conversation memory,
// environmental snapshots, and reference knowledge. Every layer degrades
// independently; a failed layer is logged and replaced with its empty value
// so one broken source never blanks the whole prompt.
package assembler

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/pulseweave/companion/pkg/db"
	"github.com/pulseweave/companion/pkg/model"
	"github.com/pulseweave/companion/pkg/prompts"
)

const (
	insightLimit   = 10
	knowledgeLimit = 5
)

// externalContextTypes names the environmental snapshots assembled for the
// user's location.
var externalContextTypes = []string{"weather", "air_quality"}

// HighlightSource consolidates a user's extracted conversation memory.
type HighlightSource interface {
	SummaryForUser(ctx context.Context, userID string) (*model.HighlightSummary, error)
}

// Assembler builds the full conversation context and its system prompt.
type Assembler struct {
	store      *db.Store
	rawData    *RawDataLoader
	highlights HighlightSource
	builder    *prompts.Builder
	logger     *log.Logger
}

func New(store *db.Store, highlights HighlightSource, logger *log.Logger) *Assembler {
	return &Assembler{
		store:      store,
		rawData:    NewRawDataLoader(store, logger),
		highlights: highlights,
		builder:    prompts.NewBuilder(logger),
		logger:     logger,
	}
}

// AssembleFullContext gathers every context layer for a user. It always
// returns a usable context: layers that fail to load are logged and left
// empty.
func (a *Assembler) AssembleFullContext(ctx context.Context, userID string) *model.ConversationContext {
	cc := &model.ConversationContext{
		UserID:       userID,
		RawData:      model.RawData{RecentMetrics: map[string][]float64{}},
		ExternalData: map[string]map[string]string{},
	}

	raw, err := a.rawData.Load(ctx, userID)
	if err != nil {
		a.logger.Error("Failed to load raw health data", "user_id", userID, "error", err)
	} else {
		cc.RawData = raw
	}

	insights, err := a.store.ActiveInsights(ctx, userID, insightLimit)
	if err != nil {
		a.logger.Error("Failed to load insights", "user_id", userID, "error", err)
	} else {
		cc.Insights = insights
	}

	summary, err := a.highlights.SummaryForUser(ctx, userID)
	if err != nil {
		a.logger.Error("Failed to load conversation highlights", "user_id", userID, "error", err)
	} else if summary != nil {
		cc.Highlights = *summary
	}

	location := ""
	if cc.RawData.UserProfile != nil {
		location = cc.RawData.UserProfile.Location
	}
	if location != "" {
		for _, contextType := range externalContextTypes {
			snapshot, err := a.store.LatestExternalContext(ctx, contextType, location)
			if err != nil {
				a.logger.Error("Failed to load external context",
					"type", contextType, "location", location, "error", err)
				continue
			}
			if snapshot != nil {
				cc.ExternalData[contextType] = snapshot.Data
			}
		}
	}

	knowledge, err := a.store.KnowledgeEntries(ctx, knowledgeLimit)
	if err != nil {
		a.logger.Error("Failed to load knowledge entries", "error", err)
	} else {
		cc.Knowledge = knowledge
	}

	return cc
}

// ConversationSetup pairs the assembled context with its rendered prompt.
type ConversationSetup struct {
	Context      *model.ConversationContext
	SystemPrompt string
}

// GetConversationContext assembles the context and renders the system prompt
// in one call. A nil sections slice means the default section order.
func (a *Assembler) GetConversationContext(ctx context.Context, userID string, sections []string) *ConversationSetup {
	cc := a.AssembleFullContext(ctx, userID)
	return &ConversationSetup{
		Context:      cc,
		SystemPrompt: a.builder.BuildSystemPrompt(cc, sections),
	}
}
