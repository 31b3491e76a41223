package highlights

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/pulseweave/companion/pkg/db"
	"github.com/pulseweave/companion/pkg/llm"
	"github.com/pulseweave/companion/pkg/model"
)

const (
	// minUserContentLength gates extraction on substance: shorter combined
	// user text cannot carry a durable fact.
	minUserContentLength = 20

	extractionTemperature = 0.1
	extractionMaxTokens   = 1000

	extractionSystemPrompt = "You are a precise data extraction assistant. Always respond with valid JSON only."

	notesSeparator = " | "
)

// greetingPhrases marks very short conversations as pure pleasantries.
var greetingPhrases = []string{
	"hi", "hello", "hey", "good morning", "good evening",
	"thanks", "thank you", "bye", "goodbye",
}

// Result is a parsed, schema-validated extraction payload.
type Result struct {
	StructuredData    map[string]any `json:"structured_data"`
	UnstructuredNotes string         `json:"unstructured_notes"`
}

// Extractor turns finished conversations into highlight records and merges
// them into per-user summaries. Extraction is best effort: a failure never
// surfaces past the caller's log line.
type Extractor struct {
	store  *db.Store
	client llm.Client
	logger *log.Logger
}

func NewExtractor(store *db.Store, client llm.Client, logger *log.Logger) *Extractor {
	return &Extractor{store: store, client: client, logger: logger}
}

// ShouldExtract decides whether a conversation is worth sending to the model.
// It skips conversations that already have a highlight, carry almost no user
// text, or are nothing but a short greeting.
func (e *Extractor) ShouldExtract(ctx context.Context, conversationID string) (bool, error) {
	existing, err := e.store.HighlightByConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if conv == nil || len(conv.Turns) == 0 {
		return false, nil
	}

	userText := strings.TrimSpace(userContent(conv.Turns))
	if len(userText) < minUserContentLength {
		return false, nil
	}

	lowered := strings.ToLower(userText)
	if len(strings.Fields(lowered)) <= 3 {
		for _, phrase := range greetingPhrases {
			if strings.Contains(lowered, phrase) {
				return false, nil
			}
		}
	}

	return true, nil
}

func userContent(turns []model.Turn) string {
	parts := []string{}
	for _, turn := range turns {
		if turn.Role == model.RoleUser {
			parts = append(parts, turn.Content)
		}
	}
	return strings.Join(parts, " ")
}

// FormatTranscript renders turns into the plain-text transcript embedded in
// the extraction prompt.
func FormatTranscript(turns []model.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		speaker := "User"
		if turn.Role == model.RoleAssistant {
			speaker = "Assistant"
		}
		lines = append(lines, speaker+": "+turn.Content)
	}
	return strings.Join(lines, "\n\n")
}

// BuildExtractionPrompt assembles the full extraction instruction for one
// transcript: field catalogue, rules, and the exact JSON shape expected back.
func BuildExtractionPrompt(transcript string) string {
	template, _ := json.MarshalIndent(map[string]any{
		"structured_data":    ExtractionTemplate(),
		"unstructured_notes": "",
	}, "", "  ")

	var b strings.Builder
	b.WriteString("Analyze this health coaching conversation and extract important user context.\n\n")
	b.WriteString("CONVERSATION:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nExtract information into these structured fields (use null when the conversation says nothing about a field):\n")
	b.WriteString(PromptDescription())
	b.WriteString("\n\nAlso capture anything else important about the user in unstructured_notes.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Only record facts the user actually stated; never infer or invent.\n")
	b.WriteString("- Use null for fields the conversation does not cover.\n")
	b.WriteString("- Do not add fields beyond the ones listed.\n")
	b.WriteString("- Respond with JSON only, in exactly this shape:\n\n")
	b.Write(template)
	return b.String()
}

// cleanResponse strips the markdown code fences some models wrap JSON in.
func cleanResponse(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// Extract runs the model over a transcript and returns the validated result,
// or nil when the conversation yielded nothing usable. Model and parse
// failures are logged, never returned.
func (e *Extractor) Extract(ctx context.Context, turns []model.Turn) *Result {
	temperature := extractionTemperature
	resp, err := e.client.Chat(ctx, llm.ChatRequest{
		UserMessage:  BuildExtractionPrompt(FormatTranscript(turns)),
		SystemPrompt: extractionSystemPrompt,
		Temperature:  lo.ToPtr(temperature),
		MaxTokens:    extractionMaxTokens,
	})
	if err != nil {
		e.logger.Error("Highlight extraction call failed", "error", err)
		return nil
	}

	result, err := parseResult(resp.Text)
	if err != nil {
		e.logger.Warn("Discarding unparseable extraction result", "error", err)
		return nil
	}
	return result
}

func parseResult(text string) (*Result, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleanResponse(text)), &envelope); err != nil {
		return nil, errors.Wrap(err, "invalid JSON")
	}

	structuredRaw, ok := envelope["structured_data"]
	if !ok {
		return nil, errors.New("missing structured_data")
	}
	notesRaw, ok := envelope["unstructured_notes"]
	if !ok {
		return nil, errors.New("missing unstructured_notes")
	}

	structured := map[string]any{}
	if string(structuredRaw) != "null" {
		if err := json.Unmarshal(structuredRaw, &structured); err != nil {
			return nil, errors.Wrap(err, "structured_data is not an object")
		}
	}
	if err := ValidateStructuredData(structured); err != nil {
		return nil, err
	}
	normalizePlaceholders(structured)

	notes := ""
	if string(notesRaw) != "null" {
		if err := json.Unmarshal(notesRaw, &notes); err != nil {
			return nil, errors.Wrap(err, "unstructured_notes is not a string")
		}
	}

	return &Result{StructuredData: structured, UnstructuredNotes: strings.TrimSpace(notes)}, nil
}

// normalizePlaceholders converts the literal absence spellings models emit
// ("null", "None", "") into real nulls so empty never masquerades as data.
func normalizePlaceholders(structured map[string]any) {
	for key, value := range structured {
		s, ok := value.(string)
		if !ok {
			continue
		}
		switch strings.TrimSpace(s) {
		case "", "null", "None":
			structured[key] = nil
		}
	}
}

// isEmptyValue reports whether a structured value carries no information.
func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

// hasContent reports whether a result carries at least one non-empty field
// or note.
func (r *Result) hasContent() bool {
	if r == nil {
		return false
	}
	if r.UnstructuredNotes != "" {
		return true
	}
	for _, value := range r.StructuredData {
		if !isEmptyValue(value) {
			return true
		}
	}
	return false
}

// ProcessConversation extracts and stores the highlight for one conversation.
// It reports whether a highlight was written. Upsert by conversation keeps
// the operation idempotent.
func (e *Extractor) ProcessConversation(ctx context.Context, conversationID string) (bool, error) {
	should, err := e.ShouldExtract(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if !should {
		e.logger.Debug("Skipping highlight extraction", "conversation_id", conversationID)
		return false, nil
	}

	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if conv == nil {
		return false, errors.Errorf("conversation %s not found", conversationID)
	}

	result := e.Extract(ctx, conv.Turns)
	if !result.hasContent() {
		e.logger.Info("No highlights found in conversation", "conversation_id", conversationID)
		return false, nil
	}

	highlight := &model.Highlight{
		UserID:            conv.UserID,
		ConversationID:    conversationID,
		StructuredData:    result.StructuredData,
		UnstructuredNotes: result.UnstructuredNotes,
		ExtractedAt:       time.Now().UTC(),
	}

	existing, err := e.store.HighlightByConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if err := e.store.UpdateHighlight(ctx, highlight); err != nil {
			return false, err
		}
	} else if err := e.store.InsertHighlight(ctx, highlight); err != nil {
		return false, err
	}

	e.logger.Info("Stored conversation highlight",
		"conversation_id", conversationID, "user_id", conv.UserID)
	return true, nil
}

// SummaryForUser consolidates all of a user's highlights into one view.
// Records are visited newest first and the first non-empty value per field
// wins, so recent conversations override stale facts without erasing older
// fields the newer conversations never mentioned.
func (e *Extractor) SummaryForUser(ctx context.Context, userID string) (*model.HighlightSummary, error) {
	records, err := e.store.HighlightsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &model.HighlightSummary{
		StructuredData:      map[string]any{},
		SourceConversations: []string{},
		TotalHighlights:     len(records),
	}
	if len(records) == 0 {
		return summary, nil
	}

	lastUpdated := records[0].ExtractedAt
	summary.LastUpdated = &lastUpdated

	notes := []string{}
	for _, record := range records {
		for field, value := range record.StructuredData {
			if isEmptyValue(value) {
				continue
			}
			if _, taken := summary.StructuredData[field]; !taken {
				summary.StructuredData[field] = value
			}
		}
		if record.UnstructuredNotes != "" {
			notes = append(notes, record.UnstructuredNotes)
		}
		summary.SourceConversations = append(summary.SourceConversations, record.ConversationID)
	}
	summary.SourceConversations = lo.Uniq(summary.SourceConversations)
	summary.UnstructuredNotes = strings.Join(notes, notesSeparator)

	return summary, nil
}

// BatchStats summarizes one catch-up sweep over completed conversations.
type BatchStats struct {
	Processed int
	Extracted int
	Skipped   int
	Errors    int
}

// ProcessCompleted sweeps completed conversations that have no highlight yet,
// extracting each. Per-conversation errors are counted and logged, not fatal.
func (e *Extractor) ProcessCompleted(ctx context.Context) (BatchStats, error) {
	conversations, err := e.store.CompletedWithoutHighlights(ctx)
	if err != nil {
		return BatchStats{}, err
	}

	stats := BatchStats{Processed: len(conversations)}
	for _, conv := range conversations {
		extracted, err := e.ProcessConversation(ctx, conv.ID)
		if err != nil {
			e.logger.Error("Batch highlight extraction failed",
				"conversation_id", conv.ID, "error", err)
			stats.Errors++
			continue
		}
		if extracted {
			stats.Extracted++
		} else {
			stats.Skipped++
		}
	}

	e.logger.Info("Highlight catch-up sweep finished",
		"processed", stats.Processed, "extracted", stats.Extracted,
		"skipped", stats.Skipped, "errors", stats.Errors)
	return stats, nil
}
