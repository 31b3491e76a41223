package orchestrator

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseweave/companion/pkg/assembler"
	"github.com/pulseweave/companion/pkg/db"
	"github.com/pulseweave/companion/pkg/highlights"
	"github.com/pulseweave/companion/pkg/llm"
	"github.com/pulseweave/companion/pkg/model"
)

const extractionJSON = `{
	"structured_data": {"goals_mentioned": ["run 5K"]},
	"unstructured_notes": "wants a spring race"
}`

type fixture struct {
	store *db.Store
	mock  *llm.Mock
	orch  *Orchestrator
	user  *model.User
}

func newFixture(t *testing.T, mock *llm.Mock, opts Options) *fixture {
	t.Helper()
	logger := log.New(io.Discard)

	store, err := db.NewStore(context.Background(), filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	user := &model.User{
		Age:      34,
		Location: "Berlin",
		Preferences: map[string]string{
			"communication_style": "analytical",
		},
	}
	require.NoError(t, store.CreateUser(context.Background(), user))

	extractor := highlights.NewExtractor(store, mock, logger)
	asm := assembler.New(store, extractor, logger)

	return &fixture{
		store: store,
		mock:  mock,
		orch:  New(store, asm, extractor, mock, logger, opts),
		user:  user,
	}
}

func TestChatEndToEnd(t *testing.T) {
	mock := &llm.Mock{Responses: []string{"You averaged 8500 steps, nice work.", extractionJSON}}
	f := newFixture(t, mock, DefaultOptions())
	ctx := context.Background()
	now := time.Now().UTC()

	for _, value := range []float64{8000, 9000} {
		require.NoError(t, f.store.AddMetric(ctx, &model.HealthMetric{
			UserID:     f.user.ID,
			MetricType: "steps",
			Value:      value,
			Timestamp:  now.Add(-time.Hour),
		}))
	}

	result := f.orch.Chat(ctx, f.user.ID, "How has my activity been this week overall?", "", nil)
	require.NotNil(t, result)
	assert.Equal(t, "You averaged 8500 steps, nice work.", result.Response)
	assert.Empty(t, result.Error)
	assert.False(t, result.Stop)
	require.NotEmpty(t, result.ConversationID)

	// The assembled context made it into the system prompt.
	first := mock.Calls[0]
	assert.Contains(t, first.SystemPrompt, "average 8500")
	assert.Contains(t, first.SystemPrompt, "precisely and analytically")
	assert.Equal(t, "How has my activity been this week overall?", first.UserMessage)

	conv, err := f.store.GetConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, model.RoleUser, conv.Turns[0].Role)
	assert.Equal(t, model.RoleAssistant, conv.Turns[1].Role)
	assert.Equal(t, "You averaged 8500 steps, nice work.", conv.Turns[1].Content)

	// Per-turn extraction stored a highlight.
	highlight, err := f.store.HighlightByConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, highlight)
	assert.Equal(t, []any{"run 5K"}, highlight.StructuredData["goals_mentioned"])
}

func TestChatReusesActiveConversation(t *testing.T) {
	mock := &llm.Mock{Responses: []string{"first", "second"}}
	opts := DefaultOptions()
	opts.ExtractEveryTurn = false
	f := newFixture(t, mock, opts)
	ctx := context.Background()

	one := f.orch.Chat(ctx, f.user.ID, "Tell me about my sleep patterns please", "", nil)
	two := f.orch.Chat(ctx, f.user.ID, "And what about my heart rate trends?", "", nil)
	require.NotEmpty(t, one.ConversationID)
	assert.Equal(t, one.ConversationID, two.ConversationID)

	count, err := f.store.TurnCount(ctx, one.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestChatAlwaysRespondsOnModelFailure(t *testing.T) {
	mock := &llm.Mock{Err: errors.New("upstream exploded")}
	f := newFixture(t, mock, DefaultOptions())
	ctx := context.Background()

	result := f.orch.Chat(ctx, f.user.ID, "How did I sleep last night, any idea?", "", nil)
	require.NotNil(t, result)
	assert.Equal(t, modelFailureResponse, result.Response)
	assert.Contains(t, result.Error, "upstream exploded")

	// The apology is persisted as the assistant turn.
	require.NotEmpty(t, result.ConversationID)
	conv, err := f.store.GetConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, modelFailureResponse, conv.Turns[1].Content)
}

func TestChatSurvivesClosedStore(t *testing.T) {
	mock := &llm.Mock{Responses: []string{"still here"}}
	f := newFixture(t, mock, DefaultOptions())
	require.NoError(t, f.store.Close())

	result := f.orch.Chat(context.Background(), f.user.ID, "Is anything on for today at all?", "", nil)
	require.NotNil(t, result)
	assert.Equal(t, "still here", result.Response)
	assert.Empty(t, result.ConversationID)

	// Persistence failed, so extraction never ran.
	assert.Len(t, mock.Calls, 1)
}

func TestStopCriteria(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		maxTurns int
		want     bool
	}{
		{"plain question continues", "What should I eat before a long run?", 10, false},
		{"bye stops", "bye", 10, true},
		{"goodbye with padding stops", "  Goodbye  ", 10, true},
		{"goodbye inside a sentence continues", "is it goodbye to late snacks?", 10, false},
		{"turn cap stops", "What should I eat before a long run?", 2, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.ExtractEveryTurn = false
			opts.MaxTurns = tc.maxTurns
			f := newFixture(t, &llm.Mock{Responses: []string{"ok"}}, opts)

			result := f.orch.Chat(context.Background(), f.user.ID, tc.message, "", nil)
			assert.Equal(t, tc.want, result.Stop)
		})
	}
}

func TestStopCompletesConversation(t *testing.T) {
	opts := DefaultOptions()
	opts.ExtractEveryTurn = false
	f := newFixture(t, &llm.Mock{Responses: []string{"see you"}}, opts)
	ctx := context.Background()

	result := f.orch.Chat(ctx, f.user.ID, "bye", "", nil)
	require.True(t, result.Stop)

	conv, err := f.store.GetConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationCompleted, conv.Status)
	require.NotNil(t, conv.EndedAt)

	active, err := f.store.GetActiveConversation(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestTurnCapRunsExtractionOnStop(t *testing.T) {
	opts := DefaultOptions()
	opts.ExtractEveryTurn = false
	opts.MaxTurns = 2
	mock := &llm.Mock{Responses: []string{"plenty of carbs", extractionJSON}}
	f := newFixture(t, mock, opts)
	ctx := context.Background()

	result := f.orch.Chat(ctx, f.user.ID, "I want to run a 5K race this spring, what should I do?", "", nil)
	require.True(t, result.Stop)

	highlight, err := f.store.HighlightByConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, highlight)
	assert.Equal(t, "wants a spring race", highlight.UnstructuredNotes)
}

func TestEndConversation(t *testing.T) {
	opts := DefaultOptions()
	opts.ExtractEveryTurn = false
	mock := &llm.Mock{Responses: []string{"noted", extractionJSON}}
	f := newFixture(t, mock, opts)
	ctx := context.Background()

	result := f.orch.Chat(ctx, f.user.ID, "Remind me to stretch after every single workout", "", nil)
	require.NotEmpty(t, result.ConversationID)

	require.NoError(t, f.orch.EndConversation(ctx, result.ConversationID))

	conv, err := f.store.GetConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationCompleted, conv.Status)

	highlight, err := f.store.HighlightByConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	assert.NotNil(t, highlight)

	// Ending twice is an error; completion is terminal.
	assert.Error(t, f.orch.EndConversation(ctx, result.ConversationID))
}

func TestIsAvailable(t *testing.T) {
	f := newFixture(t, &llm.Mock{}, DefaultOptions())
	assert.True(t, f.orch.IsAvailable(context.Background()))

	offline := newFixture(t, &llm.Mock{Offline: true}, DefaultOptions())
	assert.False(t, offline.orch.IsAvailable(context.Background()))
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "load_context", StateLoadContext.String())
	assert.Equal(t, "extract_highlights", StateExtractHighlights.String())
	assert.Equal(t, "end", StateEnd.String())
}
