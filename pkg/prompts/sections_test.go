package prompts

import (
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseweave/companion/pkg/model"
)

func emptyContext() *model.ConversationContext {
	return &model.ConversationContext{
		UserID:       "u1",
		RawData:      model.RawData{RecentMetrics: map[string][]float64{}},
		ExternalData: map[string]map[string]string{},
	}
}

func TestRenderBaseCharacterStyles(t *testing.T) {
	tests := []struct {
		name  string
		style string
		want  string
	}{
		{"default encouraging", "", "warm and encouraging"},
		{"analytical", "analytical", "precisely and analytically"},
		{"casual", "casual", "casual and brief"},
		{"unknown falls back to encouraging", "sarcastic", "warm and encouraging"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := emptyContext()
			if tc.style != "" {
				ctx.RawData.UserProfile = &model.UserProfile{
					Preferences: map[string]string{"communication_style": tc.style},
				}
			}
			out, err := RenderBaseCharacter(ctx)
			require.NoError(t, err)
			assert.Contains(t, out, "personal health companion")
			assert.Contains(t, out, tc.want)
		})
	}
}

func TestSectionFallbacks(t *testing.T) {
	ctx := emptyContext()

	tests := []struct {
		name   string
		render func(*model.ConversationContext) (string, error)
		want   string
	}{
		{"health data", RenderHealthData, "CURRENT HEALTH DATA:\nNo recent health data available."},
		{"insights", RenderInsights, "RECENT INSIGHTS:\nNo recent insights available."},
		{"user context", RenderUserContext, "USER CONTEXT:\nNo previous conversation context available."},
		{"external context", RenderExternalContext, "EXTERNAL CONTEXT:\nNo external context available."},
		{"knowledge", RenderKnowledge, "HEALTH KNOWLEDGE:\nNo reference entries loaded; general health knowledge is still available."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.render(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestRenderHealthDataAverages(t *testing.T) {
	ctx := emptyContext()
	ctx.RawData.UserProfile = &model.UserProfile{Age: 34, Gender: "female", Location: "Berlin"}
	ctx.RawData.RecentMetrics = map[string][]float64{
		"steps":       {8000, 9000},
		"sleep_hours": {7.5, 6.5, 8.0},
	}

	out, err := RenderHealthData(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "Profile: 34 years old, female, Berlin")
	assert.Contains(t, out, "steps: average 8500 over 2 readings, latest 9000")
	assert.Contains(t, out, "sleep_hours: average 7.3 over 3 readings, latest 8")
	assert.Contains(t, out, "last 7 days")
}

func TestRenderInsightsGrouping(t *testing.T) {
	ctx := emptyContext()
	ctx.Insights = []model.Insight{
		{Category: "sleep", Finding: "averaging under seven hours", Confidence: 0.9, Timeframe: "last 14 days"},
		{Category: "activity", Finding: "step count trending up", Confidence: 0.8},
		{Category: "sleep", Finding: "later bedtime on weekends", Confidence: 0.6},
	}

	out, err := RenderInsights(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "RECENT INSIGHTS:")
	assert.Contains(t, out, "averaging under seven hours (confidence 0.90, last 14 days)")
	assert.Contains(t, out, "step count trending up (confidence 0.80)")
	// Grouped: both sleep findings share one heading.
	assert.Equal(t, 1, strings.Count(out, "sleep:"))
	assert.Less(t, strings.Index(out, "sleep:"), strings.Index(out, "activity:"))
}

func TestRenderUserContext(t *testing.T) {
	ctx := emptyContext()
	ctx.Highlights = model.HighlightSummary{
		StructuredData: map[string]any{
			"allergies":      []any{"dairy", "peanuts"},
			"work_schedule":  "9-5 weekdays",
			"family_health":  nil,
			"sleep_schedule": "",
		},
		UnstructuredNotes: "training for a race | prefers morning workouts",
	}

	out, err := RenderUserContext(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "- allergies: dairy, peanuts")
	assert.Contains(t, out, "- work_schedule: 9-5 weekdays")
	assert.NotContains(t, out, "family_health")
	assert.NotContains(t, out, "sleep_schedule")
	assert.Contains(t, out, "Notes: training for a race | prefers morning workouts")
}

func TestRenderExternalContext(t *testing.T) {
	ctx := emptyContext()
	ctx.ExternalData = map[string]map[string]string{
		"weather":     {"condition": "rain", "temperature": "12C"},
		"air_quality": {"aqi": "42"},
	}

	out, err := RenderExternalContext(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "air_quality: aqi 42")
	assert.Contains(t, out, "weather: condition rain, temperature 12C")
}

func TestRenderGuidelinesCaveats(t *testing.T) {
	base, err := RenderGuidelines(emptyContext())
	require.NoError(t, err)
	assert.Contains(t, base, "CONVERSATION GUIDELINES:")
	assert.NotContains(t, base, "allergies")

	ctx := emptyContext()
	ctx.Highlights = model.HighlightSummary{StructuredData: map[string]any{
		"allergies":       []any{"dairy"},
		"health_concerns": []any{"high blood pressure"},
	}}
	out, err := RenderGuidelines(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "known allergies (dairy)")
	assert.Contains(t, out, "health concerns (high blood pressure)")
}

func TestBuildSystemPrompt(t *testing.T) {
	builder := NewBuilder(log.New(io.Discard))
	ctx := emptyContext()

	prompt := builder.BuildSystemPrompt(ctx, nil)
	require.True(t, strings.HasSuffix(prompt, "\n"))

	parts := strings.Split(strings.TrimSuffix(prompt, "\n"), Separator)
	require.Len(t, parts, len(DefaultOrder))
	assert.Contains(t, parts[0], "personal health companion")
	assert.Equal(t, "CURRENT HEALTH DATA:\nNo recent health data available.", parts[1])
	assert.Contains(t, parts[len(parts)-1], "CONVERSATION GUIDELINES:")
}

func TestBuildSystemPromptSkipsUnknownSections(t *testing.T) {
	builder := NewBuilder(log.New(io.Discard))
	prompt := builder.BuildSystemPrompt(emptyContext(), []string{
		SectionBaseCharacter, "no_such_section", SectionGuidelines,
	})

	parts := strings.Split(strings.TrimSuffix(prompt, "\n"), Separator)
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0], "personal health companion")
	assert.Contains(t, parts[1], "CONVERSATION GUIDELINES:")
}

func TestBuildSystemPromptCustomOrder(t *testing.T) {
	builder := NewBuilder(log.New(io.Discard))
	prompt := builder.BuildSystemPrompt(emptyContext(), []string{
		SectionGuidelines, SectionBaseCharacter,
	})
	assert.Less(t, strings.Index(prompt, "CONVERSATION GUIDELINES:"), strings.Index(prompt, "personal health companion"))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "8500", formatNumber(8500))
	assert.Equal(t, "7.3", formatNumber(7.333))
	assert.Equal(t, "0", formatNumber(0))
}
