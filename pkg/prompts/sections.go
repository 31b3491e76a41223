// Package prompts renders the composable sections a system prompt is built
// from. Each section is a pure function of the assembled conversation context;
// sections that have nothing to say emit a fixed fallback line so the model
// always knows the layer exists.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/charmbracelet/log"

	"github.com/pulseweave/companion/pkg/model"
)

//go:embed templates/base_character.tmpl
var baseCharacterTemplate string

//go:embed templates/health_data.tmpl
var healthDataTemplate string

//go:embed templates/insights.tmpl
var insightsTemplate string

//go:embed templates/user_context.tmpl
var userContextTemplate string

//go:embed templates/external_context.tmpl
var externalContextTemplate string

//go:embed templates/knowledge.tmpl
var knowledgeTemplate string

//go:embed templates/guidelines.tmpl
var guidelinesTemplate string

const (
	SectionBaseCharacter   = "base_character"
	SectionHealthData      = "health_data"
	SectionInsights        = "insights"
	SectionUserContext     = "user_context"
	SectionExternalContext = "external_context"
	SectionKnowledge       = "knowledge"
	SectionGuidelines      = "guidelines"

	// Separator joins rendered sections in the final prompt.
	Separator = "\n---\n"

	// FallbackSystemPrompt replaces the assembled prompt when section
	// rendering itself fails.
	FallbackSystemPrompt = "You are a helpful health assistant. Provide encouraging, data-driven advice based on the user's health information."

	healthDataFallback      = "CURRENT HEALTH DATA:\nNo recent health data available."
	insightsFallback        = "RECENT INSIGHTS:\nNo recent insights available."
	userContextFallback     = "USER CONTEXT:\nNo previous conversation context available."
	externalContextFallback = "EXTERNAL CONTEXT:\nNo external context available."
	knowledgeFallback       = "HEALTH KNOWLEDGE:\nNo reference entries loaded; general health knowledge is still available."

	metricWindowDays = 7
)

// DefaultOrder is the canonical section ordering.
var DefaultOrder = []string{
	SectionBaseCharacter,
	SectionHealthData,
	SectionInsights,
	SectionUserContext,
	SectionExternalContext,
	SectionKnowledge,
	SectionGuidelines,
}

type renderFunc func(*model.ConversationContext) (string, error)

var sections = map[string]renderFunc{
	SectionBaseCharacter:   RenderBaseCharacter,
	SectionHealthData:      RenderHealthData,
	SectionInsights:        RenderInsights,
	SectionUserContext:     RenderUserContext,
	SectionExternalContext: RenderExternalContext,
	SectionKnowledge:       RenderKnowledge,
	SectionGuidelines:      RenderGuidelines,
}

// Builder assembles system prompts from enabled sections.
type Builder struct {
	logger *log.Logger
}

func NewBuilder(logger *log.Logger) *Builder {
	return &Builder{logger: logger}
}

// BuildSystemPrompt renders the ordered sections against the context,
// skipping whitespace-only output. Unknown section names are logged and
// skipped, never fatal. A nil order means DefaultOrder.
func (b *Builder) BuildSystemPrompt(ctx *model.ConversationContext, order []string) string {
	if order == nil {
		order = DefaultOrder
	}

	parts := make([]string, 0, len(order))
	for _, name := range order {
		render, ok := sections[name]
		if !ok {
			b.logger.Warn("Unknown prompt section", "section", name)
			continue
		}
		content, err := render(ctx)
		if err != nil {
			b.logger.Error("Failed to render prompt section", "section", name, "error", err)
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		parts = append(parts, content)
	}

	return strings.Join(parts, Separator) + "\n"
}

func execute(tmplText string, data any) (string, error) {
	tmpl := template.Must(template.New("section").Parse(tmplText))
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// RenderBaseCharacter emits the fixed personality block, adjusted by the
// user's communication-style preference. Never empty.
func RenderBaseCharacter(ctx *model.ConversationContext) (string, error) {
	style := ctx.Preferences()["communication_style"]
	if style == "" {
		style = "encouraging"
	}
	return execute(baseCharacterTemplate, struct{ Style string }{Style: style})
}

type metricSummary struct {
	Name    string
	Average string
	Latest  string
	Count   int
}

// RenderHealthData summarizes the recent metric windows and profile.
func RenderHealthData(ctx *model.ConversationContext) (string, error) {
	raw := ctx.RawData
	if raw.UserProfile == nil && len(raw.RecentMetrics) == 0 {
		return healthDataFallback, nil
	}

	names := make([]string, 0, len(raw.RecentMetrics))
	for name := range raw.RecentMetrics {
		names = append(names, name)
	}
	sort.Strings(names)

	metrics := make([]metricSummary, 0, len(names))
	for _, name := range names {
		values := raw.RecentMetrics[name]
		if len(values) == 0 {
			continue
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		metrics = append(metrics, metricSummary{
			Name:    name,
			Average: formatNumber(sum / float64(len(values))),
			Latest:  formatNumber(values[len(values)-1]),
			Count:   len(values),
		})
	}

	profile := ""
	if raw.UserProfile != nil {
		profile = profileSummary(raw.UserProfile)
	}

	if profile == "" && len(metrics) == 0 {
		return healthDataFallback, nil
	}

	return execute(healthDataTemplate, struct {
		Profile string
		Metrics []metricSummary
		Days    int
	}{Profile: profile, Metrics: metrics, Days: metricWindowDays})
}

func profileSummary(p *model.UserProfile) string {
	parts := []string{}
	if p.Age > 0 {
		parts = append(parts, fmt.Sprintf("%d years old", p.Age))
	}
	if p.Gender != "" {
		parts = append(parts, p.Gender)
	}
	if p.Location != "" {
		parts = append(parts, p.Location)
	}
	summary := strings.Join(parts, ", ")
	if len(p.Goals) > 0 {
		if summary != "" {
			summary += ". "
		}
		summary += "Goals: " + strings.Join(p.Goals, ", ")
	}
	return summary
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

type insightGroup struct {
	Category string
	Items    []insightItem
}

type insightItem struct {
	Finding    string
	Confidence string
	Timeframe  string
}

// RenderInsights groups non-expired insights by category, preserving the
// confidence-descending order within and across groups.
func RenderInsights(ctx *model.ConversationContext) (string, error) {
	if len(ctx.Insights) == 0 {
		return insightsFallback, nil
	}

	index := map[string]int{}
	groups := []insightGroup{}
	for _, insight := range ctx.Insights {
		item := insightItem{
			Finding:    insight.Finding,
			Confidence: strconv.FormatFloat(insight.Confidence, 'f', 2, 64),
			Timeframe:  insight.Timeframe,
		}
		if i, ok := index[insight.Category]; ok {
			groups[i].Items = append(groups[i].Items, item)
			continue
		}
		index[insight.Category] = len(groups)
		groups = append(groups, insightGroup{Category: insight.Category, Items: []insightItem{item}})
	}

	return execute(insightsTemplate, struct{ Groups []insightGroup }{Groups: groups})
}

type contextField struct {
	Name  string
	Value string
}

// RenderUserContext emits the consolidated conversation memory.
func RenderUserContext(ctx *model.ConversationContext) (string, error) {
	structured := ctx.Highlights.StructuredData
	notes := strings.TrimSpace(ctx.Highlights.UnstructuredNotes)

	fields := make([]contextField, 0, len(structured))
	names := make([]string, 0, len(structured))
	for name := range structured {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := formatFieldValue(structured[name])
		if value == "" {
			continue
		}
		fields = append(fields, contextField{Name: name, Value: value})
	}

	if len(fields) == 0 && notes == "" {
		return userContextFallback, nil
	}

	return execute(userContextTemplate, struct {
		Fields []contextField
		Notes  string
	}{Fields: fields, Notes: notes})
}

func formatFieldValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

type externalSnapshot struct {
	Type    string
	Summary string
}

// RenderExternalContext emits the latest environmental snapshots.
func RenderExternalContext(ctx *model.ConversationContext) (string, error) {
	if len(ctx.ExternalData) == 0 {
		return externalContextFallback, nil
	}

	types := make([]string, 0, len(ctx.ExternalData))
	for t := range ctx.ExternalData {
		types = append(types, t)
	}
	sort.Strings(types)

	snapshots := make([]externalSnapshot, 0, len(types))
	for _, t := range types {
		data := ctx.ExternalData[t]
		if len(data) == 0 {
			continue
		}
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s %s", k, data[k]))
		}
		snapshots = append(snapshots, externalSnapshot{Type: t, Summary: strings.Join(pairs, ", ")})
	}

	if len(snapshots) == 0 {
		return externalContextFallback, nil
	}

	return execute(externalContextTemplate, struct{ Snapshots []externalSnapshot }{Snapshots: snapshots})
}

// RenderKnowledge emits the reference entries, or a note that general
// knowledge remains available.
func RenderKnowledge(ctx *model.ConversationContext) (string, error) {
	if len(ctx.Knowledge) == 0 {
		return knowledgeFallback, nil
	}
	return execute(knowledgeTemplate, struct{ Entries []model.KnowledgeEntry }{Entries: ctx.Knowledge})
}

// RenderGuidelines emits the fixed behavioral rules, augmented with caveats
// for highlighted allergy and health-concern fields. Never empty.
func RenderGuidelines(ctx *model.ConversationContext) (string, error) {
	structured := ctx.Highlights.StructuredData
	return execute(guidelinesTemplate, struct {
		Allergies      string
		HealthConcerns string
	}{
		Allergies:      formatFieldValue(structured["allergies"]),
		HealthConcerns: formatFieldValue(structured["health_concerns"]),
	})
}
