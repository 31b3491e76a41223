// Package highlights distills durable user facts out of conversation
// transcripts and consolidates them into per-user memory. The extractable
// vocabulary is fixed: extraction results referencing any other field are
// rejected whole.
package highlights

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FieldType declares the shape of a structured field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldList   FieldType = "list"
)

// FieldSpec describes one extractable field. The description doubles as
// model-prompt instruction and documentation.
type FieldSpec struct {
	Type        FieldType
	Description string
	Examples    []string
}

// fieldOrder fixes the catalogue ordering for prompts and templates.
var fieldOrder = []string{
	"allergies",
	"work_schedule",
	"exercise_preferences",
	"health_concerns",
	"sleep_schedule",
	"nutrition_preferences",
	"stress_sources",
	"medications",
	"family_health",
	"goals_mentioned",
	"communication_style",
	"motivation_factors",
}

// StructuredFields is the closed vocabulary of extractable user facts.
var StructuredFields = map[string]FieldSpec{
	"allergies": {
		Type:        FieldList,
		Description: "Food allergies, environmental allergies, or medication allergies",
		Examples:    []string{"dairy", "peanuts", "pollen"},
	},
	"work_schedule": {
		Type:        FieldString,
		Description: "Work hours, shift patterns, or schedule constraints",
		Examples:    []string{"9-5 weekdays", "late shifts ending 10 PM", "rotating shifts"},
	},
	"exercise_preferences": {
		Type:        FieldString,
		Description: "Preferred activities, times, or workout types",
		Examples:    []string{"yoga in mornings", "running outdoors", "gym 3x/week"},
	},
	"health_concerns": {
		Type:        FieldList,
		Description: "Specific health issues, conditions, or areas of focus",
		Examples:    []string{"family heart disease history", "high blood pressure", "back pain"},
	},
	"sleep_schedule": {
		Type:        FieldString,
		Description: "Bedtime routines, wake times, or sleep preferences",
		Examples:    []string{"11 PM bedtime, 6 AM wake", "trouble falling asleep", "needs 8+ hours"},
	},
	"nutrition_preferences": {
		Type:        FieldString,
		Description: "Dietary habits, meal timing, or food preferences",
		Examples:    []string{"vegetarian", "intermittent fasting", "meal prep Sundays"},
	},
	"stress_sources": {
		Type:        FieldList,
		Description: "Sources of stress or factors affecting wellbeing",
		Examples:    []string{"work deadlines", "family responsibilities", "financial concerns"},
	},
	"medications": {
		Type:        FieldList,
		Description: "Medications, supplements, or treatments mentioned",
		Examples:    []string{"vitamin D", "blood pressure medication", "melatonin"},
	},
	"family_health": {
		Type:        FieldString,
		Description: "Relevant family health history or genetic considerations",
		Examples:    []string{"diabetes runs in family", "mother had heart disease"},
	},
	"goals_mentioned": {
		Type:        FieldList,
		Description: "Specific health or fitness goals mentioned in conversation",
		Examples:    []string{"lose 10 pounds", "run 5K", "improve sleep quality", "10k steps daily"},
	},
	"communication_style": {
		Type:        FieldString,
		Description: "How user prefers to receive information and feedback",
		Examples:    []string{"encouraging and positive", "analytical with data", "casual and brief"},
	},
	"motivation_factors": {
		Type:        FieldString,
		Description: "What motivates or drives this user",
		Examples:    []string{"health scare motivation", "wants to keep up with kids", "competitive nature"},
	},
}

// FieldNames returns the catalogue field names in their fixed order.
func FieldNames() []string {
	names := make([]string, len(fieldOrder))
	copy(names, fieldOrder)
	return names
}

// ValidateStructuredData rejects any map containing a key outside the closed
// vocabulary. Unknown keys are a hard error: the whole extraction is
// discarded, never partially accepted.
func ValidateStructuredData(data map[string]any) error {
	unknown := []string{}
	for key := range data {
		if _, ok := StructuredFields[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.Errorf("unknown structured fields: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// ExtractionTemplate returns the all-null field map embedded in the
// extraction prompt so the model answers with exactly the known keys.
func ExtractionTemplate() map[string]any {
	template := make(map[string]any, len(fieldOrder))
	for _, name := range fieldOrder {
		template[name] = nil
	}
	return template
}

// PromptDescription renders the field catalogue for the extraction prompt,
// one line per field with up to two examples.
func PromptDescription() string {
	lines := make([]string, 0, len(fieldOrder))
	for _, name := range fieldOrder {
		spec := StructuredFields[name]
		examples := spec.Examples
		if len(examples) > 2 {
			examples = examples[:2]
		}
		if len(examples) > 0 {
			lines = append(lines, fmt.Sprintf("- %s: %s (e.g., %s)", name, spec.Description, strings.Join(examples, ", ")))
		} else {
			lines = append(lines, fmt.Sprintf("- %s: %s", name, spec.Description))
		}
	}
	return strings.Join(lines, "\n")
}
