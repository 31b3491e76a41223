package highlights

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldCatalogue(t *testing.T) {
	names := FieldNames()
	require.Len(t, names, 12)
	assert.Equal(t, "allergies", names[0])
	assert.Equal(t, "motivation_factors", names[len(names)-1])

	for _, name := range names {
		spec, ok := StructuredFields[name]
		require.True(t, ok, "field %s missing a spec", name)
		assert.NotEmpty(t, spec.Description, "field %s", name)
		assert.NotEmpty(t, spec.Examples, "field %s", name)
		assert.Contains(t, []FieldType{FieldString, FieldList}, spec.Type)
	}
}

func TestValidateStructuredData(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		wantErr bool
	}{
		{"empty", map[string]any{}, false},
		{"known fields", map[string]any{"allergies": []any{"dairy"}, "work_schedule": "9-5"}, false},
		{"known fields with nulls", map[string]any{"allergies": nil}, false},
		{"unknown field", map[string]any{"favorite_color": "blue"}, true},
		{"mixed known and unknown", map[string]any{"allergies": nil, "shoe_size": 42}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateStructuredData(tc.data)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateNamesAllUnknownFields(t *testing.T) {
	err := ValidateStructuredData(map[string]any{"zeta": 1, "alpha": 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alpha, zeta")
}

func TestExtractionTemplate(t *testing.T) {
	template := ExtractionTemplate()
	require.Len(t, template, len(FieldNames()))
	for name, value := range template {
		assert.Nil(t, value, "field %s", name)
		assert.Contains(t, StructuredFields, name)
	}
}

func TestPromptDescription(t *testing.T) {
	desc := PromptDescription()
	lines := strings.Split(desc, "\n")
	require.Len(t, lines, len(FieldNames()))
	assert.Equal(t, "- allergies: Food allergies, environmental allergies, or medication allergies (e.g., dairy, peanuts)", lines[0])
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "- "), "line %q", line)
	}
}
