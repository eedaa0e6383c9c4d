package facts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("plain array", func(t *testing.T) {
		got := Parse(`[{"tags": ["medical", "ward"], "value": "Choruje na Alzheimera.", "severity": 9}]`)
		require.Len(t, got, 1)
		assert.Equal(t, []string{"medical", "ward"}, got[0].Tags)
		assert.Equal(t, "Choruje na Alzheimera.", got[0].Value)
		require.NotNil(t, got[0].Severity)
		assert.Equal(t, 9, *got[0].Severity)
	})

	t.Run("prose and code fence around json", func(t *testing.T) {
		raw := "Oto fakty:\n```json\n[{\"tags\": [\"routine\"], \"value\": \"Lubi spacery rano.\"}]\n```\nTo wszystko."
		got := Parse(raw)
		require.Len(t, got, 1)
		assert.Equal(t, "Lubi spacery rano.", got[0].Value)
		assert.Nil(t, got[0].Severity)
	})

	t.Run("tags as string", func(t *testing.T) {
		got := Parse(`[{"tags": "[relationship_to_patient, ward]", "value": "Jest córką."},
			{"tags": "caregiver, work", "value": "Pracuje na etat."}]`)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"relationship_to_patient", "ward"}, got[0].Tags)
		assert.Equal(t, []string{"caregiver", "work"}, got[1].Tags)
	})

	t.Run("invalid elements skipped individually", func(t *testing.T) {
		got := Parse(`[
			{"tags": [], "value": "bez tagów"},
			{"tags": ["x"], "value": "  "},
			"not an object",
			{"tags": ["ok"], "value": "Zostaje."}
		]`)
		require.Len(t, got, 1)
		assert.Equal(t, "Zostaje.", got[0].Value)
	})

	t.Run("broken array falls back to nested objects", func(t *testing.T) {
		raw := `[ {"tags": ["a"], "value": "Pierwszy."}, {"tags": ["b"], "value": "Drugi.", "severity": 6 (pewność)} ]`
		got := Parse(raw)
		require.Len(t, got, 1)
		assert.Equal(t, "Pierwszy.", got[0].Value)
	})

	t.Run("facts wrapper object", func(t *testing.T) {
		got := Parse(`{"facts": [{"tags": ["a"], "value": "W obiekcie."}]}`)
		require.Len(t, got, 1)
		assert.Equal(t, "W obiekcie.", got[0].Value)
	})

	t.Run("severity out of range is dropped", func(t *testing.T) {
		got := Parse(`[{"tags": ["a"], "value": "v", "severity": 11}, {"tags": ["b"], "value": "w", "severity": 2.5}]`)
		require.Len(t, got, 2)
		assert.Nil(t, got[0].Severity)
		assert.Nil(t, got[1].Severity)
	})

	t.Run("no json", func(t *testing.T) {
		assert.Empty(t, Parse("Nie znalazłem nowych faktów."))
		assert.Empty(t, Parse("[]"))
	})

	t.Run("brackets inside strings", func(t *testing.T) {
		got := Parse(`[{"tags": ["a"], "value": "Mówi \"[tak]\" i {nie}."}]`)
		require.Len(t, got, 1)
		assert.Equal(t, `Mówi "[tak]" i {nie}.`, got[0].Value)
	})

	t.Run("many unmatched brackets", func(t *testing.T) {
		raw := `[[[ [{"tags": ["a"], "value": "Przed szumem."}] ` + strings.Repeat("[{", 50_000)
		got := Parse(raw)
		require.Len(t, got, 1)
		assert.Equal(t, "Przed szumem.", got[0].Value)
	})
}

func TestJSONCandidatesBounded(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"input beyond cap ignored", strings.Repeat(" ", maxScanInput) + `{"a": 1}`, 0},
		{"value within cap found", strings.Repeat(" ", maxScanInput-10) + `{"a": 1}`, 1},
		{"value after exhausted work budget ignored", strings.Repeat("[", 2000) + `{"a": 1}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, jsonCandidates(tt.raw), tt.want)
		})
	}
}

func TestParseSupportSummary(t *testing.T) {
	stress, needs := ParseSupportSummary("Ocena: {\"stress_level\": 8, \"needs\": [\"odpoczynek\", \"rozmowa\"]}")
	require.NotNil(t, stress)
	assert.Equal(t, 8, *stress)
	assert.Equal(t, []string{"odpoczynek", "rozmowa"}, needs)

	stress, needs = ParseSupportSummary(`{"needs": "sen, pomoc"}`)
	assert.Nil(t, stress)
	assert.Equal(t, []string{"sen", "pomoc"}, needs)

	stress, needs = ParseSupportSummary("brak danych")
	assert.Nil(t, stress)
	assert.Nil(t, needs)
}
