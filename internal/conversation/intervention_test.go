package conversation

import (
	"context"
	"testing"

	"github.com/raphaelgruber/wspiernik/internal/llm"
	"github.com/raphaelgruber/wspiernik/internal/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultMatcher(t *testing.T) *scenario.Matcher {
	t.Helper()
	c, err := scenario.Default()
	require.NoError(t, err)
	return scenario.NewMatcher(c)
}

func TestInterventionScenarioFlow(t *testing.T) {
	iv := NewIntervention(testDeps(failing), NewHistory(), defaultMatcher(t))
	ctx := context.Background()

	match, turn := iv.Start(ctx, "mama upadła na ziemię")
	require.True(t, match.Matched)
	assert.Equal(t, "fall", iv.ScenarioKey())
	assert.Equal(t, "Upadek", iv.ScenarioName())
	assert.Equal(t, "Czy podopieczny stracił przytomność?", turn.Text)
	assert.Equal(t, 0, turn.Step)
	assert.False(t, turn.Completed)

	questions := match.Scenario.Questions
	for i := 1; i < len(questions); i++ {
		turn = iv.Step(ctx, "odpowiedź")
		assert.Equal(t, questions[i], turn.Text)
		assert.Equal(t, i, turn.Step)
		assert.False(t, turn.Completed)
	}

	turn = iv.Step(ctx, "jest przytomna")
	assert.True(t, turn.Completed)
	assert.True(t, iv.Done())
	assert.Contains(t, turn.Text, "Interwencja zakończona. Typ interwencji: Upadek")
	assert.Contains(t, turn.Text, "P: Jaki jest teraz stan świadomości?\nO: jest przytomna")
}

func TestInterventionScenarioNaturalizesQuestions(t *testing.T) {
	gen := llm.NewScript("Czy mama straciła przytomność?")
	iv := NewIntervention(testDeps(gen), NewHistory(), defaultMatcher(t))

	_, turn := iv.Start(context.Background(), "tata upadł")
	assert.Equal(t, "Czy mama straciła przytomność?", turn.Text)

	call := gen.Calls()[0]
	assert.Contains(t, call.SystemPrompt, "upadł")
	assert.NotContains(t, call.SystemPrompt, "{facts_json}")
	last := call.History[len(call.History)-1]
	assert.Contains(t, last.Content, "Następne pytanie do zadania: Czy podopieczny stracił przytomność?")
}

func TestInterventionGenericFlow(t *testing.T) {
	gen := llm.NewScript(
		"Co dokładnie się stało?",
		"Rozumiem. Czy podopieczny jest bezpieczny?",
		"Dobrze, proszę obserwować. INTERVENTION_COMPLETE",
	)
	iv := NewIntervention(testDeps(gen), NewHistory(), defaultMatcher(t))
	ctx := context.Background()

	match, turn := iv.Start(ctx, "")
	assert.False(t, match.Matched)
	assert.Equal(t, GenericScenarioKey, iv.ScenarioKey())
	assert.Equal(t, "Ogólna interwencja", iv.ScenarioName())
	assert.Equal(t, "Co dokładnie się stało?", turn.Text)
	assert.Equal(t, "ogólna pomoc", gen.Calls()[0].History[0].Content)

	turn = iv.Step(ctx, "nie chce jeść")
	assert.False(t, turn.Completed)

	turn = iv.Step(ctx, "tak, jest bezpieczny")
	assert.True(t, turn.Completed)
	assert.Equal(t, "Dobrze, proszę obserwować.", turn.Text)
}

func TestInterventionGenericFallback(t *testing.T) {
	iv := NewIntervention(testDeps(failing), NewHistory(), defaultMatcher(t))
	_, turn := iv.Start(context.Background(), "coś jest nie tak")
	assert.Equal(t, genericFallback, turn.Text)
}

func TestInterventionManualComplete(t *testing.T) {
	gen := llm.NewScript("Pierwsze pytanie")
	iv := NewIntervention(testDeps(gen), NewHistory(), defaultMatcher(t))
	iv.Start(context.Background(), "dziadek upadł")

	iv.Complete()
	assert.True(t, iv.Done())
	assert.Len(t, gen.Calls(), 1, "no summary turn generated")
}

func TestInterventionMarkerInScenarioMode(t *testing.T) {
	gen := llm.NewScript("Proszę dzwonić pod 112. INTERVENTION_COMPLETE")
	iv := NewIntervention(testDeps(gen), NewHistory(), defaultMatcher(t))

	_, turn := iv.Start(context.Background(), "ból w klatce i duszność")
	assert.True(t, turn.Completed)
	assert.Equal(t, "Proszę dzwonić pod 112.", turn.Text)
}
