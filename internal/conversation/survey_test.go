package conversation

import (
	"context"
	"testing"

	"github.com/raphaelgruber/wspiernik/internal/llm"
	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurveyTablesAreExhaustive(t *testing.T) {
	for step := WardAge; step <= Completed; step++ {
		info, ok := surveySteps[step]
		require.True(t, ok, "missing info for %d", step)
		assert.NotEmpty(t, info.fallback, step.String())
		assert.NotEmpty(t, info.instruction, step.String())
		assert.NotEmpty(t, info.displayName, step.String())
	}
	_, hasNext := Completed.Next()
	assert.False(t, hasNext)
	for step := WardAge; step < Completed; step++ {
		next, ok := step.Next()
		require.True(t, ok)
		assert.Equal(t, step+1, next, "linear order")
	}
}

func TestSurveyStepString(t *testing.T) {
	assert.Equal(t, "WARD_AGE", WardAge.String())
	assert.Equal(t, "CONFIRMATION", Confirmation.String())
	assert.Equal(t, "SurveyStep(42)", SurveyStep(42).String())
}

func TestClassifyConfirmation(t *testing.T) {
	tests := []struct {
		in   string
		want confirmationReply
	}{
		{"Tak", replyAffirmative},
		{"wszystko się zgadza", replyAffirmative},
		{"potwierdzam", replyAffirmative},
		{"OK", replyAffirmative},
		{"dobrze", replyAffirmative},
		{"nie", replyCorrection},
		{"chcę poprawkę", replyCorrection},
		{"zmień wiek", replyCorrection},
		{"jest błąd", replyCorrection},
		{"hmm", replyUnclear},
		{"", replyUnclear},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyConfirmation(tt.in))
		})
	}
}

func answerAll(t *testing.T, s *Survey) Turn {
	t.Helper()
	ctx := context.Background()
	answers := []string{"85 lat", "cukrzyca", "metformina", "chodzi o lasce", "lubi muzykę"}
	var turn Turn
	for i, a := range answers {
		require.Equal(t, SurveyStep(i), s.Current(), "cursor advances strictly in order")
		turn = s.Step(ctx, a)
		assert.False(t, turn.Completed)
	}
	return turn
}

func TestSurveyHappyPath(t *testing.T) {
	s := NewSurvey(testDeps(failing), NewHistory())
	ctx := context.Background()

	first := s.Start(ctx)
	assert.Equal(t, "Ile lat ma Twój podopieczny?", first.Text)
	assert.Equal(t, int(WardAge), first.Step)

	confirm := answerAll(t, s)
	assert.Equal(t, Confirmation, s.Current())
	assert.Equal(t, int(Confirmation), confirm.Step)
	assert.Contains(t, confirm.Text, "Oto zebrane informacje:")
	assert.Contains(t, confirm.Text, "- Wiek podopiecznego: 85 lat")
	assert.Contains(t, confirm.Text, "- Mobilność podopiecznego: chodzi o lasce")

	done := s.Step(ctx, "tak, wszystko się zgadza")
	assert.True(t, done.Completed)
	assert.True(t, s.Done())
	assert.Equal(t, surveySteps[Completed].fallback, done.Text)

	facts := s.Facts()
	require.Len(t, facts, 5)
	assert.Equal(t, []string{"age", "ward"}, facts[0].Tags)
	assert.Equal(t, "Wiek: 85 lat", facts[0].Value)
	assert.Equal(t, "Schorzenia: cukrzyca", facts[1].Value)
	assert.Equal(t, "Leki: metformina", facts[2].Value)
	assert.Equal(t, "Mobilność: chodzi o lasce", facts[3].Value)
	assert.Equal(t, []string{"other", "ward"}, facts[4].Tags)
}

func TestSurveyCorrectionResets(t *testing.T) {
	s := NewSurvey(testDeps(failing), NewHistory())
	ctx := context.Background()
	s.Start(ctx)
	answerAll(t, s)

	turn := s.Step(ctx, "nie, wiek jest zły")
	assert.False(t, turn.Completed)
	assert.Equal(t, WardAge, s.Current())
	assert.Equal(t, "Rozumiem. Zacznijmy od początku. Ile lat ma Twój podopieczny?", turn.Text)
	assert.Empty(t, s.Facts(), "responses cleared")
	assert.Empty(t, s.Summary())

	answerAll(t, s)
	assert.Equal(t, Confirmation, s.Current())
}

func TestSurveyUnclearConfirmation(t *testing.T) {
	s := NewSurvey(testDeps(failing), NewHistory())
	ctx := context.Background()
	s.Start(ctx)
	answerAll(t, s)

	turn := s.Step(ctx, "hmm")
	assert.False(t, turn.Completed)
	assert.Equal(t, Confirmation, s.Current())
	assert.Equal(t, surveySteps[Confirmation].fallback, turn.Text)
}

func TestSurveyUsesGeneratorAndKnownAnswers(t *testing.T) {
	gen := llm.NewScript("Ile lat ma mama?", "A na co choruje?")
	s := NewSurvey(testDeps(gen), NewHistory())
	ctx := context.Background()

	assert.Equal(t, "Ile lat ma mama?", s.Start(ctx).Text)
	assert.Equal(t, "A na co choruje?", s.Step(ctx, "90").Text)

	calls := gen.Calls()
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[0].SystemPrompt, "Już wiesz")
	assert.Contains(t, calls[1].SystemPrompt, "Wiek podopiecznego: 90")
	last := calls[1].History[len(calls[1].History)-1]
	assert.Contains(t, last.Content, "schorzenia")
}

func TestSurveyRequestsEndOnUserTurn(t *testing.T) {
	gen := llm.NewScript()
	s := NewSurvey(testDeps(gen), NewHistory())
	ctx := context.Background()
	s.Start(ctx)
	answerAll(t, s)

	calls := gen.Calls()
	require.Len(t, calls, 6)
	for _, i := range []int{0, 5} {
		require.NotEmpty(t, calls[i].History, "call %d", i)
		last := calls[i].History[len(calls[i].History)-1]
		assert.Equal(t, models.RoleUser, last.Role, "call %d", i)
		assert.Contains(t, last.Content, "INSTRUKCJA")
	}
	assert.Contains(t, calls[5].History[0].Content, "Wiek podopiecznego: 85 lat")
}

func TestSurveyHistoryRecordsBothSides(t *testing.T) {
	h := NewHistory()
	s := NewSurvey(testDeps(failing), h)
	ctx := context.Background()
	s.Start(ctx)
	s.Step(ctx, "85")
	assert.Equal(t, 3, h.Len())
	assert.Contains(t, h.Transcript(), "Opiekun: 85")
}
