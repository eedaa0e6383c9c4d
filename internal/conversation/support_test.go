package conversation

import (
	"context"
	"strings"
	"testing"

	"github.com/raphaelgruber/wspiernik/internal/llm"
	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportGreeting(t *testing.T) {
	s := NewSupport(testDeps(failing), NewHistory(), 0)
	turn := s.Start(context.Background(), "")
	assert.Equal(t, supportGreetingFallback, turn.Text)
	assert.Equal(t, 1, s.Messages())
	assert.False(t, turn.Completed)
}

func TestSupportStartWithOpening(t *testing.T) {
	gen := llm.NewScript("To musi być trudne.")
	h := NewHistory()
	s := NewSupport(testDeps(gen), h, 0)

	turn := s.Start(context.Background(), "Jestem bardzo zmęczona")
	assert.Equal(t, "To musi być trudne.", turn.Text)
	assert.Equal(t, 2, s.Messages())
	assert.Equal(t, models.RoleUser, h.Messages()[0].Role)
}

func TestSupportOffersWrapUp(t *testing.T) {
	gen := llm.GeneratorFunc(func(context.Context, string, []models.Message) (string, error) {
		return "Słucham.", nil
	})
	s := NewSupport(testDeps(gen), NewHistory(), 4)
	ctx := context.Background()

	s.Start(ctx, "")
	turn := s.Step(ctx, "hej")
	assert.Equal(t, 3, turn.Step)
	assert.False(t, turn.SuggestEnd)
	turn = s.Step(ctx, "dalej")
	assert.Equal(t, 5, turn.Step)
	assert.True(t, turn.SuggestEnd)
}

func TestSupportNudgeInstructionAtThreshold(t *testing.T) {
	var lastInstruction string
	gen := llm.GeneratorFunc(func(_ context.Context, _ string, history []models.Message) (string, error) {
		lastInstruction = ""
		if n := len(history); n > 0 && strings.HasPrefix(history[n-1].Content, "[INSTRUKCJA") {
			lastInstruction = history[n-1].Content
		}
		return "ok", nil
	})
	s := NewSupport(testDeps(gen), NewHistory(), DefaultSupportOfferAt)
	ctx := context.Background()
	s.Start(ctx, "")
	for s.Messages() < DefaultSupportOfferAt-1 {
		s.Step(ctx, "x")
		assert.NotContains(t, lastInstruction, SupportMarker)
	}
	s.Step(ctx, "x")
	assert.Contains(t, lastInstruction, SupportMarker)
}

func TestSupportMarkerCompletes(t *testing.T) {
	gen := llm.NewScript("Cześć!", "Trzymaj się ciepło. SUPPORT_COMPLETE")
	s := NewSupport(testDeps(gen), NewHistory(), 0)
	ctx := context.Background()

	s.Start(ctx, "")
	turn := s.Step(ctx, "dziękuję, to wszystko")
	assert.True(t, turn.Completed)
	assert.True(t, s.Done())
	assert.Equal(t, "Trzymaj się ciepło.", turn.Text)
	assert.False(t, strings.Contains(turn.Text, SupportMarker))
}

func TestSupportCompletingTurnDoesNotSuggestEnd(t *testing.T) {
	gen := llm.NewScript("Cześć!", "Słucham.", "Do widzenia. SUPPORT_COMPLETE")
	s := NewSupport(testDeps(gen), NewHistory(), 2)
	ctx := context.Background()

	s.Start(ctx, "")
	turn := s.Step(ctx, "hej")
	assert.True(t, turn.SuggestEnd)

	turn = s.Step(ctx, "to wszystko")
	require.True(t, turn.Completed)
	assert.False(t, turn.SuggestEnd)
}

func TestSupportComplete(t *testing.T) {
	s := NewSupport(testDeps(failing), NewHistory(), 0)
	ctx := context.Background()
	s.Start(ctx, "")

	turn := s.Complete(ctx)
	require.True(t, turn.Completed)
	assert.Equal(t, supportFarewellFallback, turn.Text)

	again := s.Complete(ctx)
	assert.True(t, again.Completed)
}
