package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/raphaelgruber/wspiernik/internal/llm"
	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFacts struct {
	facts []models.Fact
	err   error
}

func (s staticFacts) ListFacts(context.Context, int) ([]models.Fact, error) {
	return s.facts, s.err
}

func testDeps(gen llm.Generator) Deps {
	return Deps{
		Generator: gen,
		Facts:     staticFacts{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// failing always errors, so every turn uses its fallback text.
var failing = llm.GeneratorFunc(func(context.Context, string, []models.Message) (string, error) {
	return "", errors.New("llm down")
})

func TestStripMarker(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		present bool
	}{
		{"absent", "Jak się czujesz?", "Jak się czujesz?", false},
		{"trailing", "Do zobaczenia! SUPPORT_COMPLETE", "Do zobaczenia!", true},
		{"leading", "SUPPORT_COMPLETE\nTrzymaj się.", "Trzymaj się.", true},
		{"only marker", "SUPPORT_COMPLETE", "", true},
		{"twice", "a SUPPORT_COMPLETE b SUPPORT_COMPLETE", "a  b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StripMarker(tt.in, SupportMarker)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.present, ok)
		})
	}
}

func TestHistory(t *testing.T) {
	h := NewHistory()
	h.Add(models.RoleAssistant, "Pytanie")
	h.Add(models.RoleUser, "Odpowiedź")
	assert.Equal(t, 2, h.Len())
	assert.Len(t, h.Unsaved(), 2)

	h.MarkSaved()
	assert.Empty(t, h.Unsaved())
	h.Add(models.RoleAssistant, "Kolejne")
	require.Len(t, h.Unsaved(), 1)
	assert.Equal(t, "Kolejne", h.Unsaved()[0].Content)

	msgs := h.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "Pytanie", h.Messages()[0].Content, "Messages returns a copy")
	assert.Contains(t, h.Transcript(), "Stefan: Pytanie")
}

func TestGenerateInstructionNotRecorded(t *testing.T) {
	gen := llm.NewScript("  Odpowiedź  ")
	h := NewHistory()
	h.Add(models.RoleUser, "hej")

	got := testDeps(gen).generate(context.Background(), "sys", h, "[INSTRUKCJA: x]", "fallback")
	assert.Equal(t, "Odpowiedź", got)
	assert.Equal(t, 1, h.Len())

	calls := gen.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].History, 2)
	assert.Equal(t, models.RoleUser, calls[0].History[1].Role)
}

func TestGenerateFallbacks(t *testing.T) {
	deps := testDeps(llm.NewScript("   "))
	assert.Equal(t, "fb", deps.generate(context.Background(), "", NewHistory(), "", "fb"))

	deps = testDeps(failing)
	assert.Equal(t, "fb", deps.generate(context.Background(), "", NewHistory(), "", "fb"))
}

func TestKnownFactsErrorIsEmpty(t *testing.T) {
	deps := testDeps(failing)
	deps.Facts = staticFacts{err: errors.New("db down")}
	assert.Nil(t, deps.knownFacts(context.Background()))
}
