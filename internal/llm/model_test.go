package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/raphaelgruber/wspiernik/internal/config"
	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"invalid api key", errors.New("invalid api key"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"wrapped error", fmt.Errorf("generate: %w", errors.New("quota exceeded")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, isFatalAPIError(tt.err))
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	fatal := wrapFatalError(errors.New("invalid api key provided"))
	assert.ErrorIs(t, fatal, ErrFatalAPI)

	plain := errors.New("network timeout")
	assert.Same(t, plain, wrapFatalError(plain))
}

func TestErrorUnwrap(t *testing.T) {
	err := &Error{Provider: "ollama", Timeout: true, Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")

	var target *Error
	require.ErrorAs(t, fmt.Errorf("step: %w", err), &target)
	assert.True(t, target.Timeout)
}

func TestToMessageContent(t *testing.T) {
	msgs := toMessageContent("sys", []models.Message{
		{Role: models.RoleAssistant, Content: "Dzień dobry"},
		{Role: models.RoleUser, Content: "Cześć"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[1].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[2].Role)

	assert.Len(t, toMessageContent("", nil), 0)

	instructed := toMessageContent("sys", []models.Message{{Role: models.RoleUser, Content: "[INSTRUKCJA: x]"}})
	require.Len(t, instructed, 2)
	assert.Equal(t, llms.ChatMessageTypeHuman, instructed[1].Role)
}

func TestTokenUsage(t *testing.T) {
	in, out := tokenUsage(map[string]any{"PromptTokens": 12, "CompletionTokens": 30})
	assert.Equal(t, int64(12), in)
	assert.Equal(t, int64(30), out)

	in, out = tokenUsage(map[string]any{"input_tokens": float64(5)})
	assert.Equal(t, int64(5), in)
	assert.Equal(t, int64(0), out)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.LLMConfig{Provider: "nope"}, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNewMockProvider(t *testing.T) {
	g, err := New(context.Background(), config.LLMConfig{Provider: config.ProviderMock}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &Canned{}, g)
}

func TestCanned(t *testing.T) {
	c := NewCanned()
	ctx := context.Background()

	got, err := c.Generate(ctx, "Jesteś CareMemoryAgent", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", got)

	got, err = c.Generate(ctx, "scenario", []models.Message{{
		Role:    models.RoleUser,
		Content: "[INSTRUKCJA: Następne pytanie do zadania: Czy jest krwawienie?. Zadaj je w naturalny sposób.]",
	}})
	require.NoError(t, err)
	assert.Equal(t, "Czy jest krwawienie?", got)

	got, err = c.Generate(ctx, "support", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestScript(t *testing.T) {
	s := NewScript("a").Push(Reply{Err: errors.New("boom")})
	ctx := context.Background()

	got, err := s.Generate(ctx, "p1", []models.Message{{Role: models.RoleUser, Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	_, err = s.Generate(ctx, "p2", nil)
	assert.EqualError(t, err, "boom")

	_, err = s.Generate(ctx, "p3", nil)
	assert.ErrorIs(t, err, ErrScriptExhausted)

	calls := s.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "p1", calls[0].SystemPrompt)
	assert.Len(t, calls[0].History, 1)
}
