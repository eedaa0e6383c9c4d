// Package llm wraps text-generation backends behind the Generator interface
// used by the conversation flows and the facts distiller.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/wspiernik/internal/models"
)

// Generator produces the next assistant text for a system prompt and a
// conversation history. Implementations may be slow and may fail.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []models.Message) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, systemPrompt string, history []models.Message) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt string, history []models.Message) (string, error) {
	return f(ctx, systemPrompt, history)
}

var (
	// ErrEmptyResponse is returned when the backend answers with no text.
	ErrEmptyResponse = errors.New("empty response")
	// ErrFatalAPI marks failures that will not go away on retry
	// (credentials, billing, quota).
	ErrFatalAPI = errors.New("fatal LLM API error")
	// ErrUnknownProvider is returned by NewModel for unsupported providers.
	ErrUnknownProvider = errors.New("unknown LLM provider")
)

// Error is a generation failure. Timeout is set when the call ran out of time.
type Error struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: generation timed out: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: generation failed: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var fatalMarkers = []string{
	"credit balance", "rate limit", "quota", "billing",
	"invalid api key", "authentication", "unauthorized", "401", "403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %w", ErrFatalAPI, err)
	}
	return err
}
