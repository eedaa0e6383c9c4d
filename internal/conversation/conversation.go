// Package conversation implements the survey, intervention and support
// conversation flows as state machines over a shared message history.
//
// A machine instance belongs to exactly one session and is never used from
// more than one goroutine at a time, so machines carry no locks. Every
// generator failure is recovered inside the machine with a fixed fallback
// text; machines never return generation errors to their callers.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/wspiernik/internal/llm"
	"github.com/raphaelgruber/wspiernik/internal/models"
)

// Completion markers the generator is told to emit when a conversation is over.
const (
	InterventionMarker = "INTERVENTION_COMPLETE"
	SupportMarker      = "SUPPORT_COMPLETE"
)

// FactSource lists known facts for prompt context.
type FactSource interface {
	ListFacts(ctx context.Context, limit int) ([]models.Fact, error)
}

// Deps are the collaborators shared by all machines.
type Deps struct {
	Generator llm.Generator
	Facts     FactSource
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// knownFacts returns the stored facts, or nil when they cannot be read.
func (d Deps) knownFacts(ctx context.Context) []models.Fact {
	if d.Facts == nil {
		return nil
	}
	facts, err := d.Facts.ListFacts(ctx, 0)
	if err != nil {
		d.logger().Warn("known facts unavailable for prompt", "error", err)
		return nil
	}
	return facts
}

// generate asks the generator for the next assistant text. The instruction,
// if any, is appended as a trailing user turn that is not recorded in the
// history, so every request ends on a human message. On failure or blank
// output fallback is returned.
func (d Deps) generate(ctx context.Context, systemPrompt string, history *History, instruction, fallback string) string {
	msgs := history.Messages()
	if instruction != "" {
		msgs = append(msgs, models.Message{Role: models.RoleUser, Content: instruction})
	}
	text, err := d.Generator.Generate(ctx, systemPrompt, msgs)
	if err != nil {
		d.logger().Warn("generation failed, using fallback", "error", err)
		return fallback
	}
	if strings.TrimSpace(text) == "" {
		d.logger().Warn("generation returned blank text, using fallback")
		return fallback
	}
	return strings.TrimSpace(text)
}

// StripMarker removes every occurrence of marker from text and reports
// whether it was present.
func StripMarker(text, marker string) (string, bool) {
	if !strings.Contains(text, marker) {
		return text, false
	}
	return strings.TrimSpace(strings.ReplaceAll(text, marker, "")), true
}

// Turn is the outcome of one start or step call.
type Turn struct {
	Text      string
	Step      int
	Completed bool
	// SuggestEnd is set by the support flow once wrapping up has been offered.
	SuggestEnd bool
}

// History is the append-only message log of one conversation.
type History struct {
	msgs  []models.Message
	saved int
	now   func() time.Time
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{now: time.Now}
}

// Add appends a message and returns it.
func (h *History) Add(role models.Role, content string) models.Message {
	m := models.Message{Role: role, Content: content, At: h.now()}
	h.msgs = append(h.msgs, m)
	return m
}

// Messages returns a copy of the log.
func (h *History) Messages() []models.Message {
	return append([]models.Message(nil), h.msgs...)
}

// Len returns the number of messages.
func (h *History) Len() int { return len(h.msgs) }

// Unsaved returns messages added since the last MarkSaved.
func (h *History) Unsaved() []models.Message {
	return append([]models.Message(nil), h.msgs[h.saved:]...)
}

// MarkSaved records that all current messages were persisted.
func (h *History) MarkSaved() { h.saved = len(h.msgs) }

// Transcript renders the log for storage and distillation.
func (h *History) Transcript() string {
	return models.Transcript(h.msgs)
}
