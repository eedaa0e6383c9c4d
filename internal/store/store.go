// Package store defines persistence for conversations, facts and support
// logs, with in-memory and SQLite backends. The SurrealDB backend lives in
// internal/db and satisfies the same interfaces.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/wspiernik/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Error is a persistence failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err as a *Error for op, or nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var serr *Error
	if errors.As(err, &serr) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// FactStore persists distilled facts. Facts are never updated or deleted.
type FactStore interface {
	// SaveFacts stores facts and returns them with ids assigned.
	SaveFacts(ctx context.Context, facts []models.Fact) ([]models.Fact, error)
	// ListFacts returns facts oldest first. limit > 0 keeps only the newest limit facts.
	ListFacts(ctx context.Context, limit int) ([]models.Fact, error)
	CountFacts(ctx context.Context) (int, error)
}

// ConversationStore persists conversation records and their messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, kind models.Kind, scenarioKey string) (string, error)
	AppendMessage(ctx context.Context, conversationID string, msg models.Message) error
	// FinishConversation stores the transcript and stamps the end time.
	FinishConversation(ctx context.Context, conversationID, transcript string) error
	MarkFactsExtracted(ctx context.Context, conversationID string) error
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// SupportLogStore persists support conversation summaries.
type SupportLogStore interface {
	SaveSupportLog(ctx context.Context, log models.SupportLog) (models.SupportLog, error)
	ListSupportLogs(ctx context.Context, conversationID string) ([]models.SupportLog, error)
}

// Store is the full persistence surface.
type Store interface {
	FactStore
	ConversationStore
	SupportLogStore
	Close() error
}

// newest trims facts (oldest first) to the last limit entries.
func newest(facts []models.Fact, limit int) []models.Fact {
	if limit > 0 && len(facts) > limit {
		return facts[len(facts)-limit:]
	}
	return facts
}
