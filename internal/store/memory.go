package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/wspiernik/internal/models"
)

// Memory is a process-local Store. Data is lost on exit.
type Memory struct {
	mu            sync.RWMutex
	facts         []models.Fact
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message
	supportLogs   []models.SupportLog
	now           func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
		now:           time.Now,
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) SaveFacts(ctx context.Context, facts []models.Fact) ([]models.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap("save facts", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make([]models.Fact, 0, len(facts))
	for _, f := range facts {
		f.ID = uuid.NewString()
		f.Tags = append([]string(nil), f.Tags...)
		if f.ExtractedAt.IsZero() {
			f.ExtractedAt = m.now()
		}
		m.facts = append(m.facts, f)
		saved = append(saved, f)
	}
	return saved, nil
}

func (m *Memory) ListFacts(ctx context.Context, limit int) ([]models.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap("list facts", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Fact(nil), newest(m.facts, limit)...), nil
}

func (m *Memory) CountFacts(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.facts), nil
}

func (m *Memory) CreateConversation(ctx context.Context, kind models.Kind, scenarioKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", Wrap("create conversation", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.conversations[id] = &models.Conversation{
		ID:          id,
		Kind:        kind,
		ScenarioKey: scenarioKey,
		StartedAt:   m.now(),
	}
	return id, nil
}

func (m *Memory) conversation(op, id string) (*models.Conversation, error) {
	c, ok := m.conversations[id]
	if !ok {
		return nil, &Error{Op: op, Err: fmt.Errorf("conversation %s: %w", id, ErrNotFound)}
	}
	return c, nil
}

func (m *Memory) AppendMessage(ctx context.Context, conversationID string, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.conversation("append message", conversationID); err != nil {
		return err
	}
	if msg.At.IsZero() {
		msg.At = m.now()
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	return nil
}

func (m *Memory) FinishConversation(ctx context.Context, conversationID, transcript string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conversation("finish conversation", conversationID)
	if err != nil {
		return err
	}
	ended := m.now()
	c.EndedAt = &ended
	c.RawTranscript = transcript
	return nil
}

func (m *Memory) MarkFactsExtracted(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conversation("mark facts extracted", conversationID)
	if err != nil {
		return err
	}
	c.FactsExtracted = true
	return nil
}

func (m *Memory) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.conversation("get conversation", conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	return *c, nil
}

func (m *Memory) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Message(nil), m.messages[conversationID]...), nil
}

func (m *Memory) SaveSupportLog(ctx context.Context, log models.SupportLog) (models.SupportLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = uuid.NewString()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = m.now()
	}
	m.supportLogs = append(m.supportLogs, log)
	return log, nil
}

func (m *Memory) ListSupportLogs(ctx context.Context, conversationID string) ([]models.SupportLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.SupportLog
	for _, l := range m.supportLogs {
		if l.ConversationID == conversationID {
			out = append(out, l)
		}
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
