// Package session tracks the single active conversation of each connection.
package session

import (
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/wspiernik/internal/conversation"
	"github.com/raphaelgruber/wspiernik/internal/metrics"
	"github.com/raphaelgruber/wspiernik/internal/models"
)

// Flow is a conversation state machine owned by a session.
type Flow interface {
	Kind() models.Kind
	History() *conversation.History
	Done() bool
}

// Session is the live state of one conversation on one connection. The
// flow is one of *conversation.Survey, *conversation.Intervention or
// *conversation.Support, matching Kind.
type Session struct {
	ConnectionID   string
	ConversationID string
	Kind           models.Kind
	StartedAt      time.Time
	flow           Flow
}

// History returns the flow's message log.
func (s *Session) History() *conversation.History { return s.flow.History() }

// Survey returns the survey flow when the session is a survey.
func (s *Session) Survey() (*conversation.Survey, bool) {
	f, ok := s.flow.(*conversation.Survey)
	return f, ok
}

// Intervention returns the intervention flow when the session is an intervention.
func (s *Session) Intervention() (*conversation.Intervention, bool) {
	f, ok := s.flow.(*conversation.Intervention)
	return f, ok
}

// Support returns the support flow when the session is a support conversation.
func (s *Session) Support() (*conversation.Support, bool) {
	f, ok := s.flow.(*conversation.Support)
	return f, ok
}

const shardCount = 32

type shard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// Registry maps connection ids to their active session. Connections hash to
// independent shards, so operations on different connections rarely contend.
// No method blocks on I/O.
type Registry struct {
	shards  [shardCount]shard
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger, collector *metrics.Collector) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger, metrics: collector, now: time.Now}
	for i := range r.shards {
		r.shards[i].sessions = make(map[string]*Session)
	}
	return r
}

func (r *Registry) shardFor(connID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connID))
	return &r.shards[h.Sum32()%shardCount]
}

// Start registers a new session for connID, replacing any existing one.
// The replaced session, if any, is returned and its eviction logged.
func (r *Registry) Start(connID, conversationID string, flow Flow) (started, evicted *Session) {
	started = &Session{
		ConnectionID:   connID,
		ConversationID: conversationID,
		Kind:           flow.Kind(),
		StartedAt:      r.now(),
		flow:           flow,
	}

	sh := r.shardFor(connID)
	sh.mu.Lock()
	evicted = sh.sessions[connID]
	sh.sessions[connID] = started
	sh.mu.Unlock()

	r.metrics.Add(metrics.CountSessionsStarted, 1)
	if evicted != nil {
		r.metrics.Add(metrics.CountSessionsEvicted, 1)
		r.logger.Info("session replaced",
			"connection_id", connID,
			"old_kind", evicted.Kind,
			"old_conversation_id", evicted.ConversationID,
			"new_kind", started.Kind,
		)
	}
	return started, evicted
}

// Get returns the active session of connID.
func (r *Registry) Get(connID string) (*Session, bool) {
	sh := r.shardFor(connID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sessions[connID]
	return s, ok
}

// End removes and returns the session of connID. Ending a connection without
// a session is a no-op.
func (r *Registry) End(connID string) (*Session, bool) {
	sh := r.shardFor(connID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sessions[connID]
	if ok {
		delete(sh.sessions, connID)
	}
	return s, ok
}

// EndIf removes the session of connID only if it is still s. It reports
// whether s was removed; a session replaced in the meantime stays registered.
func (r *Registry) EndIf(connID string, s *Session) bool {
	sh := r.shardFor(connID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.sessions[connID]; ok && cur == s {
		delete(sh.sessions, connID)
		return true
	}
	return false
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}
