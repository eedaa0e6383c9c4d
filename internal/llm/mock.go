package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/raphaelgruber/wspiernik/internal/models"
)

// Canned is an offline Generator. It picks up the question named in an
// injected instruction, answers distillation prompts with an empty JSON list
// and otherwise replies with a neutral prompt to continue.
type Canned struct{}

// NewCanned returns the offline generator used by the "mock" provider.
func NewCanned() *Canned { return &Canned{} }

var nextQuestionRe = regexp.MustCompile(`Następne pytanie do zadania: (.+?)\. Zadaj`)

// Generate implements Generator.
func (Canned) Generate(ctx context.Context, systemPrompt string, history []models.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.Contains(systemPrompt, "CareMemoryAgent") {
		return "[]", nil
	}
	if len(history) > 0 {
		last := history[len(history)-1].Content
		if m := nextQuestionRe.FindStringSubmatch(last); len(m) > 1 {
			return m[1], nil
		}
	}
	return "Rozumiem. Opowiedz mi o tym trochę więcej.", nil
}

// ErrScriptExhausted is returned by Script when no reply is left.
var ErrScriptExhausted = errors.New("script exhausted")

// Reply is one scripted generator outcome.
type Reply struct {
	Text string
	Err  error
}

// Call records one Generate invocation.
type Call struct {
	SystemPrompt string
	History      []models.Message
}

// Script replays a fixed sequence of replies and records every call.
// It is safe for concurrent use.
type Script struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

// NewScript returns a generator that answers with texts in order.
func NewScript(texts ...string) *Script {
	s := &Script{}
	for _, t := range texts {
		s.replies = append(s.replies, Reply{Text: t})
	}
	return s
}

// Push appends replies to the queue.
func (s *Script) Push(replies ...Reply) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
	return s
}

// Generate implements Generator.
func (s *Script) Generate(ctx context.Context, systemPrompt string, history []models.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{
		SystemPrompt: systemPrompt,
		History:      append([]models.Message(nil), history...),
	})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.replies) == 0 {
		return "", ErrScriptExhausted
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.Text, r.Err
}

// Calls returns a copy of the recorded invocations.
func (s *Script) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
