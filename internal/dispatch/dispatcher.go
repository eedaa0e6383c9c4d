// Package dispatch routes inbound envelopes to the conversation flows and
// turns their outcomes, or failures, into outbound envelopes.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/raphaelgruber/wspiernik/internal/conversation"
	"github.com/raphaelgruber/wspiernik/internal/facts"
	"github.com/raphaelgruber/wspiernik/internal/llm"
	"github.com/raphaelgruber/wspiernik/internal/metrics"
	"github.com/raphaelgruber/wspiernik/internal/protocol"
	"github.com/raphaelgruber/wspiernik/internal/session"
	"github.com/raphaelgruber/wspiernik/internal/store"
)

// Store is the persistence used by the handlers.
type Store interface {
	store.FactStore
	store.ConversationStore
}

// Submitter accepts finished conversations for background distillation.
type Submitter interface {
	Submit(job facts.Job) bool
}

// Options holds the dispatcher's collaborators.
type Options struct {
	Registry       *session.Registry
	Store          Store
	Generator      llm.Generator
	Matcher        conversation.ScenarioMatcher
	Distiller      Submitter
	SupportOfferAt int
	Logger         *slog.Logger
	Metrics        *metrics.Collector
}

// Dispatcher handles inbound envelopes for all connections. It keeps no
// per-connection state of its own; sessions live in the registry.
type Dispatcher struct {
	registry       *session.Registry
	store          Store
	deps           conversation.Deps
	matcher        conversation.ScenarioMatcher
	distiller      Submitter
	supportOfferAt int
	logger         *slog.Logger
	metrics        *metrics.Collector
	handlers       map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, connID string, in protocol.Inbound) ([]protocol.Outbound, error)

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dispatch")

	d := &Dispatcher{
		registry:       opts.Registry,
		store:          opts.Store,
		matcher:        opts.Matcher,
		distiller:      opts.Distiller,
		supportOfferAt: opts.SupportOfferAt,
		logger:         logger,
		metrics:        opts.Metrics,
		deps: conversation.Deps{
			Generator: opts.Generator,
			Facts:     opts.Store,
			Logger:    logger,
		},
	}
	d.handlers = map[string]handlerFunc{
		protocol.TypeSurveyStart:          d.surveyStart,
		protocol.TypeSurveyMessage:        d.surveyMessage,
		protocol.TypeSurveyComplete:       d.surveyComplete,
		protocol.TypeInterventionStart:    d.interventionStart,
		protocol.TypeInterventionMessage:  d.interventionMessage,
		protocol.TypeInterventionComplete: d.interventionComplete,
		protocol.TypeSupportStart:         d.supportStart,
		protocol.TypeSupportMessage:       d.supportMessage,
		protocol.TypeSupportComplete:      d.supportComplete,
		protocol.TypeGetFacts:             d.getFacts,
	}
	return d
}

// Handle processes one raw inbound frame from connID and returns the
// envelopes to send back, in order. It never panics and never returns an
// empty result: failures become a single error envelope.
func (d *Dispatcher) Handle(ctx context.Context, connID string, raw []byte) (out []protocol.Outbound) {
	in, err := protocol.Parse(raw)
	if err != nil {
		return []protocol.Outbound{d.fail(connID, in, err)}
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic",
				"connection_id", connID,
				"type", in.Type,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			out = []protocol.Outbound{d.fail(connID, in, fmt.Errorf("panic: %v", r))}
		}
	}()

	h, ok := d.handlers[in.Type]
	if !ok {
		return []protocol.Outbound{d.fail(connID, in, protocol.NewError(protocol.CodeUnknownType, ""))}
	}

	d.logger.Debug("handling message", "connection_id", connID, "type", in.Type, "request_id", requestID(in))
	out, err = h(ctx, connID, in)
	if err != nil {
		return []protocol.Outbound{d.fail(connID, in, err)}
	}
	return out
}

// Disconnect tears down the session of a closed connection. Calling it for
// a connection without a session is a no-op.
func (d *Dispatcher) Disconnect(ctx context.Context, connID string) {
	s, ok := d.registry.End(connID)
	if !ok {
		return
	}
	d.logger.Info("session abandoned",
		"connection_id", connID,
		"conversation_id", s.ConversationID,
		"kind", s.Kind,
	)
	d.abandon(ctx, s)
}

// abandon stores what is left of a session that ended without completing.
// Nothing is distilled.
func (d *Dispatcher) abandon(ctx context.Context, s *session.Session) {
	d.persist(ctx, s)
	if err := d.store.FinishConversation(ctx, s.ConversationID, s.History().Transcript()); err != nil {
		d.logger.Warn("failed to finish conversation", "conversation_id", s.ConversationID, "error", err)
	}
}

func (d *Dispatcher) fail(connID string, in protocol.Inbound, err error) protocol.Outbound {
	perr := protocol.Classify(err)
	d.metrics.Add(metrics.CountProtocolErrors, 1)
	d.logger.Warn("request failed",
		"connection_id", connID,
		"type", in.Type,
		"request_id", requestID(in),
		"code", perr.Code,
		"error", err,
	)
	return protocol.ErrorEnvelope(perr, in.RequestID)
}

func requestID(in protocol.Inbound) string {
	if in.RequestID == nil {
		return ""
	}
	return *in.RequestID
}

// requireText returns the trimmed payload text or a VALIDATION_ERROR.
func requireText(in protocol.Inbound) (string, error) {
	text := strings.TrimSpace(in.Payload.Text)
	if text == "" {
		return "", protocol.NewError(protocol.CodeValidationError, "Wiadomość nie może być pusta")
	}
	return text, nil
}

// begin creates the conversation record for a started flow, stores its
// first messages and registers the session. A session it replaces is closed
// the same way as on disconnect.
func (d *Dispatcher) begin(ctx context.Context, connID, scenarioKey string, flow session.Flow) (*session.Session, error) {
	convID, err := d.store.CreateConversation(ctx, flow.Kind(), scenarioKey)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s, evicted := d.registry.Start(connID, convID, flow)
	if evicted != nil {
		d.abandon(ctx, evicted)
	}
	d.persist(ctx, s)
	d.logger.Info("session started",
		"connection_id", connID,
		"conversation_id", convID,
		"kind", flow.Kind(),
	)
	return s, nil
}

// persist appends messages not yet stored. Failures are logged; the
// conversation continues without them.
func (d *Dispatcher) persist(ctx context.Context, s *session.Session) {
	h := s.History()
	for _, m := range h.Unsaved() {
		if err := d.store.AppendMessage(ctx, s.ConversationID, m); err != nil {
			d.logger.Warn("failed to store message",
				"conversation_id", s.ConversationID,
				"error", err,
			)
			return
		}
	}
	h.MarkSaved()
}

// finish ends s if it is still the connection's session, stores the
// transcript and, when distill is set, queues fact extraction.
func (d *Dispatcher) finish(ctx context.Context, connID string, s *session.Session, distill bool) {
	d.registry.EndIf(connID, s)
	d.persist(ctx, s)

	transcript := s.History().Transcript()
	if err := d.store.FinishConversation(ctx, s.ConversationID, transcript); err != nil {
		d.logger.Warn("failed to finish conversation", "conversation_id", s.ConversationID, "error", err)
	}
	d.metrics.Add(metrics.CountSessionsCompleted, 1)
	d.logger.Info("session completed",
		"connection_id", connID,
		"conversation_id", s.ConversationID,
		"kind", s.Kind,
		"distill", distill,
	)

	if distill && d.distiller != nil {
		d.distiller.Submit(facts.Job{
			ConversationID: s.ConversationID,
			Kind:           s.Kind,
			Transcript:     transcript,
			ConnectionID:   connID,
		})
	}
}
