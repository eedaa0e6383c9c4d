package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/wspiernik/internal/conversation"
	"github.com/raphaelgruber/wspiernik/internal/metrics"
	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/raphaelgruber/wspiernik/internal/protocol"
	"github.com/raphaelgruber/wspiernik/internal/session"
)

var (
	errNoSurvey       = protocol.NewError(protocol.CodeInvalidState, "Nie masz aktywnej ankiety. Rozpocznij nową ankietę.")
	errNoIntervention = protocol.NewError(protocol.CodeInvalidState, "Nie masz aktywnej interwencji. Rozpocznij nową interwencję.")
	errNoSupport      = protocol.NewError(protocol.CodeInvalidState, "Nie masz aktywnej rozmowy wsparcia. Rozpocznij nową rozmowę.")
)

func (d *Dispatcher) surveySession(connID string) (*session.Session, *conversation.Survey, error) {
	s, ok := d.registry.Get(connID)
	if !ok {
		return nil, nil, errNoSurvey
	}
	sv, ok := s.Survey()
	if !ok {
		return nil, nil, errNoSurvey
	}
	return s, sv, nil
}

func (d *Dispatcher) interventionSession(connID string) (*session.Session, *conversation.Intervention, error) {
	s, ok := d.registry.Get(connID)
	if !ok {
		return nil, nil, errNoIntervention
	}
	iv, ok := s.Intervention()
	if !ok {
		return nil, nil, errNoIntervention
	}
	return s, iv, nil
}

func (d *Dispatcher) supportSession(connID string) (*session.Session, *conversation.Support, error) {
	s, ok := d.registry.Get(connID)
	if !ok {
		return nil, nil, errNoSupport
	}
	sp, ok := s.Support()
	if !ok {
		return nil, nil, errNoSupport
	}
	return s, sp, nil
}

func (d *Dispatcher) surveyStart(ctx context.Context, connID string, in protocol.Inbound) ([]protocol.Outbound, error) {
	sv := conversation.NewSurvey(d.deps, conversation.NewHistory())
	turn := sv.Start(ctx)
	if _, err := d.begin(ctx, connID, "", sv); err != nil {
		return nil, err
	}
	return []protocol.Outbound{surveyQuestion(turn, in.RequestID)}, nil
}

func (d *Dispatcher) surveyMessage(ctx context.Context, connID string, in protocol.Inbound) ([]protocol.Outbound, error) {
	text, err := requireText(in)
	if err != nil {
		return nil, err
	}
	s, sv, err := d.surveySession(connID)
	if err != nil {
		return nil, err
	}

	turn := sv.Step(ctx, text)
	out := []protocol.Outbound{surveyQuestion(turn, in.RequestID)}
	if !turn.Completed {
		d.persist(ctx, s)
		return out, nil
	}

	saved, err := d.saveSurveyFacts(ctx, s, sv)
	d.finish(ctx, connID, s, err == nil)
	if err != nil {
		return nil, err
	}
	return append(out, protocol.NewOutbound(protocol.TypeSurveyCompleted, protocol.SurveyCompletedPayload{
		ProfileID:  s.ConversationID,
		FactsSaved: saved,
	}, in.RequestID)), nil
}

func (d *Dispatcher) saveSurveyFacts(ctx context.Context, s *session.Session, sv *conversation.Survey) (int, error) {
	extracted := sv.Facts()
	if len(extracted) == 0 {
		return 0, nil
	}
	at := time.Now()
	facts := make([]models.Fact, 0, len(extracted))
	for _, f := range extracted {
		facts = append(facts, models.NewFact(s.ConversationID, f, at))
	}
	saved, err := d.store.SaveFacts(ctx, facts)
	if err != nil {
		return 0, fmt.Errorf("save survey facts: %w", err)
	}
	d.metrics.Add(metrics.CountFactsSaved, int64(len(saved)))
	return len(saved), nil
}

func (d *Dispatcher) surveyComplete(ctx context.Context, connID string, in protocol.Inbound) ([]protocol.Outbound, error) {
	s, _, err := d.surveySession(connID)
	if err != nil {
		return nil, err
	}
	d.finish(ctx, connID, s, false)
	return []protocol.Outbound{protocol.NewOutbound(protocol.TypeSurveyCompleted, protocol.SurveyCompletedPayload{
		ProfileID:  s.ConversationID,
		FactsSaved: 0,
	}, in.RequestID)}, nil
}

func (d *Dispatcher) interventionStart(ctx context.Context, connID string, in protocol.Inbound) ([]protocol.Outbound, error) {
	description := in.Payload.ScenarioDescription
	if description == "" {
		description = in.Payload.Text
	}

	iv := conversation.NewIntervention(d.deps, conversation.NewHistory(), d.matcher)
	match, turn := iv.Start(ctx, description)
	s, err := d.begin(ctx, connID, iv.ScenarioKey(), iv)
	if err != nil {
		return nil, err
	}

	var out []protocol.Outbound
	if match.Matched {
		out = append(out, protocol.NewOutbound(protocol.TypeInterventionScenarioMatched, protocol.ScenarioMatchedPayload{
			ScenarioKey:  match.Scenario.Key,
			ScenarioName: match.Scenario.Name,
			Confidence:   match.Confidence,
		}, in.RequestID))
	}
	out = append(out, interventionQuestion(turn, in.RequestID))
	if turn.Completed {
		d.finish(ctx, connID, s, true)
		out = append(out, completed(protocol.TypeInterventionCompleted, s, in.RequestID))
	}
	return out, nil
}

func (d *Dispatcher) interventionMessage(ctx context.Context, connID string, in protocol.Inbound) ([]protocol.Outbound, error) {
	text, err := requireText(in)
	if err != nil {
		return nil, err
	}
	s, iv, err := d.interventionSession(connID)
	if err != nil {
		return nil, err
	}

	turn := iv.Step(ctx, text)
	out := []protocol.Outbound{interventionQuestion(turn, in.RequestID)}
	if !turn.Completed {
		d.persist(ctx, s)
		return out, nil
	}
	d.finish(ctx, connID, s, true)
	return append(out, completed(protocol.TypeInterventionCompleted, s, in.RequestID)), nil
}

func (d *Dispatcher) interventionComplete(ctx context.Context, connID string, in protocol.Inbound) ([]protocol.Outbound, error) {
	s, iv, err := d.interventionSession(connID)
	if err != nil {
		return nil, err
	}
	iv.Complete()
	d.finish(ctx, connID, s, true)
	return []protocol.Outbound{completed(protocol.TypeInterventionCompleted, s, in.RequestID)}, nil
}

func (d *Dispatcher) supportStart(ctx context.Context, connID string, in protocol.Inbound) ([]protocol.Outbound, error) {
	sp := conversation.NewSupport(d.deps, conversation.NewHistory(), d.supportOfferAt)
	turn := sp.Start(ctx, in.Payload.Text)
	s, err := d.begin(ctx, connID, "", sp)
	if err != nil {
		return nil, err
	}

	out := []protocol.Outbound{supportMessage(turn, in.RequestID)}
	if turn.Completed {
		d.finish(ctx, connID, s, true)
		out = append(out, completed(protocol.TypeSupportCompleted, s, in.RequestID))
	}
	return out, nil
}

func (d *Dispatcher) supportMessage(ctx context.Context, connID string, in protocol.Inbound) ([]protocol.Outbound, error) {
	text, err := requireText(in)
	if err != nil {
		return nil, err
	}
	s, sp, err := d.supportSession(connID)
	if err != nil {
		return nil, err
	}

	turn := sp.Step(ctx, text)
	out := []protocol.Outbound{supportMessage(turn, in.RequestID)}
	if !turn.Completed {
		d.persist(ctx, s)
		return out, nil
	}
	d.finish(ctx, connID, s, true)
	return append(out, completed(protocol.TypeSupportCompleted, s, in.RequestID)), nil
}

func (d *Dispatcher) supportComplete(ctx context.Context, connID string, in protocol.Inbound) ([]protocol.Outbound, error) {
	s, sp, err := d.supportSession(connID)
	if err != nil {
		return nil, err
	}
	turn := sp.Complete(ctx)
	d.finish(ctx, connID, s, true)
	return []protocol.Outbound{
		supportMessage(turn, in.RequestID),
		completed(protocol.TypeSupportCompleted, s, in.RequestID),
	}, nil
}

func (d *Dispatcher) getFacts(ctx context.Context, connID string, in protocol.Inbound) ([]protocol.Outbound, error) {
	if in.Payload.Limit < 0 {
		return nil, protocol.NewError(protocol.CodeValidationError, "Limit nie może być ujemny")
	}
	total, err := d.store.CountFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count facts: %w", err)
	}
	list, err := d.store.ListFacts(ctx, in.Payload.Limit)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	return []protocol.Outbound{protocol.NewOutbound(protocol.TypeFactsList, protocol.FactsListPayload{
		Facts:      protocol.NewFactDTOs(list),
		TotalCount: total,
	}, in.RequestID)}, nil
}

func surveyQuestion(turn conversation.Turn, requestID *string) protocol.Outbound {
	return protocol.NewOutbound(protocol.TypeSurveyQuestion, protocol.QuestionPayload{Question: turn.Text, Step: turn.Step}, requestID)
}

func interventionQuestion(turn conversation.Turn, requestID *string) protocol.Outbound {
	return protocol.NewOutbound(protocol.TypeInterventionQuestion, protocol.QuestionPayload{Question: turn.Text, Step: turn.Step}, requestID)
}

func supportMessage(turn conversation.Turn, requestID *string) protocol.Outbound {
	return protocol.NewOutbound(protocol.TypeSupportMessage, protocol.SupportMessagePayload{Text: turn.Text, SuggestEnd: turn.SuggestEnd}, requestID)
}

func completed(typ string, s *session.Session, requestID *string) protocol.Outbound {
	return protocol.NewOutbound(typ, protocol.CompletedPayload{
		ConversationID:  s.ConversationID,
		FactsExtraction: protocol.FactsExtractionPending,
	}, requestID)
}
