package conversation

import (
	"context"
	"strings"

	"github.com/raphaelgruber/wspiernik/internal/models"
)

// DefaultSupportOfferAt is the message count at which wrapping up is offered.
const DefaultSupportOfferAt = 12

const (
	supportGreetingFallback = "Cześć! Jestem tu, żeby Cię wesprzeć. Jak się dzisiaj czujesz?"
	supportReplyFallback    = "Rozumiem. Proszę, powiedz mi więcej o tym, co czujesz."
	supportFarewellFallback = "Dziękuję za rozmowę. Pamiętaj, że robisz wspaniałą pracę jako opiekun. Jestem tu dla Ciebie, kiedy będziesz potrzebować wsparcia."
)

// Support is an open emotional-support conversation. Every user and
// assistant message increments the counter; from offerAt on the generator
// is nudged to propose ending and to emit SupportMarker.
type Support struct {
	deps      Deps
	history   *History
	offerAt   int
	messages  int
	completed bool
}

// NewSupport returns a support conversation. offerAt <= 0 selects the default.
func NewSupport(deps Deps, history *History, offerAt int) *Support {
	if offerAt <= 0 {
		offerAt = DefaultSupportOfferAt
	}
	return &Support{deps: deps, history: history, offerAt: offerAt}
}

// Messages returns the message counter.
func (s *Support) Messages() int { return s.messages }

// Done reports whether the conversation ended.
func (s *Support) Done() bool { return s.completed }

func (s *Support) shouldOfferEnd() bool { return s.messages >= s.offerAt }

// Start greets the caregiver. A non-blank opening text is treated as the
// first user message and answered directly.
func (s *Support) Start(ctx context.Context, opening string) Turn {
	if strings.TrimSpace(opening) != "" {
		return s.Step(ctx, opening)
	}
	text := s.deps.generate(ctx, supportPrompt(s.deps.knownFacts(ctx)), s.history,
		instruction("Przywitaj się ciepło i zapytaj opiekuna, jak się dziś czuje."),
		supportGreetingFallback)
	return s.reply(text)
}

// Step answers one caregiver message.
func (s *Support) Step(ctx context.Context, text string) Turn {
	if s.completed {
		return Turn{Text: supportFarewellFallback, Step: s.messages, Completed: true}
	}
	s.history.Add(models.RoleUser, text)
	s.messages++

	var instr string
	if s.shouldOfferEnd() {
		instr = instruction("Rozmowa trwa już dłuższą chwilę. Delikatnie zaproponuj jej zakończenie. Jeśli opiekun się zgadza lub żegna, pożegnaj się i napisz \"" + SupportMarker + "\".")
	}
	reply := s.deps.generate(ctx, supportPrompt(s.deps.knownFacts(ctx)), s.history, instr, supportReplyFallback)
	return s.reply(reply)
}

// Complete generates a farewell and ends the conversation.
func (s *Support) Complete(ctx context.Context) Turn {
	if s.completed {
		return Turn{Text: supportFarewellFallback, Step: s.messages, Completed: true}
	}
	text := s.deps.generate(ctx, supportPrompt(s.deps.knownFacts(ctx)), s.history,
		instruction("Opiekun kończy rozmowę. Pożegnaj się ciepło, podsumuj w jednym zdaniu, o czym rozmawialiście, i przypomnij, że może wrócić w każdej chwili."),
		supportFarewellFallback)
	s.completed = true
	return s.reply(text)
}

func (s *Support) reply(text string) Turn {
	visible, done := StripMarker(text, SupportMarker)
	if done {
		s.completed = true
	}
	if visible == "" {
		visible = supportFarewellFallback
	}
	s.history.Add(models.RoleAssistant, visible)
	s.messages++
	return Turn{Text: visible, Step: s.messages, Completed: s.completed, SuggestEnd: s.shouldOfferEnd() && !s.completed}
}

// Kind implements the session flow contract.
func (s *Support) Kind() models.Kind { return models.KindSupport }

// History returns the conversation log.
func (s *Support) History() *History { return s.history }
