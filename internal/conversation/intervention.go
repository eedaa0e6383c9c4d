package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/raphaelgruber/wspiernik/internal/scenario"
)

const (
	// GenericScenarioKey identifies the flow used when no scenario matched.
	GenericScenarioKey  = "generic"
	genericScenarioName = "Ogólna interwencja"
	// placeholderDescription stands in for a missing description.
	placeholderDescription = "ogólna pomoc"

	genericFallback  = "Proszę opisz dokładniej co się dzieje z podopiecznym."
	scenarioFallback = "Proszę opisz sytuację bardziej szczegółowo."
	summaryFallback  = "Interwencja zakończona. "
)

// ScenarioMatcher classifies a crisis description.
type ScenarioMatcher interface {
	Match(text string) scenario.Match
}

// Intervention triages a crisis. With a matched scenario it walks the
// scenario's questions in order and closes with a summary; without one the
// generator leads and ends the flow by emitting InterventionMarker.
type Intervention struct {
	deps        Deps
	history     *History
	matcher     ScenarioMatcher
	match       scenario.Match
	description string
	question    int
	answers     map[int]string
	completed   bool
}

// NewIntervention returns an intervention that has not been started.
func NewIntervention(deps Deps, history *History, matcher ScenarioMatcher) *Intervention {
	return &Intervention{
		deps:    deps,
		history: history,
		matcher: matcher,
		answers: make(map[int]string),
	}
}

// Start classifies the description and produces the first question.
// An empty description is replaced by a generic placeholder.
func (iv *Intervention) Start(ctx context.Context, description string) (scenario.Match, Turn) {
	description = strings.TrimSpace(description)
	if description == "" {
		description = placeholderDescription
	}
	iv.description = description
	iv.match = iv.matcher.Match(description)
	iv.history.Add(models.RoleUser, description)

	if iv.match.Matched {
		iv.deps.logger().Info("intervention scenario matched",
			"scenario", iv.match.Scenario.Key,
			"keyword", iv.match.Keyword,
			"confidence", iv.match.Confidence,
		)
		q := iv.match.Scenario.Questions[0]
		return iv.match, iv.reply(iv.generateScenario(ctx, nextQuestionInstruction(q), q))
	}
	return iv.match, iv.reply(iv.generateGeneric(ctx))
}

// Step records the caregiver's answer and produces the next turn.
func (iv *Intervention) Step(ctx context.Context, text string) Turn {
	if iv.completed {
		return Turn{Text: summaryFallback, Step: iv.question, Completed: true}
	}
	iv.history.Add(models.RoleUser, text)

	if !iv.match.Matched {
		return iv.reply(iv.generateGeneric(ctx))
	}

	iv.answers[iv.question] = strings.TrimSpace(text)
	iv.question++
	questions := iv.match.Scenario.Questions
	if iv.question < len(questions) {
		q := questions[iv.question]
		return iv.reply(iv.generateScenario(ctx, nextQuestionInstruction(q), q))
	}

	summary := iv.Summary()
	text = iv.generateScenario(ctx,
		instruction("Zebrano wszystkie informacje. Podsumuj sytuację i zaproponuj konkretne dalsze kroki.\n\n"+summary),
		summaryFallback+summary)
	iv.completed = true
	return iv.reply(text)
}

// Complete ends the intervention without a summary turn.
func (iv *Intervention) Complete() {
	iv.completed = true
}

// Done reports whether the intervention reached its terminal state.
func (iv *Intervention) Done() bool { return iv.completed }

// ScenarioKey returns the matched scenario key, or "generic".
func (iv *Intervention) ScenarioKey() string {
	if iv.match.Matched {
		return iv.match.Scenario.Key
	}
	return GenericScenarioKey
}

// ScenarioName returns the matched scenario name, or the generic flow's name.
func (iv *Intervention) ScenarioName() string {
	if iv.match.Matched {
		return iv.match.Scenario.Name
	}
	return genericScenarioName
}

// Summary lists the scenario questions with the answers collected so far.
func (iv *Intervention) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Typ interwencji: %s\n", iv.ScenarioName())
	fmt.Fprintf(&sb, "Opis: %s\n", iv.description)
	if iv.match.Matched {
		sb.WriteString("Zebrane informacje:\n")
		for i, q := range iv.match.Scenario.Questions {
			a, ok := iv.answers[i]
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, "P: %s\nO: %s\n", q, a)
		}
	}
	return sb.String()
}

func nextQuestionInstruction(q string) string {
	return instruction("Następne pytanie do zadania: " + q + ". Zadaj je w naturalny sposób, biorąc pod uwagę kontekst rozmowy.")
}

func (iv *Intervention) generateScenario(ctx context.Context, instr, fallback string) string {
	if fallback == "" {
		fallback = scenarioFallback
	}
	prompt := iv.match.Scenario.RenderPrompt(factsJSON(iv.deps.knownFacts(ctx)))
	return iv.deps.generate(ctx, prompt, iv.history, instr, fallback)
}

func (iv *Intervention) generateGeneric(ctx context.Context) string {
	prompt := genericInterventionPrompt(iv.deps.knownFacts(ctx))
	return iv.deps.generate(ctx, prompt, iv.history, "", genericFallback)
}

// reply strips the completion marker, records the assistant text and builds
// the turn. A marker in any reply completes the intervention.
func (iv *Intervention) reply(text string) Turn {
	visible, done := StripMarker(text, InterventionMarker)
	if done {
		iv.completed = true
	}
	if visible == "" {
		visible = summaryFallback + iv.Summary()
	}
	iv.history.Add(models.RoleAssistant, visible)
	return Turn{Text: visible, Step: iv.question, Completed: iv.completed}
}

// Kind implements the session flow contract.
func (iv *Intervention) Kind() models.Kind { return models.KindIntervention }

// History returns the conversation log.
func (iv *Intervention) History() *History { return iv.history }
