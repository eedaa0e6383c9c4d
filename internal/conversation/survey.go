package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/wspiernik/internal/models"
)

// SurveyStep is a state of the intake survey.
type SurveyStep int

const (
	WardAge SurveyStep = iota
	WardConditions
	WardMedications
	WardMobility
	WardOther
	Confirmation
	Completed
)

type surveyStepInfo struct {
	name        string
	displayName string
	instruction string
	fallback    string
	// factTag and factLabel are set for steps whose answer becomes a fact.
	factTag   string
	factLabel string
}

// surveyNext is the whole transition graph. Completed has no successor and
// Confirmation only moves on an affirmative answer.
var surveyNext = map[SurveyStep]SurveyStep{
	WardAge:         WardConditions,
	WardConditions:  WardMedications,
	WardMedications: WardMobility,
	WardMobility:    WardOther,
	WardOther:       Confirmation,
	Confirmation:    Completed,
}

var surveySteps = map[SurveyStep]surveyStepInfo{
	WardAge: {
		name:        "WARD_AGE",
		displayName: "Wiek podopiecznego",
		instruction: "Zapytaj o wiek podopiecznego w naturalny sposób.",
		fallback:    "Ile lat ma Twój podopieczny?",
		factTag:     "age",
		factLabel:   "Wiek",
	},
	WardConditions: {
		name:        "WARD_CONDITIONS",
		displayName: "Schorzenia podopiecznego",
		instruction: "Zapytaj o główne schorzenia lub problemy zdrowotne podopiecznego.",
		fallback:    "Jakie ma główne schorzenia lub problemy zdrowotne?",
		factTag:     "conditions",
		factLabel:   "Schorzenia",
	},
	WardMedications: {
		name:        "WARD_MEDICATIONS",
		displayName: "Leki podopiecznego",
		instruction: "Zapytaj, jakie leki przyjmuje podopieczny.",
		fallback:    "Jakie leki obecnie przyjmuje?",
		factTag:     "medications",
		factLabel:   "Leki",
	},
	WardMobility: {
		name:        "WARD_MOBILITY",
		displayName: "Mobilność podopiecznego",
		instruction: "Zapytaj o mobilność podopiecznego: czy chodzi samodzielnie, używa laski lub chodzika, czy porusza się na wózku.",
		fallback:    "Jak wygląda mobilność podopiecznego? Czy porusza się samodzielnie?",
		factTag:     "mobility",
		factLabel:   "Mobilność",
	},
	WardOther: {
		name:        "WARD_OTHER",
		displayName: "Inne informacje",
		instruction: "Zapytaj, czy jest coś jeszcze ważnego o podopiecznym, co powinieneś wiedzieć.",
		fallback:    "Czy jest jeszcze coś ważnego, co powinienem wiedzieć?",
		factTag:     "other",
		factLabel:   "Inne",
	},
	Confirmation: {
		name:        "CONFIRMATION",
		displayName: "Potwierdzenie danych",
		instruction: "Opiekun nie odpowiedział jednoznacznie. Poproś krótko o odpowiedź 'tak', jeśli dane są poprawne, albo 'nie', jeśli chce je poprawić.",
		fallback:    "Przepraszam, nie zrozumiałem. Czy dane są poprawne? Odpowiedz 'tak' aby potwierdzić lub 'nie' aby wprowadzić poprawki.",
	},
	Completed: {
		name:        "COMPLETED",
		displayName: "Zakończono",
		instruction: "Podziękuj opiekunowi za wypełnienie ankiety i powiedz, że profil podopiecznego został zapisany.",
		fallback:    "Dziękuję! Twój profil został zapisany. Teraz będę mógł lepiej Ci pomagać w opiece nad podopiecznym.",
	},
}

// String returns the step's wire name, e.g. "WARD_AGE".
func (s SurveyStep) String() string {
	if info, ok := surveySteps[s]; ok {
		return info.name
	}
	return fmt.Sprintf("SurveyStep(%d)", int(s))
}

// DisplayName returns the Polish label of the step.
func (s SurveyStep) DisplayName() string {
	return surveySteps[s].displayName
}

// Next returns the successor of s and whether one exists.
func (s SurveyStep) Next() (SurveyStep, bool) {
	n, ok := surveyNext[s]
	return n, ok
}

const correctionPrefix = "Rozumiem. Zacznijmy od początku. "

var (
	affirmativeLexicon = []string{"tak", "zgadza", "potwierdz", "ok", "dobrze"}
	correctionLexicon  = []string{"nie", "poprawk", "zmień", "błąd"}
)

type confirmationReply int

const (
	replyUnclear confirmationReply = iota
	replyAffirmative
	replyCorrection
)

// classifyConfirmation checks the affirmative lexicon first, then the
// correction lexicon, by substring of the lowercased answer.
func classifyConfirmation(text string) confirmationReply {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, w := range affirmativeLexicon {
		if strings.Contains(lower, w) {
			return replyAffirmative
		}
	}
	for _, w := range correctionLexicon {
		if strings.Contains(lower, w) {
			return replyCorrection
		}
	}
	return replyUnclear
}

type surveyAnswer struct {
	step SurveyStep
	text string
}

// Survey collects the ward profile in a fixed order and asks for confirmation.
type Survey struct {
	deps    Deps
	history *History
	step    SurveyStep
	answers map[SurveyStep]string
}

// NewSurvey returns a survey positioned at WardAge.
func NewSurvey(deps Deps, history *History) *Survey {
	return &Survey{
		deps:    deps,
		history: history,
		step:    WardAge,
		answers: make(map[SurveyStep]string),
	}
}

// Current returns the current step.
func (s *Survey) Current() SurveyStep { return s.step }

// Done reports whether the survey was confirmed.
func (s *Survey) Done() bool { return s.step == Completed }

// Start asks the first question.
func (s *Survey) Start(ctx context.Context) Turn {
	return s.reply(s.question(ctx), false)
}

// Step consumes one caregiver answer.
func (s *Survey) Step(ctx context.Context, text string) Turn {
	if s.step == Completed {
		return Turn{Text: surveySteps[Completed].fallback, Step: int(Completed), Completed: true}
	}
	s.history.Add(models.RoleUser, text)

	if s.step == Confirmation {
		switch classifyConfirmation(text) {
		case replyAffirmative:
			s.step = Completed
			return s.reply(s.question(ctx), true)
		case replyCorrection:
			s.step = WardAge
			clear(s.answers)
			return s.reply(correctionPrefix+s.question(ctx), false)
		default:
			return s.reply(s.question(ctx), false)
		}
	}

	s.answers[s.step] = strings.TrimSpace(text)
	s.step = surveyNext[s.step]
	if s.step == Confirmation {
		return s.reply(s.confirmation(ctx), false)
	}
	return s.reply(s.question(ctx), false)
}

func (s *Survey) reply(text string, completed bool) Turn {
	s.history.Add(models.RoleAssistant, text)
	return Turn{Text: text, Step: int(s.step), Completed: completed}
}

// question generates the prompt text for the current step.
func (s *Survey) question(ctx context.Context) string {
	info := surveySteps[s.step]
	prompt := surveyPrompt(s.deps.knownFacts(ctx), s.answered())
	return s.deps.generate(ctx, prompt, s.history, "[INSTRUKCJA SYSTEMU: "+info.instruction+"]", info.fallback)
}

func (s *Survey) confirmation(ctx context.Context) string {
	summary := s.Summary()
	fallback := "Oto zebrane informacje:\n\n" + summary + "\nCzy wszystko się zgadza? Odpowiedz 'tak' aby potwierdzić."
	return s.deps.generate(ctx, confirmationPersona, NewHistory(),
		instruction("Przedstaw poniższe dane i poproś o potwierdzenie")+"\n\n"+summary, fallback)
}

func (s *Survey) answered() []surveyAnswer {
	var out []surveyAnswer
	for step := WardAge; step < Confirmation; step++ {
		if a, ok := s.answers[step]; ok {
			out = append(out, surveyAnswer{step: step, text: a})
		}
	}
	return out
}

// Summary lists the collected answers, one "label: answer" line per step.
func (s *Survey) Summary() string {
	var sb strings.Builder
	for _, a := range s.answered() {
		fmt.Fprintf(&sb, "- %s: %s\n", a.step.DisplayName(), a.text)
	}
	return sb.String()
}

// Facts returns one fact per answered step, tagged with the step topic and "ward".
func (s *Survey) Facts() []models.ExtractedFact {
	var facts []models.ExtractedFact
	for _, a := range s.answered() {
		info := surveySteps[a.step]
		if a.text == "" {
			continue
		}
		facts = append(facts, models.ExtractedFact{
			Tags:  []string{info.factTag, "ward"},
			Value: info.factLabel + ": " + a.text,
		})
	}
	return facts
}

// Kind implements the session flow contract.
func (s *Survey) Kind() models.Kind { return models.KindSurvey }

// History returns the conversation log.
func (s *Survey) History() *History { return s.history }
