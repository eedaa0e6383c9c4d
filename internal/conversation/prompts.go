package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raphaelgruber/wspiernik/internal/models"
)

const surveyPersona = `Jesteś Stefanem, ciepłym i empatycznym asystentem dla opiekunów osób starszych.
Prowadzisz krótką rozmowę, żeby poznać podstawowe informacje o podopiecznym.

Zasady:
- jedno pytanie na raz
- prosty, przyjazny język
- nie pytaj ponownie o to, co już wiesz
- odpowiadaj krótko (1-2 zdania)
`

const confirmationPersona = `Jesteś asystentem opiekuna osoby starszej. Zebrałeś właśnie informacje o podopiecznym.
Przedstaw je życzliwie i poproś o potwierdzenie. Bądź ciepły i empatyczny.`

const genericInterventionPersona = `Jesteś asystentem, który pomaga opiekunowi osoby starszej w trudnej sytuacji.

Znane fakty o podopiecznym i opiekunie:
%s

Zasady:
- zadawaj jedno pytanie na raz i ustal, co się dzieje
- bądź spokojny, konkretny i wspierający
- przy zagrożeniu życia (utrata przytomności, silny ból w klatce, drgawki) od razu zalecaj wezwanie pogotowia (112)
- gdy wiesz już wystarczająco dużo, podsumuj sytuację, zaproponuj dalsze kroki i napisz "` + InterventionMarker + `"

Mów po polsku.`

const supportPersona = `Jesteś Stefanem, asystentem, który wspiera emocjonalnie opiekunów osób z demencją.

Co wiesz o opiekunie i podopiecznym:
%s

Zasady:
- odpowiadaj bezpośrednio na to, co mówi opiekun
- normalizuj zmęczenie, złość i poczucie winy, to naturalne w roli opiekuna
- proponuj małe, konkretne kroki dbania o siebie
- nie stawiasz diagnoz i nie zmieniasz leków
- gdy opiekun wspomina o myślach samobójczych lub przemocy, zalecaj natychmiastowy kontakt z pomocą (112, telefon zaufania 116 123)

Mów po polsku, ciepło i zwięźle.`

func instruction(text string) string {
	return "[INSTRUKCJA: " + text + "]"
}

func surveyPrompt(facts []models.Fact, answered []surveyAnswer) string {
	var sb strings.Builder
	sb.WriteString(surveyPersona)
	if len(answered) > 0 || len(facts) > 0 {
		sb.WriteString("\nJuż wiesz:\n")
		for _, a := range answered {
			fmt.Fprintf(&sb, "- %s: %s\n", a.step.DisplayName(), a.text)
		}
		for _, f := range facts {
			fmt.Fprintf(&sb, "- %s\n", f.Value)
		}
	}
	return sb.String()
}

func supportPrompt(facts []models.Fact) string {
	return fmt.Sprintf(supportPersona, models.FormatFacts(facts))
}

func genericInterventionPrompt(facts []models.Fact) string {
	return fmt.Sprintf(genericInterventionPersona, models.FormatFacts(facts))
}

// factsJSON renders facts for the {facts_json} placeholder of scenario prompts.
func factsJSON(facts []models.Fact) string {
	type item struct {
		Tags     []string `json:"tags"`
		Value    string   `json:"value"`
		Severity *int     `json:"severity,omitempty"`
	}
	items := make([]item, 0, len(facts))
	for _, f := range facts {
		items = append(items, item{Tags: f.Tags, Value: f.Value, Severity: f.Severity})
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}
