package facts

import (
	"strings"

	"github.com/raphaelgruber/wspiernik/internal/models"
)

const distillPromptTemplate = `Jesteś agentem "CareMemoryAgent". Nie rozmawiasz z opiekunem.
Twoje jedyne zadanie to wyłuskanie z zakończonej rozmowy NOWYCH, trwałych faktów
o opiekunie, o podopiecznym z demencją oraz o warunkach opieki.

Zapisuj tylko informacje konkretne i przydatne w przyszłych rozmowach, np.:
relację z podopiecznym, diagnozę, leki, poziom samodzielności, powtarzające się
zachowania, rutyny i upodobania, sytuację życiową opiekuna, miejsce opieki.

Nie zapisuj ogólnej wiedzy medycznej, porad, chwilowych emocji ani tematów
niezwiązanych z opieką. Nie powtarzaj faktów, które już znasz.

Rozmowa:
{transcript}

Znane fakty:
{facts_context}

Odpowiedz WYŁĄCZNIE tablicą JSON. Każdy element ma postać:
{"tags": ["tag1", "tag2"], "value": "Krótkie zdanie z faktem.", "severity": 1-10}
gdzie severity to pewność faktu (1 niska, 10 wysoka).
Przykład:
[
  {"tags": ["relationship_to_patient", "caregiver"], "value": "Opiekunka jest córką podopiecznej.", "severity": 9},
  {"tags": ["routines_and_preferences", "ward"], "value": "Podopieczną uspokaja muzyka z młodości.", "severity": 5}
]
Jeśli nie ma nowych faktów, zwróć [].`

const supportAssessmentPromptTemplate = `Przeanalizuj rozmowę wsparcia z opiekunem osoby z demencją.

Rozmowa:
{transcript}

Oceń poziom stresu opiekuna w skali 1-10 oraz wypisz jego potrzeby
(np. odpoczynek, pomoc w opiece, rozmowa, informacje).
Odpowiedz WYŁĄCZNIE obiektem JSON:
{"stress_level": 7, "needs": ["odpoczynek", "wsparcie rodziny"]}`

// DistillPrompt renders the extraction prompt for a transcript.
func DistillPrompt(transcript string, known []models.Fact) string {
	return strings.NewReplacer(
		"{transcript}", transcript,
		"{facts_context}", models.FormatFacts(known),
	).Replace(distillPromptTemplate)
}

// SupportAssessmentPrompt renders the prompt asking for a support summary.
func SupportAssessmentPrompt(transcript string) string {
	return strings.ReplaceAll(supportAssessmentPromptTemplate, "{transcript}", transcript)
}
