package scenario

import (
	"math"
	"strings"

	"github.com/raphaelgruber/wspiernik/internal/textnorm"
)

// Match is the outcome of classifying a description.
type Match struct {
	Matched    bool
	Scenario   Definition
	Keyword    string // first keyword hit of the winning scenario
	Confidence float64
}

type foldedScenario struct {
	def      Definition
	keywords []string
}

// Matcher classifies free text against a catalog by keyword containment.
// It is safe for concurrent use.
type Matcher struct {
	scenarios []foldedScenario
}

// NewMatcher prepares a matcher over the catalog's definitions.
func NewMatcher(c *Catalog) *Matcher {
	m := &Matcher{}
	for _, d := range c.All() {
		fs := foldedScenario{def: d}
		for _, k := range d.Keywords {
			fs.keywords = append(fs.keywords, textnorm.Fold(k))
		}
		m.scenarios = append(m.scenarios, fs)
	}
	return m
}

// Confidence is min(1, hits*0.3 + 0.2), or 0 without hits.
func Confidence(hits int) float64 {
	if hits <= 0 {
		return 0
	}
	return math.Min(1.0, float64(hits)*0.3+0.2)
}

// Match returns the scenario with the strictly highest confidence; ties keep
// the scenario enumerated first. No keyword hit anywhere yields no match.
func (m *Matcher) Match(text string) Match {
	normalized := textnorm.Fold(text)
	var best Match
	for _, s := range m.scenarios {
		hits := 0
		first := ""
		for i, k := range s.keywords {
			if k != "" && strings.Contains(normalized, k) {
				if hits == 0 {
					first = s.def.Keywords[i]
				}
				hits++
			}
		}
		if c := Confidence(hits); c > best.Confidence {
			best = Match{Matched: true, Scenario: s.def, Keyword: first, Confidence: c}
		}
	}
	return best
}
