package facts

import (
	"strings"

	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/raphaelgruber/wspiernik/internal/textnorm"
)

// DuplicateThreshold is the word-set similarity at which two facts sharing
// a tag count as the same fact.
const DuplicateThreshold = 0.8

// IsDuplicate reports whether a and b share a tag and have near-identical values.
func IsDuplicate(a, b models.ExtractedFact) bool {
	if !shareTag(a.Tags, b.Tags) {
		return false
	}
	return textnorm.Jaccard(a.Value, b.Value) >= DuplicateThreshold
}

func shareTag(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(strings.TrimSpace(x), strings.TrimSpace(y)) {
				return true
			}
		}
	}
	return false
}

// Dedup drops candidates that duplicate a known fact or an earlier candidate.
func Dedup(candidates []models.ExtractedFact, known []models.Fact) []models.ExtractedFact {
	kept := make([]models.ExtractedFact, 0, len(candidates))
	seen := make([]models.ExtractedFact, 0, len(known)+len(candidates))
	for _, f := range known {
		seen = append(seen, models.ExtractedFact{Tags: f.Tags, Value: f.Value})
	}

next:
	for _, c := range candidates {
		for _, s := range seen {
			if IsDuplicate(c, s) {
				continue next
			}
		}
		kept = append(kept, c)
		seen = append(seen, c)
	}
	return kept
}
