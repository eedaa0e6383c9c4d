// Package models defines the conversation, message and fact records shared
// by the flows, the stores and the wire protocol.
package models

import (
	"fmt"
	"strings"
	"time"
)

// ExtractedFact is a candidate fact proposed by the distiller, before it is
// stored. Tags and Value are required; Severity is optional and 1-10.
type ExtractedFact struct {
	Tags     []string `json:"tags"`
	Value    string   `json:"value"`
	Severity *int     `json:"severity,omitempty"`
}

// Valid reports whether f carries at least one non-blank tag and a non-blank value.
func (f ExtractedFact) Valid() bool {
	if strings.TrimSpace(f.Value) == "" {
		return false
	}
	for _, t := range f.Tags {
		if strings.TrimSpace(t) != "" {
			return true
		}
	}
	return false
}

// Fact is a stored fact. Facts are never mutated after creation.
type Fact struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Tags           []string  `json:"tags"`
	Value          string    `json:"value"`
	Severity       *int      `json:"severity,omitempty"`
	ExtractedAt    time.Time `json:"extracted_at"`
}

// NewFact stamps an extracted fact with its origin conversation and time.
// Tags are trimmed and blank tags dropped.
func NewFact(conversationID string, f ExtractedFact, at time.Time) Fact {
	tags := make([]string, 0, len(f.Tags))
	for _, t := range f.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return Fact{
		ConversationID: conversationID,
		Tags:           tags,
		Value:          strings.TrimSpace(f.Value),
		Severity:       f.Severity,
		ExtractedAt:    at,
	}
}

// HasTag reports whether the fact carries tag, ignoring case.
func (f Fact) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// FormatFacts renders facts as a bullet list used in prompts.
func FormatFacts(facts []Fact) string {
	if len(facts) == 0 {
		return "(brak)"
	}
	var sb strings.Builder
	for _, f := range facts {
		fmt.Fprintf(&sb, "- [%s] %s", strings.Join(f.Tags, ", "), f.Value)
		if f.Severity != nil {
			fmt.Fprintf(&sb, " (waga %d)", *f.Severity)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
