package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies one of the mutually exclusive conversation flows.
type Kind string

const (
	KindSurvey       Kind = "survey"
	KindIntervention Kind = "intervention"
	KindSupport      Kind = "support"
)

// Valid reports whether k is a known conversation kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSurvey, KindIntervention, KindSupport:
		return true
	}
	return false
}

// Role is the author of a message in a conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation history.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Conversation is the durable record of one started conversation.
type Conversation struct {
	ID             string     `json:"id"`
	Kind           Kind       `json:"kind"`
	ScenarioKey    string     `json:"scenario_key,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	RawTranscript  string     `json:"raw_transcript,omitempty"`
	FactsExtracted bool       `json:"facts_extracted"`
}

// SupportLog summarizes a finished support conversation.
type SupportLog struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	StressLevel    *int      `json:"stress_level,omitempty"`
	Needs          []string  `json:"needs,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Transcript renders user and assistant messages as "Role: text" blocks
// separated by blank lines. System messages are omitted.
func Transcript(history []Message) string {
	var sb strings.Builder
	for _, m := range history {
		var who string
		switch m.Role {
		case RoleUser:
			who = "Opiekun"
		case RoleAssistant:
			who = "Stefan"
		default:
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n\n", who, m.Content)
	}
	return strings.TrimSpace(sb.String())
}
