// Package protocol defines the WebSocket envelopes exchanged with clients
// and the closed set of error codes reported to them.
package protocol

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/tidwall/gjson"
)

// Message types from client to server
const (
	TypeSurveyStart          = "survey_start"
	TypeSurveyMessage        = "survey_message"
	TypeSurveyComplete       = "survey_complete"
	TypeInterventionStart    = "intervention_start"
	TypeInterventionMessage  = "intervention_message"
	TypeInterventionComplete = "intervention_complete"
	TypeSupportStart         = "support_start"
	TypeSupportMessage       = "support_message"
	TypeSupportComplete      = "support_complete"
	TypeGetFacts             = "get_facts"
)

// Message types from server to client. support_message is used both ways.
const (
	TypeSurveyQuestion              = "survey_question"
	TypeSurveyCompleted             = "survey_completed"
	TypeInterventionScenarioMatched = "intervention_scenario_matched"
	TypeInterventionQuestion        = "intervention_question"
	TypeInterventionCompleted       = "intervention_completed"
	TypeSupportCompleted            = "support_completed"
	TypeFactsList                   = "facts_list"
	TypeFactsExtracted              = "facts_extracted"
	TypeError                       = "error"
)

// FactsExtractionPending is reported while facts are distilled in the background.
const FactsExtractionPending = "pending"

// Inbound is a client envelope.
type Inbound struct {
	Type      string         `json:"type"`
	Payload   InboundPayload `json:"payload"`
	RequestID *string        `json:"request_id,omitempty"`
}

// InboundPayload is the union of all inbound payload fields.
type InboundPayload struct {
	Text                string `json:"text,omitempty"`
	ScenarioDescription string `json:"scenario_description,omitempty"`
	Limit               int    `json:"limit,omitempty"`
}

// Parse decodes a client envelope. On failure the returned envelope still
// carries the request id when one could be read from the raw bytes, and the
// error is a PARSE_ERROR.
func Parse(raw []byte) (Inbound, error) {
	var in Inbound
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		in.RequestID = SalvageRequestID(raw)
		return in, NewError(CodeParseError, "")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&in); err != nil {
		in = Inbound{RequestID: SalvageRequestID(raw)}
		return in, &Error{Code: CodeParseError, Message: defaultMessages[CodeParseError], Err: err}
	}
	if in.Type == "" {
		return in, &Error{Code: CodeParseError, Message: "Brak typu wiadomości"}
	}
	return in, nil
}

var requestIDPattern = []byte(`"request_id"`)

// SalvageRequestID pulls a string request_id out of raw, which may be
// malformed or truncated JSON.
func SalvageRequestID(raw []byte) *string {
	if r := gjson.GetBytes(raw, "request_id"); r.Type == gjson.String {
		id := r.String()
		return &id
	}
	// gjson stops at the first syntax error; retry from the key itself.
	if i := bytes.Index(raw, requestIDPattern); i >= 0 {
		frag := append([]byte("{"), raw[i:]...)
		if r := gjson.GetBytes(frag, "request_id"); r.Type == gjson.String {
			id := r.String()
			return &id
		}
	}
	return nil
}

// Outbound is a server envelope. RequestID serializes as null when unset.
type Outbound struct {
	Type      string  `json:"type"`
	Payload   any     `json:"payload"`
	RequestID *string `json:"request_id"`
}

// NewOutbound builds an envelope echoing requestID.
func NewOutbound(typ string, payload any, requestID *string) Outbound {
	return Outbound{Type: typ, Payload: payload, RequestID: requestID}
}

// QuestionPayload carries survey and intervention questions.
type QuestionPayload struct {
	Question string `json:"question"`
	Step     int    `json:"step"`
}

// SurveyCompletedPayload reports a finished survey.
type SurveyCompletedPayload struct {
	ProfileID  string `json:"profile_id"`
	FactsSaved int    `json:"facts_saved"`
}

// ScenarioMatchedPayload reports the scenario chosen for an intervention.
type ScenarioMatchedPayload struct {
	ScenarioKey  string  `json:"scenario_key"`
	ScenarioName string  `json:"scenario_name"`
	Confidence   float64 `json:"confidence"`
}

// CompletedPayload reports a finished intervention or support conversation.
type CompletedPayload struct {
	ConversationID  string `json:"conversation_id"`
	FactsExtraction string `json:"facts_extraction"`
}

// SupportMessagePayload carries an assistant reply in a support conversation.
type SupportMessagePayload struct {
	Text       string `json:"text"`
	SuggestEnd bool   `json:"suggest_end,omitempty"`
}

// FactDTO is the client view of a stored fact.
type FactDTO struct {
	ID             string    `json:"id"`
	Tags           []string  `json:"tags"`
	Value          string    `json:"value"`
	Severity       *int      `json:"severity,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	ExtractedAt    time.Time `json:"extracted_at"`
}

// NewFactDTOs converts stored facts for the wire. The result is never nil.
func NewFactDTOs(facts []models.Fact) []FactDTO {
	out := make([]FactDTO, 0, len(facts))
	for _, f := range facts {
		out = append(out, FactDTO{
			ID:             f.ID,
			Tags:           f.Tags,
			Value:          f.Value,
			Severity:       f.Severity,
			ConversationID: f.ConversationID,
			ExtractedAt:    f.ExtractedAt,
		})
	}
	return out
}

// FactsListPayload answers get_facts.
type FactsListPayload struct {
	Facts      []FactDTO `json:"facts"`
	TotalCount int       `json:"total_count"`
}

// FactsExtractedPayload is pushed after background distillation.
type FactsExtractedPayload struct {
	ConversationID string    `json:"conversation_id"`
	FactsCount     int       `json:"facts_count"`
	Facts          []FactDTO `json:"facts"`
}

// ErrorPayload is the payload of an error envelope.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
}
