package normalize

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind classifies a provider event by its effect on the interview lifecycle.
type Kind string

const (
	KindCallStart    Kind = "call-start"
	KindCallEnd      Kind = "call-end"
	KindUnrecognized Kind = "unrecognized"
)

// Turn is one speaker-tagged message of the call transcript.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Event is the canonical shape extracted from a provider payload. Absent
// values are left empty or nil.
type Event struct {
	Type           string `json:"type"`
	Kind           Kind   `json:"kind"`
	CallID         string `json:"call_id,omitempty"`
	InterviewToken string `json:"interview_token,omitempty"`
	Turns          []Turn `json:"turns,omitempty"`
	Summary        string `json:"summary,omitempty"`
	// Evaluation is the opaque evaluation document, nil when not yet available.
	Evaluation json.RawMessage `json:"evaluation,omitempty"`
	// EvaluationSource names where Evaluation was found, for logs.
	EvaluationSource string          `json:"evaluation_source,omitempty"`
	DurationSeconds  *float64        `json:"duration_seconds,omitempty"`
	Raw              json.RawMessage `json:"-"`
}

// Transcript renders the turns as "ROLE: text" blocks separated by a blank line.
// It returns "" when there are no turns.
func (e *Event) Transcript() string {
	if e == nil || len(e.Turns) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(e.Turns))
	for _, t := range e.Turns {
		blocks = append(blocks, strings.ToUpper(t.Speaker)+": "+t.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// HasEvaluation reports whether an evaluation document was extracted.
func (e *Event) HasEvaluation() bool {
	return e != nil && present(e.Evaluation)
}

// EvaluationName returns the structured output name the evaluation came from,
// or "" for legacy locations.
func (e *Event) EvaluationName() string {
	if e == nil {
		return ""
	}
	name, ok := strings.CutPrefix(e.EvaluationSource, structuredOutputsSource)
	if !ok {
		return ""
	}
	return name
}

// present reports whether raw holds a value other than null, an empty object
// or an empty array.
func present(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return false
	}
	switch string(b) {
	case "null", "{}", "[]", `""`:
		return false
	}
	if b[0] == '{' || b[0] == '[' {
		compact := new(bytes.Buffer)
		if err := json.Compact(compact, b); err == nil {
			s := compact.String()
			return s != "{}" && s != "[]"
		}
	}
	return true
}
