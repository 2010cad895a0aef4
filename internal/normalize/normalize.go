// Package normalize extracts a canonical Event from the provider's webhook
// payloads and call-details documents, whose fields move between a nested
// "message" wrapper and the top level depending on the payload version.
package normalize

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
)

var ErrMalformed = errors.New("malformed payload")

// Event type values sent by the provider.
const (
	TypeEndOfCallReport = "end-of-call-report"
	TypeCallEnded       = "call.ended"
	TypeStatusUpdate    = "status-update"
	TypeCallStarted     = "call.started"
)

const structuredOutputsSource = "structuredOutputs."

// metadataTokenKey is the call metadata field carrying the interview token.
const metadataTokenKey = "interviewId"

// Normalizer turns raw provider JSON into Events. It is safe for concurrent use.
type Normalizer struct {
	names  []string
	logger *slog.Logger
}

// New returns a Normalizer accepting structured outputs whose name is one of
// evaluationNames.
func New(evaluationNames []string, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Normalizer{names: slices.Clone(evaluationNames), logger: logger}
}

// EvaluationNames returns the accepted structured output names.
func (n *Normalizer) EvaluationNames() []string {
	return slices.Clone(n.names)
}

// KindOf classifies a provider event type.
func KindOf(eventType string) Kind {
	switch eventType {
	case TypeEndOfCallReport, TypeCallEnded:
		return KindCallEnd
	case TypeStatusUpdate, TypeCallStarted:
		return KindCallStart
	default:
		return KindUnrecognized
	}
}

// Normalize parses a webhook body. Only a body that is not a JSON object is an
// error; unknown event types come back with KindUnrecognized.
func (n *Normalizer) Normalize(body []byte) (*Event, error) {
	root := parseObject(body)
	if root == nil {
		return nil, ErrMalformed
	}

	wrapper := root.obj("message")
	call := wrapper.obj("call")
	if call == nil {
		call = root.obj("call")
	}

	ev := &Event{
		Type: firstString(wrapper.str("type"), root.str("type"), root.str("event")),
		CallID: firstString(
			wrapper.obj("call").str("id"), wrapper.str("callId"), wrapper.str("id"),
			root.obj("call").str("id"), root.str("callId"), root.str("id"),
		),
	}
	ev.Kind = KindOf(ev.Type)

	// the wrapper is what gets retained for forensic replay
	if wrapper != nil {
		ev.Raw = json.RawMessage(root["message"])
	} else {
		ev.Raw = json.RawMessage(body)
	}

	n.extract(ev, call, wrapper, root)
	return ev, nil
}

// FromCallDetails parses a call-details document returned by the provider API.
// The result is always a call-end event and carries no Raw payload.
func (n *Normalizer) FromCallDetails(body []byte) (*Event, error) {
	call := parseObject(body)
	if call == nil {
		return nil, ErrMalformed
	}

	ev := &Event{
		Type:   TypeEndOfCallReport,
		Kind:   KindCallEnd,
		CallID: firstString(call.str("id"), call.str("callId")),
	}
	n.extract(ev, call, nil, nil)
	return ev, nil
}

// extract fills the fields shared by webhooks and call details. Lookups go from
// the most specific container to the least.
func (n *Normalizer) extract(ev *Event, call, wrapper, root object) {
	scopes := []object{call, wrapper, root}

	for _, s := range scopes {
		if tok := s.obj("metadata").str(metadataTokenKey); tok != "" {
			ev.InterviewToken = tok
			break
		}
	}

	ev.Turns = transcriptTurns(call, wrapper, root)

	for _, s := range scopes {
		if summary := s.obj("analysis").str("summary"); summary != "" {
			ev.Summary = summary
			break
		}
	}

	ev.Evaluation, ev.EvaluationSource = n.evaluation(scopes)
	if ev.Evaluation != nil {
		if summary := parseObject(ev.Evaluation).str("summary"); summary != "" {
			ev.Summary = summary
		}
	}

	ev.DurationSeconds = duration(scopes)
}

func transcriptTurns(call, wrapper, root object) []Turn {
	candidates := [][]json.RawMessage{
		call.array("messages"),
		call.obj("artifact").array("messages"),
		wrapper.array("messages"),
		wrapper.obj("artifact").array("messages"),
		root.array("messages"),
		root.obj("artifact").array("messages"),
	}

	for _, msgs := range candidates {
		if len(msgs) == 0 {
			continue
		}
		turns := make([]Turn, 0, len(msgs))
		for _, raw := range msgs {
			m := parseObject(raw)
			if m == nil {
				continue
			}
			role := m.str("role")
			if role == "" {
				role = "unknown"
			}
			turns = append(turns, Turn{Speaker: role, Text: firstString(m.str("content"), m.str("message"))})
		}
		return turns
	}
	return nil
}

// evaluation returns the first allow-listed structured output with a non-null
// result, in document order, falling back to the legacy analysis fields.
func (n *Normalizer) evaluation(scopes []object) (json.RawMessage, string) {
	for _, s := range scopes {
		artifact := s.obj("artifact")
		if artifact == nil {
			continue
		}
		for _, e := range orderedEntries(artifact["structuredOutputs"]) {
			out := parseObject(e.Value)
			name := out.str("name")
			if !slices.Contains(n.names, name) {
				continue
			}
			if !present(out["result"]) {
				n.logger.Debug("structured output has no result yet", "name", name, "output_id", e.Key)
				continue
			}
			return out["result"], structuredOutputsSource + name
		}
	}

	for _, s := range scopes {
		analysis := s.obj("analysis")
		if analysis == nil {
			continue
		}
		for _, key := range []string{"structuredData", "evaluation"} {
			if present(analysis[key]) {
				return analysis[key], "analysis." + key
			}
		}
	}
	return nil, ""
}

func duration(scopes []object) *float64 {
	for _, s := range scopes {
		for _, key := range []string{"duration", "durationSeconds"} {
			if d, ok := s.num(key); ok && d > 0 {
				return &d
			}
		}
	}
	for _, s := range scopes {
		start, ok1 := s.time("startedAt")
		end, ok2 := s.time("endedAt")
		if ok1 && ok2 && !end.Before(start) {
			d := end.Sub(start).Seconds()
			return &d
		}
	}
	return nil
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
