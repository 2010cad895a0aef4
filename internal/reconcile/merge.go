package reconcile

import (
	"bytes"
	"encoding/json"

	"github.com/garnizeh/interviewer/internal/normalize"
	"github.com/garnizeh/interviewer/pkg/models"
)

// MergeResult folds ev into existing and returns the merged copy. Present
// incoming values overwrite stored ones; absent values never erase them. The
// call id is first-writer-wins: conflict reports an incoming id that differs
// from the stored one. changed is false when the merge is a no-op.
func MergeResult(existing *models.InterviewResult, interviewID int64, ev *normalize.Event, now int64) (merged *models.InterviewResult, changed, conflict bool) {
	if existing == nil {
		merged = &models.InterviewResult{InterviewID: interviewID}
		changed = true
	} else {
		cp := *existing
		merged = &cp
	}

	if ev.CallID != "" {
		switch {
		case merged.CallID == nil:
			id := ev.CallID
			merged.CallID = &id
			changed = true
		case *merged.CallID != ev.CallID:
			conflict = true
		}
	}

	if t := ev.Transcript(); t != "" && t != merged.Transcript {
		merged.Transcript = t
		changed = true
	}
	if ev.Summary != "" && ev.Summary != merged.Summary {
		merged.Summary = ev.Summary
		changed = true
	}
	if ev.HasEvaluation() && !jsonEqual(ev.Evaluation, merged.Evaluation) {
		merged.Evaluation = ev.Evaluation
		changed = true
	}
	if ev.DurationSeconds != nil && *ev.DurationSeconds > 0 && *ev.DurationSeconds != merged.DurationSeconds {
		merged.DurationSeconds = *ev.DurationSeconds
		changed = true
	}
	if len(ev.Raw) > 0 && !jsonEqual(ev.Raw, merged.RawPayload) {
		merged.RawPayload = ev.Raw
		changed = true
	}

	if merged.Completed == nil && (ev.Kind == normalize.KindCallEnd || merged.HasEvaluation()) {
		ts := now
		merged.Completed = &ts
		changed = true
	}

	return merged, changed, conflict
}

// NextStatus returns the interview status after applying an event of the given
// kind to an interview whose result has (or lacks) an evaluation. completed is
// terminal.
func NextStatus(current string, kind normalize.Kind, hasEvaluation bool) string {
	switch {
	case current == models.StatusCompleted:
		return models.StatusCompleted
	case hasEvaluation:
		return models.StatusCompleted
	case kind == normalize.KindCallStart && current == models.StatusPending:
		return models.StatusInProgress
	default:
		return current
	}
}

// jsonEqual compares two documents ignoring insignificant whitespace.
func jsonEqual(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
