package reconcile

import "errors"

var (
	ErrInterviewNotFound  = errors.New("interview not found")
	ErrNoCallID           = errors.New("no provider call id found; the interview may not have started yet")
	ErrEvaluationNotReady = errors.New("provider has not generated the evaluation yet")
	ErrProviderFetch      = errors.New("failed to fetch call details from provider")
	ErrInvalidEvaluation  = errors.New("evaluation must be a non-empty JSON object")
	ErrCallSuperseded     = errors.New("interview is linked to a different provider call")
)
