package models

import "encoding/json"

// Domain models matching the database schema in db/migrations.
// Timestamps are unix milliseconds.

// Interview statuses. completed is terminal.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Poll task states persisted in poll_tasks.
const (
	PollStatusPolling   = "polling"
	PollStatusResolved  = "resolved"
	PollStatusExhausted = "exhausted"
	// PollStatusAbandoned marks a task whose call no longer belongs to a live
	// interview: the interview was deleted or linked to another call.
	PollStatusAbandoned = "abandoned"
)

// Webhook event outcomes persisted in webhook_events.
const (
	OutcomeProcessed    = "processed"
	OutcomeUnmatched    = "unmatched"
	OutcomeUnrecognized = "unrecognized"
)

type Interview struct {
	ID             int64  `json:"id" db:"id"`
	Token          string `json:"token" db:"token"`
	CandidateName  string `json:"candidate_name" db:"candidate_name" validate:"required"`
	CandidateEmail string `json:"candidate_email" db:"candidate_email" validate:"required,email"`
	Role           string `json:"role" db:"role"`
	Status         string `json:"status" db:"status"`
	Created        int64  `json:"created" db:"created"`
	Updated        int64  `json:"updated" db:"updated"`
}

// InterviewResult is the reconciled outcome of an interview call. Evaluation is an
// opaque provider-defined document; nil means no evaluation yet.
type InterviewResult struct {
	ID              int64           `json:"id" db:"id"`
	InterviewID     int64           `json:"interview_id" db:"interview_id"`
	CallID          *string         `json:"call_id,omitempty" db:"call_id"`
	DurationSeconds float64         `json:"duration_seconds" db:"duration_seconds"`
	Transcript      string          `json:"transcript" db:"transcript"`
	Summary         string          `json:"summary" db:"summary"`
	Evaluation      json.RawMessage `json:"evaluation,omitempty" db:"evaluation"`
	RawPayload      json.RawMessage `json:"raw_payload,omitempty" db:"raw_payload"`
	Completed       *int64          `json:"completed,omitempty" db:"completed"`
	Created         int64           `json:"created" db:"created"`
	Updated         int64           `json:"updated" db:"updated"`
}

// HasEvaluation reports whether the result carries an evaluation document.
func (r *InterviewResult) HasEvaluation() bool {
	return r != nil && len(r.Evaluation) > 0 && string(r.Evaluation) != "null"
}

type Operator struct {
	ID           int64  `json:"id" db:"id"`
	Name         string `json:"name" db:"name" validate:"required"`
	Email        string `json:"email" db:"email" validate:"required,email"`
	PasswordHash string `json:"-" db:"password_hash"`
	Updated      int64  `json:"updated" db:"updated"`
}

// PollTask tracks the reconciliation poll for one provider call id.
type PollTask struct {
	ID          int64  `json:"id" db:"id"`
	CallID      string `json:"call_id" db:"call_id"`
	InterviewID int64  `json:"interview_id" db:"interview_id"`
	Status      string `json:"status" db:"status"`
	Attempts    int    `json:"attempts" db:"attempts"`
	MaxAttempts int    `json:"max_attempts" db:"max_attempts"`
	NextTryAt   *int64 `json:"next_try_at,omitempty" db:"next_try_at"`
	LastError   string `json:"last_error,omitempty" db:"last_error"`
	Created     int64  `json:"created" db:"created"`
	Updated     int64  `json:"updated" db:"updated"`
}

// UnresolvedReconciliation is the dead-letter record of an exhausted poll task.
type UnresolvedReconciliation struct {
	ID          int64  `json:"id" db:"id"`
	PollTaskID  int64  `json:"poll_task_id" db:"poll_task_id"`
	CallID      string `json:"call_id" db:"call_id"`
	InterviewID int64  `json:"interview_id" db:"interview_id"`
	Attempts    int    `json:"attempts" db:"attempts"`
	LastError   string `json:"last_error,omitempty" db:"last_error"`
	FailedAt    int64  `json:"failed_at" db:"failed_at"`
	ResolvedAt  *int64 `json:"resolved_at,omitempty" db:"resolved_at"`
}

type WebhookEvent struct {
	ID          int64           `json:"id" db:"id"`
	Digest      string          `json:"digest" db:"digest"`
	EventType   string          `json:"event_type" db:"event_type"`
	CallID      *string         `json:"call_id,omitempty" db:"call_id"`
	InterviewID *int64          `json:"interview_id,omitempty" db:"interview_id"`
	Strategy    *string         `json:"strategy,omitempty" db:"strategy"`
	Outcome     string          `json:"outcome" db:"outcome"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	Received    int64           `json:"received" db:"received"`
}

type EvaluationSchema struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	SchemaJSON  string `json:"schema_json" db:"schema_json"`
	Created     int64  `json:"created" db:"created"`
	Updated     int64  `json:"updated" db:"updated"`
}
