package repository

import (
	"context"
	"errors"

	"github.com/garnizeh/interviewer/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
// Lookups return (nil, nil) when no row matches.

type InterviewRepo interface {
	CreateInterview(ctx context.Context, iv *models.Interview) (int64, error)
	GetInterview(ctx context.Context, id int64) (*models.Interview, error)
	GetInterviewByToken(ctx context.Context, token string) (*models.Interview, error)
	// MostRecentInProgress returns the in_progress interview with the newest
	// updated timestamp, and how many interviews are in_progress in total.
	MostRecentInProgress(ctx context.Context) (*models.Interview, int, error)
	ListInterviews(ctx context.Context, status, role string) ([]models.Interview, error)
	DeleteInterview(ctx context.Context, id int64) error
}

type ResultRepo interface {
	GetResultByInterview(ctx context.Context, interviewID int64) (*models.InterviewResult, error)
}

// ResultTx is the unit of work for one interview and its result.
type ResultTx interface {
	GetInterview(ctx context.Context, id int64) (*models.Interview, error)
	GetResultByInterview(ctx context.Context, interviewID int64) (*models.InterviewResult, error)
	InsertResult(ctx context.Context, r *models.InterviewResult) (int64, error)
	UpdateResult(ctx context.Context, r *models.InterviewResult) error
	UpdateInterviewStatus(ctx context.Context, id int64, status string, updated int64) error
}

// ResultStore runs fn atomically: either every write in fn is committed or none is.
type ResultStore interface {
	WithTx(ctx context.Context, fn func(tx ResultTx) error) error
}

type OperatorRepo interface {
	CreateOperator(ctx context.Context, o *models.Operator) (int64, error)
	GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)
}

// ErrPollTaskFinished is returned when a poll task write finds the stored
// task no longer polling, e.g. resolved by a manual fetch in the meantime.
var ErrPollTaskFinished = errors.New("poll task is no longer polling")

type PollTaskRepo interface {
	CreatePollTask(ctx context.Context, t *models.PollTask) (int64, error)
	GetPollTaskByCallID(ctx context.Context, callID string) (*models.PollTask, error)
	// UpdatePollTask writes t only while the stored task is polling, else it
	// returns ErrPollTaskFinished.
	UpdatePollTask(ctx context.Context, t *models.PollTask) error
	ListPollTasks(ctx context.Context, status string) ([]models.PollTask, error)
	// MoveToUnresolved marks the task exhausted and records the dead-letter
	// entry. Like UpdatePollTask it only applies to a polling task.
	MoveToUnresolved(ctx context.Context, t *models.PollTask) error
	// MarkReconciled resolves the task and any unresolved entry for callID.
	MarkReconciled(ctx context.Context, callID string) error
	// AbandonPollTask stops tracking callID: a polling task becomes abandoned
	// with reason as its last error, and open unresolved entries are closed.
	AbandonPollTask(ctx context.Context, callID, reason string) error
	ListUnresolved(ctx context.Context, includeResolved bool) ([]models.UnresolvedReconciliation, error)
}

type WebhookEventRepo interface {
	// RecordWebhookEvent stores e unless an event with the same digest exists.
	RecordWebhookEvent(ctx context.Context, e *models.WebhookEvent) error
	WebhookEventSeen(ctx context.Context, digest string) (bool, error)
	ListWebhookEvents(ctx context.Context, outcome string, limit int) ([]models.WebhookEvent, error)
}

type EvaluationSchemaRepo interface {
	UpsertEvaluationSchema(ctx context.Context, name, description, schemaJSON string) (int64, error)
	GetEvaluationSchema(ctx context.Context, name string) (*models.EvaluationSchema, error)
	ListEvaluationSchemas(ctx context.Context) ([]models.EvaluationSchema, error)
	DeleteEvaluationSchema(ctx context.Context, name string) error
}
