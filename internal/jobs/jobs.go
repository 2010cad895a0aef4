// Package jobs runs background reconciliation tasks, one per provider call id,
// with a fixed wait between attempts and a bounded number of attempts.
package jobs

import (
	"context"
	"errors"

	"github.com/garnizeh/interviewer/pkg/models"
)

// Handler runs one attempt of a task. A nil error resolves the task. An error
// wrapping ErrAbandon ends it as abandoned; any other error counts as a failed
// attempt.
type Handler func(ctx context.Context, t *models.PollTask) error

// ErrStopped is returned by Submit once the runner has been stopped.
var ErrStopped = errors.New("runner stopped")

// ErrMaxAttempts is recorded on a task that ran out of attempts.
var ErrMaxAttempts = errors.New("max attempts reached")

// ErrAbandon is wrapped by handlers whose task no longer has anything to
// reconcile. The task stops without counting as resolved or exhausted.
var ErrAbandon = errors.New("poll task abandoned")
