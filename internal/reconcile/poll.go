package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/garnizeh/interviewer/internal/jobs"
	"github.com/garnizeh/interviewer/pkg/models"
)

// poll is the jobs.Handler for one reconciliation attempt. It returns nil once
// the interview's result holds an evaluation, including one stored by another
// path since the task started. The task is abandoned when the interview is
// gone or now linked to a different call.
func (s *Service) poll(ctx context.Context, task *models.PollTask) error {
	iv, err := s.interviews.GetInterview(ctx, task.InterviewID)
	if err != nil {
		return fmt.Errorf("get interview: %w", err)
	}
	if iv == nil {
		return fmt.Errorf("%w: %w", jobs.ErrAbandon, ErrInterviewNotFound)
	}
	res, err := s.results.GetResultByInterview(ctx, task.InterviewID)
	if err != nil {
		return fmt.Errorf("get result: %w", err)
	}
	if res != nil && res.CallID != nil && *res.CallID != task.CallID {
		return fmt.Errorf("%w: %w: now %s", jobs.ErrAbandon, ErrCallSuperseded, *res.CallID)
	}
	if res.HasEvaluation() {
		s.logger.InfoContext(ctx, "evaluation already stored")
		return nil
	}

	ev, err := s.fetchEvent(ctx, task.CallID)
	if err != nil {
		return err
	}
	if !ev.HasEvaluation() {
		return ErrEvaluationNotReady
	}

	if _, err := s.upserter.ApplyCall(ctx, task.InterviewID, ev); err != nil {
		if errors.Is(err, ErrInterviewNotFound) || errors.Is(err, ErrCallSuperseded) {
			return fmt.Errorf("%w: %w", jobs.ErrAbandon, err)
		}
		return fmt.Errorf("upsert result: %w", err)
	}
	s.validator.Check(ctx, ev.EvaluationName(), ev.Evaluation)
	s.logger.InfoContext(ctx, "evaluation reconciled from provider", "evaluation_source", ev.EvaluationSource)
	return nil
}
