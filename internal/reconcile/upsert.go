package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/garnizeh/interviewer/internal/normalize"
	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository"
)

// Applied describes the outcome of one upsert. ReplacedCallID is set by
// LinkCall when a different call id was stored before.
type Applied struct {
	Result         *models.InterviewResult
	Status         string
	Created        bool
	Changed        bool
	CallIDConflict bool
	ReplacedCallID string
}

// Upserter writes results and interview status changes, one transaction per
// interview.
type Upserter struct {
	store  repository.ResultStore
	logger *slog.Logger
	now    func() time.Time
}

func NewUpserter(store repository.ResultStore, logger *slog.Logger) *Upserter {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Upserter{store: store, logger: logger, now: time.Now}
}

// Apply merges ev into the interview's result and advances the interview
// status in the same transaction.
func (u *Upserter) Apply(ctx context.Context, interviewID int64, ev *normalize.Event) (*Applied, error) {
	return u.apply(ctx, interviewID, ev, false)
}

// ApplyCall is Apply for data read from the provider for ev.CallID. It fails
// with ErrCallSuperseded, writing nothing, when the result is bound to another
// call.
func (u *Upserter) ApplyCall(ctx context.Context, interviewID int64, ev *normalize.Event) (*Applied, error) {
	return u.apply(ctx, interviewID, ev, true)
}

func (u *Upserter) apply(ctx context.Context, interviewID int64, ev *normalize.Event, sameCall bool) (*Applied, error) {
	var out Applied
	err := u.store.WithTx(ctx, func(tx repository.ResultTx) error {
		iv, err := tx.GetInterview(ctx, interviewID)
		if err != nil {
			return fmt.Errorf("get interview: %w", err)
		}
		if iv == nil {
			return ErrInterviewNotFound
		}
		existing, err := tx.GetResultByInterview(ctx, interviewID)
		if err != nil {
			return fmt.Errorf("get result: %w", err)
		}
		if sameCall && existing != nil && existing.CallID != nil && *existing.CallID != ev.CallID {
			return fmt.Errorf("%w: stored %s, fetched %s", ErrCallSuperseded, *existing.CallID, ev.CallID)
		}

		now := u.now().UTC().UnixMilli()
		merged, changed, conflict := MergeResult(existing, interviewID, ev, now)
		if conflict {
			u.logger.WarnContext(ctx, "ignoring conflicting call id",
				"stored_call_id", *merged.CallID, "incoming_call_id", ev.CallID)
		}

		if err := u.write(ctx, tx, existing, merged, changed, now); err != nil {
			return err
		}

		status := NextStatus(iv.Status, ev.Kind, merged.HasEvaluation())
		if status != iv.Status || (changed && merged.HasEvaluation()) {
			if err := tx.UpdateInterviewStatus(ctx, interviewID, status, now); err != nil {
				return err
			}
		}

		out = Applied{Result: merged, Status: status, Created: existing == nil, Changed: changed, CallIDConflict: conflict}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Complete stores an operator supplied evaluation and marks the interview
// completed. Unlike Apply it replaces an existing evaluation.
func (u *Upserter) Complete(ctx context.Context, interviewID int64, evaluation json.RawMessage) (*Applied, error) {
	var out Applied
	err := u.store.WithTx(ctx, func(tx repository.ResultTx) error {
		iv, err := tx.GetInterview(ctx, interviewID)
		if err != nil {
			return fmt.Errorf("get interview: %w", err)
		}
		if iv == nil {
			return ErrInterviewNotFound
		}
		existing, err := tx.GetResultByInterview(ctx, interviewID)
		if err != nil {
			return fmt.Errorf("get result: %w", err)
		}

		now := u.now().UTC().UnixMilli()
		merged := &models.InterviewResult{InterviewID: interviewID}
		if existing != nil {
			cp := *existing
			merged = &cp
		}
		merged.Evaluation = evaluation
		var doc struct {
			Summary string `json:"summary"`
		}
		if json.Unmarshal(evaluation, &doc) == nil && doc.Summary != "" {
			merged.Summary = doc.Summary
		}
		if merged.Completed == nil {
			merged.Completed = &now
		}

		if err := u.write(ctx, tx, existing, merged, true, now); err != nil {
			return err
		}
		if err := tx.UpdateInterviewStatus(ctx, interviewID, models.StatusCompleted, now); err != nil {
			return err
		}
		out = Applied{Result: merged, Status: models.StatusCompleted, Created: existing == nil, Changed: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LinkCall binds callID to the interview's result, replacing any stored id.
func (u *Upserter) LinkCall(ctx context.Context, interviewID int64, callID string) (*Applied, error) {
	var out Applied
	err := u.store.WithTx(ctx, func(tx repository.ResultTx) error {
		iv, err := tx.GetInterview(ctx, interviewID)
		if err != nil {
			return fmt.Errorf("get interview: %w", err)
		}
		if iv == nil {
			return ErrInterviewNotFound
		}
		existing, err := tx.GetResultByInterview(ctx, interviewID)
		if err != nil {
			return fmt.Errorf("get result: %w", err)
		}

		merged := &models.InterviewResult{InterviewID: interviewID}
		var replaced string
		if existing != nil {
			cp := *existing
			merged = &cp
			if merged.CallID != nil && *merged.CallID != callID {
				replaced = *merged.CallID
				u.logger.InfoContext(ctx, "replacing call id",
					"interview_id", interviewID, "old_call_id", replaced, "call_id", callID)
			}
		}
		id := callID
		merged.CallID = &id

		if err := u.write(ctx, tx, existing, merged, true, u.now().UTC().UnixMilli()); err != nil {
			return err
		}
		out = Applied{Result: merged, Status: iv.Status, Created: existing == nil, Changed: true, ReplacedCallID: replaced}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *Upserter) write(ctx context.Context, tx repository.ResultTx, existing, merged *models.InterviewResult, changed bool, now int64) error {
	if existing == nil {
		merged.Created, merged.Updated = now, now
		if _, err := tx.InsertResult(ctx, merged); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
		return nil
	}
	if !changed {
		return nil
	}
	merged.Updated = now
	if err := tx.UpdateResult(ctx, merged); err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	return nil
}
