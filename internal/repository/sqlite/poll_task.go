package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository"
)

const pollTaskColumns = `id, call_id, interview_id, status, attempts, max_attempts, next_try_at, last_error, created, updated`

func scanPollTask(row interface{ Scan(...any) error }) (*models.PollTask, error) {
	var (
		t         models.PollTask
		nextTry   sql.NullInt64
		lastError sql.NullString
	)
	if err := row.Scan(&t.ID, &t.CallID, &t.InterviewID, &t.Status, &t.Attempts, &t.MaxAttempts, &nextTry, &lastError, &t.Created, &t.Updated); err != nil {
		return nil, err
	}
	t.NextTryAt = int64Ptr(nextTry)
	t.LastError = lastError.String
	return &t, nil
}

// CreatePollTask inserts a new polling task for a call id. A call id can only
// have one task row.
func (r *SQLiteRepo) CreatePollTask(ctx context.Context, t *models.PollTask) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("poll task is nil")
	}
	if t.Status == "" {
		t.Status = models.PollStatusPolling
	}

	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO poll_tasks (call_id, interview_id, status, attempts, max_attempts, next_try_at, last_error, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.CallID, t.InterviewID, t.Status, t.Attempts, t.MaxAttempts, nullInt64(t.NextTryAt), t.LastError, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("create poll task: %w", err)
	}
	t.Created, t.Updated = ts, ts

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

func (r *SQLiteRepo) GetPollTaskByCallID(ctx context.Context, callID string) (*models.PollTask, error) {
	t, err := scanPollTask(r.conn.QueryRow(ctx, `SELECT `+pollTaskColumns+` FROM poll_tasks WHERE call_id = ?`, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get poll task: %w", err)
	}
	return t, nil
}

// UpdatePollTask updates status, attempts, next_try_at and last_error of a
// task that is still polling.
func (r *SQLiteRepo) UpdatePollTask(ctx context.Context, t *models.PollTask) error {
	if t == nil {
		return fmt.Errorf("poll task is nil")
	}
	ts := now()
	res, err := r.conn.Exec(ctx, `UPDATE poll_tasks SET status = ?, attempts = ?, max_attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ? AND status = ?`,
		t.Status, t.Attempts, t.MaxAttempts, nullInt64(t.NextTryAt), t.LastError, ts, t.ID, models.PollStatusPolling)
	if err != nil {
		return fmt.Errorf("update poll task: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	t.Updated = ts
	return nil
}

// requireRow maps an update that matched no polling row to
// repository.ErrPollTaskFinished.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrPollTaskFinished
	}
	return nil
}

func (r *SQLiteRepo) ListPollTasks(ctx context.Context, status string) ([]models.PollTask, error) {
	q := `SELECT ` + pollTaskColumns + ` FROM poll_tasks`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created ASC, id ASC`

	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PollTask
	for rows.Next() {
		t, err := scanPollTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// MoveToUnresolved marks a polling task exhausted and records it in
// unresolved_reconciliations. The task row is kept so the call id stays
// deduplicated.
func (r *SQLiteRepo) MoveToUnresolved(ctx context.Context, t *models.PollTask) error {
	if t == nil {
		return fmt.Errorf("poll task is nil")
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ts := now()
	res, err := tx.ExecContext(ctx, `UPDATE poll_tasks SET status = ?, attempts = ?, next_try_at = NULL, last_error = ?, updated = ? WHERE id = ? AND status = ?`,
		models.PollStatusExhausted, t.Attempts, t.LastError, ts, t.ID, models.PollStatusPolling)
	if err != nil {
		return fmt.Errorf("exhaust poll task: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO unresolved_reconciliations (poll_task_id, call_id, interview_id, attempts, last_error, failed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.CallID, t.InterviewID, t.Attempts, t.LastError, ts); err != nil {
		return fmt.Errorf("insert unresolved: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	t.Status = models.PollStatusExhausted
	t.NextTryAt = nil
	t.Updated = ts
	return nil
}

// MarkReconciled resolves the poll task and any open unresolved entry for callID.
// It is a no-op when nothing is tracked for the call.
func (r *SQLiteRepo) MarkReconciled(ctx context.Context, callID string) error {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ts := now()
	if _, err := tx.ExecContext(ctx, `UPDATE poll_tasks SET status = ?, next_try_at = NULL, updated = ? WHERE call_id = ?`, models.PollStatusResolved, ts, callID); err != nil {
		return fmt.Errorf("resolve poll task: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE unresolved_reconciliations SET resolved_at = ? WHERE call_id = ? AND resolved_at IS NULL`, ts, callID); err != nil {
		return fmt.Errorf("resolve unresolved: %w", err)
	}

	return tx.Commit()
}

// AbandonPollTask marks a polling task for callID abandoned and closes open
// unresolved entries for it.
func (r *SQLiteRepo) AbandonPollTask(ctx context.Context, callID, reason string) error {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ts := now()
	if _, err := tx.ExecContext(ctx, `UPDATE poll_tasks SET status = ?, next_try_at = NULL, last_error = ?, updated = ? WHERE call_id = ? AND status = ?`,
		models.PollStatusAbandoned, reason, ts, callID, models.PollStatusPolling); err != nil {
		return fmt.Errorf("abandon poll task: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE unresolved_reconciliations SET resolved_at = ? WHERE call_id = ? AND resolved_at IS NULL`, ts, callID); err != nil {
		return fmt.Errorf("close unresolved: %w", err)
	}

	return tx.Commit()
}

func (r *SQLiteRepo) ListUnresolved(ctx context.Context, includeResolved bool) ([]models.UnresolvedReconciliation, error) {
	q := `SELECT id, poll_task_id, call_id, interview_id, attempts, last_error, failed_at, resolved_at FROM unresolved_reconciliations`
	if !includeResolved {
		q += ` WHERE resolved_at IS NULL`
	}
	q += ` ORDER BY failed_at ASC, id ASC`

	rows, err := r.conn.QueryRows(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UnresolvedReconciliation
	for rows.Next() {
		var (
			u          models.UnresolvedReconciliation
			lastError  sql.NullString
			resolvedAt sql.NullInt64
		)
		if err := rows.Scan(&u.ID, &u.PollTaskID, &u.CallID, &u.InterviewID, &u.Attempts, &lastError, &u.FailedAt, &resolvedAt); err != nil {
			return nil, err
		}
		u.LastError = lastError.String
		u.ResolvedAt = int64Ptr(resolvedAt)
		out = append(out, u)
	}
	return out, rows.Err()
}
