package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository"
)

const resultColumns = `id, interview_id, call_id, duration_seconds, transcript, summary, evaluation, raw_payload, completed, created, updated`

func scanResult(row interface{ Scan(...any) error }) (*models.InterviewResult, error) {
	var (
		res        models.InterviewResult
		callID     sql.NullString
		transcript sql.NullString
		summary    sql.NullString
		evaluation sql.NullString
		raw        sql.NullString
		completed  sql.NullInt64
	)
	if err := row.Scan(&res.ID, &res.InterviewID, &callID, &res.DurationSeconds, &transcript, &summary, &evaluation, &raw, &completed, &res.Created, &res.Updated); err != nil {
		return nil, err
	}
	res.CallID = stringPtr(callID)
	res.Transcript = transcript.String
	res.Summary = summary.String
	res.Evaluation = rawJSON(evaluation)
	res.RawPayload = rawJSON(raw)
	res.Completed = int64Ptr(completed)
	return &res, nil
}

func getResultByInterview(ctx context.Context, q querier, interviewID int64) (*models.InterviewResult, error) {
	res, err := scanResult(q.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM interview_results WHERE interview_id = ?`, interviewID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

func (r *SQLiteRepo) GetResultByInterview(ctx context.Context, interviewID int64) (*models.InterviewResult, error) {
	return getResultByInterview(ctx, r.conn.GetConn(), interviewID)
}

// WithTx runs fn inside a single transaction. fn must only use the tx it is
// handed: the pool holds one connection.
func (r *SQLiteRepo) WithTx(ctx context.Context, fn func(tx repository.ResultTx) error) error {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// sqlTx implements repository.ResultTx on top of *sql.Tx.
type sqlTx struct {
	tx *sql.Tx
}

var _ repository.ResultTx = (*sqlTx)(nil)

func (t *sqlTx) GetInterview(ctx context.Context, id int64) (*models.Interview, error) {
	return getInterview(ctx, t.tx, id)
}

func (t *sqlTx) GetResultByInterview(ctx context.Context, interviewID int64) (*models.InterviewResult, error) {
	return getResultByInterview(ctx, t.tx, interviewID)
}

func (t *sqlTx) InsertResult(ctx context.Context, res *models.InterviewResult) (int64, error) {
	if res == nil {
		return 0, fmt.Errorf("result is nil")
	}

	ts := now()
	if res.Created == 0 {
		res.Created = ts
	}
	if res.Updated == 0 {
		res.Updated = ts
	}

	out, err := t.tx.ExecContext(ctx, `INSERT INTO interview_results (interview_id, call_id, duration_seconds, transcript, summary, evaluation, raw_payload, completed, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.InterviewID, nullString(res.CallID), res.DurationSeconds, res.Transcript, res.Summary,
		nullJSON(res.Evaluation), nullJSON(res.RawPayload), nullInt64(res.Completed), res.Created, res.Updated)
	if err != nil {
		return 0, fmt.Errorf("insert result: %w", err)
	}

	id, err := out.LastInsertId()
	if err != nil {
		return 0, err
	}
	res.ID = id
	return id, nil
}

func (t *sqlTx) UpdateResult(ctx context.Context, res *models.InterviewResult) error {
	if res == nil {
		return fmt.Errorf("result is nil")
	}
	if res.Updated == 0 {
		res.Updated = now()
	}

	_, err := t.tx.ExecContext(ctx, `UPDATE interview_results SET call_id = ?, duration_seconds = ?, transcript = ?, summary = ?, evaluation = ?, raw_payload = ?, completed = ?, updated = ? WHERE id = ?`,
		nullString(res.CallID), res.DurationSeconds, res.Transcript, res.Summary,
		nullJSON(res.Evaluation), nullJSON(res.RawPayload), nullInt64(res.Completed), res.Updated, res.ID)
	if err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateInterviewStatus(ctx context.Context, id int64, status string, updated int64) error {
	if updated == 0 {
		updated = now()
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE interviews SET status = ?, updated = ? WHERE id = ?`, status, updated, id); err != nil {
		return fmt.Errorf("update interview status: %w", err)
	}
	return nil
}
