package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/garnizeh/interviewer/pkg/models"
)

const interviewColumns = `id, token, candidate_name, candidate_email, role, status, created, updated`

func scanInterview(row interface{ Scan(...any) error }) (*models.Interview, error) {
	var iv models.Interview
	if err := row.Scan(&iv.ID, &iv.Token, &iv.CandidateName, &iv.CandidateEmail, &iv.Role, &iv.Status, &iv.Created, &iv.Updated); err != nil {
		return nil, err
	}
	return &iv, nil
}

func getInterview(ctx context.Context, q querier, id int64) (*models.Interview, error) {
	iv, err := scanInterview(q.QueryRowContext(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return iv, nil
}

func (r *SQLiteRepo) CreateInterview(ctx context.Context, iv *models.Interview) (int64, error) {
	if iv == nil {
		return 0, fmt.Errorf("interview is nil")
	}
	if iv.Status == "" {
		iv.Status = models.StatusPending
	}

	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO interviews (token, candidate_name, candidate_email, role, status, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		iv.Token, iv.CandidateName, iv.CandidateEmail, iv.Role, iv.Status, ts, ts)
	if err != nil {
		return 0, err
	}
	iv.Created, iv.Updated = ts, ts

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetInterview(ctx context.Context, id int64) (*models.Interview, error) {
	return getInterview(ctx, r.conn.GetConn(), id)
}

func (r *SQLiteRepo) GetInterviewByToken(ctx context.Context, token string) (*models.Interview, error) {
	iv, err := scanInterview(r.conn.QueryRow(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE token = ?`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return iv, nil
}

func (r *SQLiteRepo) MostRecentInProgress(ctx context.Context) (*models.Interview, int, error) {
	var count int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM interviews WHERE status = ?`, models.StatusInProgress).Scan(&count); err != nil {
		return nil, 0, err
	}
	if count == 0 {
		return nil, 0, nil
	}

	iv, err := scanInterview(r.conn.QueryRow(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE status = ? ORDER BY updated DESC, id DESC LIMIT 1`, models.StatusInProgress))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	return iv, count, nil
}

func (r *SQLiteRepo) ListInterviews(ctx context.Context, status, role string) ([]models.Interview, error) {
	var (
		where []string
		args  []any
	)
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}
	if role != "" {
		where = append(where, "role = ?")
		args = append(args, role)
	}

	q := `SELECT ` + interviewColumns + ` FROM interviews`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created DESC, id DESC`

	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *iv)
	}
	return out, rows.Err()
}

// DeleteInterview removes an interview and its result.
func (r *SQLiteRepo) DeleteInterview(ctx context.Context, id int64) error {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM interview_results WHERE interview_id = ?`, id); err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM interviews WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete interview: %w", err)
	}

	return tx.Commit()
}
