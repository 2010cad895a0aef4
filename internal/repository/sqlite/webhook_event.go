package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/interviewer/pkg/models"
)

func (r *SQLiteRepo) RecordWebhookEvent(ctx context.Context, e *models.WebhookEvent) error {
	if e == nil {
		return fmt.Errorf("webhook event is nil")
	}
	if e.Received == 0 {
		e.Received = now()
	}
	payload := string(e.Payload)
	if payload == "" {
		payload = "{}"
	}

	res, err := r.conn.Exec(ctx, `INSERT OR IGNORE INTO webhook_events (digest, event_type, call_id, interview_id, strategy, outcome, payload, received) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Digest, e.EventType, nullString(e.CallID), nullInt64(e.InterviewID), nullString(e.Strategy), e.Outcome, payload, e.Received)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		r.logger.Debug("webhook event already recorded", "digest", e.Digest)
		return nil
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

func (r *SQLiteRepo) WebhookEventSeen(ctx context.Context, digest string) (bool, error) {
	var count int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM webhook_events WHERE digest = ?`, digest).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListWebhookEvents returns the newest events first. An empty outcome lists all.
func (r *SQLiteRepo) ListWebhookEvents(ctx context.Context, outcome string, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, digest, event_type, call_id, interview_id, strategy, outcome, payload, received FROM webhook_events`
	var args []any
	if outcome != "" {
		q += ` WHERE outcome = ?`
		args = append(args, outcome)
	}
	q += ` ORDER BY received DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WebhookEvent
	for rows.Next() {
		var (
			e           models.WebhookEvent
			callID      sql.NullString
			interviewID sql.NullInt64
			strategy    sql.NullString
			payload     sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Digest, &e.EventType, &callID, &interviewID, &strategy, &e.Outcome, &payload, &e.Received); err != nil {
			return nil, err
		}
		e.CallID = stringPtr(callID)
		e.InterviewID = int64Ptr(interviewID)
		e.Strategy = stringPtr(strategy)
		e.Payload = rawJSON(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}
