package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/interviewer/pkg/models"
)

func (r *SQLiteRepo) CreateOperator(ctx context.Context, o *models.Operator) (int64, error) {
	if o == nil {
		return 0, fmt.Errorf("operator is nil")
	}
	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO operators (name, email, password_hash, updated) VALUES (?, ?, ?, ?)`, o.Name, o.Email, o.PasswordHash, ts)
	if err != nil {
		return 0, err
	}
	o.Updated = ts
	return res.LastInsertId()
}

func (r *SQLiteRepo) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, name, email, password_hash, updated FROM operators WHERE email = ?`, email)
	var o models.Operator
	if err := row.Scan(&o.ID, &o.Name, &o.Email, &o.PasswordHash, &o.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}
