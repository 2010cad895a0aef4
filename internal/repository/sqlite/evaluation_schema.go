package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/garnizeh/interviewer/pkg/models"
)

// UpsertEvaluationSchema inserts or updates a schema by name and returns its id.
func (r *SQLiteRepo) UpsertEvaluationSchema(ctx context.Context, name, description, schemaJSON string) (int64, error) {
	ts := now()
	_, err := r.conn.Exec(ctx, `INSERT INTO evaluation_schemas (name, description, schema_json, created, updated) VALUES (?, ?, ?, ?, ?) ON CONFLICT(name) DO UPDATE SET description=excluded.description, schema_json=excluded.schema_json, updated=excluded.updated`, name, description, schemaJSON, ts, ts)
	if err != nil {
		return 0, err
	}

	// LastInsertId is unreliable on the update branch of an upsert.
	var id int64
	if err := r.conn.QueryRow(ctx, `SELECT id FROM evaluation_schemas WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *SQLiteRepo) GetEvaluationSchema(ctx context.Context, name string) (*models.EvaluationSchema, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, name, description, schema_json, created, updated FROM evaluation_schemas WHERE name = ?`, name)
	var s models.EvaluationSchema
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.SchemaJSON, &s.Created, &s.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepo) ListEvaluationSchemas(ctx context.Context) ([]models.EvaluationSchema, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT id, name, description, schema_json, created, updated FROM evaluation_schemas ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EvaluationSchema
	for rows.Next() {
		var s models.EvaluationSchema
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.SchemaJSON, &s.Created, &s.Updated); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) DeleteEvaluationSchema(ctx context.Context, name string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM evaluation_schemas WHERE name = ?`, name)
	return err
}
