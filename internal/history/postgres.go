package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS generation_runs (
	id               UUID PRIMARY KEY,
	session_id       TEXT NOT NULL,
	tenant_id        BIGINT NOT NULL,
	operated_by_uid  BIGINT NOT NULL,
	starting_uid     BIGINT NOT NULL,
	skip_validation  BOOLEAN NOT NULL,
	master_file      TEXT NOT NULL,
	employee_file    TEXT NOT NULL,
	success          BOOLEAN NOT NULL,
	message          TEXT,
	total_employees  INTEGER NOT NULL DEFAULT 0,
	processed        INTEGER NOT NULL DEFAULT 0,
	error_count      INTEGER NOT NULL DEFAULT 0,
	filename         TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS generation_runs_created_at_idx ON generation_runs (created_at DESC);
`

// PostgresRecorder stores runs in the generation_runs table.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder wraps an open pool.
func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

// EnsureSchema creates the table and index if missing.
func (p *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create generation_runs: %w", err)
	}
	return nil
}

func (p *PostgresRecorder) Record(ctx context.Context, run Run) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO generation_runs (
			id, session_id, tenant_id, operated_by_uid, starting_uid, skip_validation,
			master_file, employee_file, success, message,
			total_employees, processed, error_count, filename, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		run.ID, run.SessionID, run.TenantID, run.OperatedByUID, run.StartingUID, run.SkipValidation,
		run.MasterFile, run.EmployeeFile, run.Success, toPgText(run.Message),
		run.TotalEmployees, run.Processed, run.ErrorCount, toPgText(run.Filename), run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert generation run: %w", err)
	}
	return nil
}

func (p *PostgresRecorder) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id::text, session_id, tenant_id, operated_by_uid, starting_uid, skip_validation,
			master_file, employee_file, success, message,
			total_employees, processed, error_count, filename, created_at
		FROM generation_runs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query generation runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			message, filename pgtype.Text
		)
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.TenantID, &r.OperatedByUID, &r.StartingUID, &r.SkipValidation,
			&r.MasterFile, &r.EmployeeFile, &r.Success, &message,
			&r.TotalEmployees, &r.Processed, &r.ErrorCount, &filename, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan generation run: %w", err)
		}
		r.Message = message.String
		r.Filename = filename.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// toPgText maps "" to NULL.
func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
