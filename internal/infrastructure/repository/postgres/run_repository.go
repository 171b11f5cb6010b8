package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dkoren/research-assistant/internal/core/domain"
)

// RunRepository persists one audit row per completed pipeline run. The rows
// answer the operational questions the label alone cannot: how often runs
// escalate, how many attempts a typical question costs, where confidence
// collapses.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent api startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	scope TEXT NOT NULL,
	label TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	attempts INTEGER NOT NULL,
	escalated BOOLEAN NOT NULL,
	source_count INTEGER NOT NULL,
	support_ratio DOUBLE PRECISION NOT NULL,
	no_evidence BOOLEAN NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_created_at ON pipeline_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_label ON pipeline_runs(label);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RunRepository) RecordRun(ctx context.Context, record domain.RunRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO pipeline_runs (
	id, question, scope, label, confidence, attempts, escalated, source_count, support_ratio, no_evidence, duration_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		record.ID, record.Question, record.Scope, string(record.Label), record.Confidence,
		record.Attempts, record.Escalated, record.SourceCount, record.SupportRatio,
		record.NoEvidence, record.Duration.Milliseconds(), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, question, scope, label, confidence, attempts, escalated, source_count, support_ratio, no_evidence, duration_ms, created_at
FROM pipeline_runs
WHERE id = $1
`, id)

	record, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("run %s", id))
		}
		return nil, fmt.Errorf("scan pipeline run: %w", err)
	}
	return record, nil
}

func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, question, scope, label, confidence, attempts, escalated, source_count, support_ratio, no_evidence, duration_ms, created_at
FROM pipeline_runs
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pipeline runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RunRecord, 0, limit)
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline run: %w", err)
		}
		out = append(out, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline runs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.RunRecord, error) {
	var record domain.RunRecord
	var label string
	var durationMS int64

	err := row.Scan(
		&record.ID, &record.Question, &record.Scope, &label, &record.Confidence,
		&record.Attempts, &record.Escalated, &record.SourceCount, &record.SupportRatio,
		&record.NoEvidence, &durationMS, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Label = domain.AssessmentLabel(label)
	record.Duration = time.Duration(durationMS) * time.Millisecond
	return &record, nil
}
