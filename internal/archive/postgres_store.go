package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps reports in the analysis_reports table.
type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects with the pgx driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresStore(db), nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS analysis_reports (
    run_id TEXT PRIMARY KEY,
    archived_at TIMESTAMP WITH TIME ZONE NOT NULL,
    composite_score DOUBLE PRECISION,
    risk_level TEXT NOT NULL DEFAULT '',
    body JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analysis_reports_archived_at ON analysis_reports(archived_at);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Put(ctx context.Context, report Report) error {
	if err := report.validate(); err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	raw, err := encode(report)
	if err != nil {
		return err
	}
	var score sql.NullFloat64
	var level string
	if c, ok := report.State.CompositeScore(); ok {
		score = sql.NullFloat64{Float64: c, Valid: true}
		lvl, _ := report.State.RiskLevel()
		level = string(lvl)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO analysis_reports (run_id, archived_at, composite_score, risk_level, body)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (run_id)
DO UPDATE SET archived_at=EXCLUDED.archived_at, composite_score=EXCLUDED.composite_score,
    risk_level=EXCLUDED.risk_level, body=EXCLUDED.body
`, report.RunID, report.ArchivedAt, score, level, raw)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, runID string) (Report, error) {
	runID, err := cleanRunID(runID)
	if err != nil {
		return Report{}, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return Report{}, err
	}
	var raw []byte
	err = s.db.QueryRowContext(ctx, `SELECT body FROM analysis_reports WHERE run_id=$1`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, err
	}
	return decode(raw)
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id FROM analysis_reports ORDER BY run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
