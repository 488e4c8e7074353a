package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection holding the run ledger.
type Store struct {
	conn *pgx.Conn
}

// RunRecord is one finished pipeline run.
type RunRecord struct {
	ID        string
	SourceID  string
	Input     string
	Output    string
	Transform string
	Policy    string
	Workers   int
	Width     int
	Height    int
	FrameRate float64
	Total     int
	Completed int
	Failed    int
	Pending   int
	Written   int
	Status    string
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
	// Failures maps frame index to the transform error recorded for it.
	Failures map[int]string
}

// FrameFailure is a failed frame of a run.
type FrameFailure struct {
	Index  int
	Reason string
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the ledger tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			last_run_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS pipeline_runs (
			id TEXT PRIMARY KEY,
			source_id TEXT REFERENCES sources(id),
			output TEXT NOT NULL,
			transform TEXT NOT NULL,
			policy TEXT NOT NULL,
			workers INT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			frame_rate DOUBLE PRECISION NOT NULL,
			total INT NOT NULL,
			completed INT NOT NULL,
			failed INT NOT NULL,
			pending INT NOT NULL,
			written INT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS run_failures (
			run_id TEXT REFERENCES pipeline_runs(id) ON DELETE CASCADE,
			frame_index INT NOT NULL,
			reason TEXT NOT NULL,
			PRIMARY KEY (run_id, frame_index)
		);
		CREATE INDEX IF NOT EXISTS pipeline_runs_started_at_idx ON pipeline_runs (started_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// RecordRun stores a run, its source, and its failed frames in one transaction.
func (s *Store) RecordRun(ctx context.Context, r RunRecord) error {
	if r.ID == "" {
		return errors.New("run has no ID")
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO sources (id, path, last_run_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET last_run_at = NOW(), path = EXCLUDED.path
	`, r.SourceID, r.Input); err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO pipeline_runs (id, source_id, output, transform, policy, workers, width, height,
			frame_rate, total, completed, failed, pending, written, status, error, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, r.ID, r.SourceID, r.Output, r.Transform, r.Policy, r.Workers, r.Width, r.Height,
		r.FrameRate, r.Total, r.Completed, r.Failed, r.Pending, r.Written, r.Status, r.Error, r.StartedAt, r.EndedAt); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(r.Failures) > 0 {
		indices := make([]int, 0, len(r.Failures))
		for i := range r.Failures {
			indices = append(indices, i)
		}
		sort.Ints(indices)

		rows := make([][]any, 0, len(indices))
		for _, i := range indices {
			rows = append(rows, []any{r.ID, i, r.Failures[i]})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"run_failures"},
			[]string{"run_id", "frame_index", "reason"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy failures: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT r.id, r.source_id, s.path, r.output, r.transform, r.policy, r.workers, r.width, r.height,
			r.frame_rate, r.total, r.completed, r.failed, r.pending, r.written, r.status, r.error,
			r.started_at, r.ended_at
		FROM pipeline_runs r
		JOIN sources s ON s.id = r.source_id
		ORDER BY r.started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.SourceID, &r.Input, &r.Output, &r.Transform, &r.Policy, &r.Workers,
			&r.Width, &r.Height, &r.FrameRate, &r.Total, &r.Completed, &r.Failed, &r.Pending, &r.Written,
			&r.Status, &r.Error, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRunFailures returns the failed frames of a run in index order.
func (s *Store) GetRunFailures(ctx context.Context, runID string) ([]FrameFailure, error) {
	rows, err := s.conn.Query(ctx, "SELECT frame_index, reason FROM run_failures WHERE run_id = $1 ORDER BY frame_index", runID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (FrameFailure, error) {
		var f FrameFailure
		err := row.Scan(&f.Index, &f.Reason)
		return f, err
	})
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS run_failures CASCADE;
		DROP TABLE IF EXISTS pipeline_runs CASCADE;
		DROP TABLE IF EXISTS sources CASCADE;
	`)
	return err
}
