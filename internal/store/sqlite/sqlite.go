// Package sqlite implements the run history on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"runplane/internal/registry"
	"runplane/internal/store"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and ensures the schema exists.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		backend_id TEXT NOT NULL DEFAULT '',
		scope_key TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		pid INTEGER,
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		last_output_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL,
		termination_reason TEXT NOT NULL DEFAULT '',
		exit_code INTEGER,
		exit_signal TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_scope_key ON runs(scope_key, created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_session_id ON runs(session_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun upserts the run keyed by run_id.
func (s *Store) SaveRun(ctx context.Context, rec registry.RunRecord) error {
	query := `
		INSERT INTO runs (` + store.RunColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			state = excluded.state,
			pid = excluded.pid,
			started_at = excluded.started_at,
			last_output_at = excluded.last_output_at,
			updated_at = excluded.updated_at,
			termination_reason = excluded.termination_reason,
			exit_code = excluded.exit_code,
			exit_signal = excluded.exit_signal
	`

	if _, err := s.db.ExecContext(ctx, query, store.RunArgs(rec)...); err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}
	return nil
}

// GetRun returns the stored run with runID.
func (s *Store) GetRun(ctx context.Context, runID string) (*registry.RunRecord, error) {
	query := "SELECT " + store.RunColumns + " FROM runs WHERE run_id = ?"

	rec, err := store.ScanRun(s.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns returns stored runs matching f, newest first.
func (s *Store) ListRuns(ctx context.Context, f store.RunFilter) ([]registry.RunRecord, error) {
	where, args := f.Where(func(int) string { return "?" })
	limit, offset := f.Page()
	args = append(args, limit, offset)

	query := "SELECT " + store.RunColumns + " FROM runs " + where +
		" ORDER BY created_at DESC, run_id DESC LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []registry.RunRecord
	for rows.Next() {
		rec, err := store.ScanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}
