package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"runplane/internal/registry"
	"runplane/internal/store"
)

// SaveRun upserts the run keyed by run_id.
func (s *Store) SaveRun(ctx context.Context, rec registry.RunRecord) error {
	query := `
		INSERT INTO runs (` + store.RunColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id) DO UPDATE SET
			state = EXCLUDED.state,
			pid = EXCLUDED.pid,
			started_at = EXCLUDED.started_at,
			last_output_at = EXCLUDED.last_output_at,
			updated_at = EXCLUDED.updated_at,
			termination_reason = EXCLUDED.termination_reason,
			exit_code = EXCLUDED.exit_code,
			exit_signal = EXCLUDED.exit_signal
	`

	if _, err := s.db.ExecContext(ctx, query, store.RunArgs(rec)...); err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}
	return nil
}

// GetRun returns the stored run with runID.
func (s *Store) GetRun(ctx context.Context, runID string) (*registry.RunRecord, error) {
	query := "SELECT " + store.RunColumns + " FROM runs WHERE run_id = $1"

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
	where, args := f.Where(func(n int) string { return "$" + strconv.Itoa(n) })
	limit, offset := f.Page()
	args = append(args, limit, offset)

	query := fmt.Sprintf(
		"SELECT %s FROM runs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		store.RunColumns, where, len(args)-1, len(args),
	)

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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}
