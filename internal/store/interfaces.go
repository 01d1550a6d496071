package store

import (
	"context"

	"runplane/internal/registry"
)

// RunHistory persists finalized run records beyond the in-memory registry.
type RunHistory interface {
	// SaveRun inserts the record or replaces the stored copy of the same run.
	SaveRun(ctx context.Context, rec registry.RunRecord) error

	// GetRun returns a stored run. Returns ErrNotFound if none exists.
	GetRun(ctx context.Context, runID string) (*registry.RunRecord, error)

	// ListRuns returns stored runs, newest first.
	ListRuns(ctx context.Context, f RunFilter) ([]registry.RunRecord, error)

	// Close releases the underlying connection pool.
	Close() error
}

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}
