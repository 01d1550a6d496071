// Package store contains the run history layer for runplane.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"runplane/internal/registry"
)

// ErrNotFound is returned when a run is not in the history.
var ErrNotFound = errors.New("run not found")

// DefaultListLimit caps ListRuns when the filter sets no limit.
const DefaultListLimit = 100

// RunColumns is the column list every history query selects, in ScanRun order.
const RunColumns = "run_id, session_id, backend_id, scope_key, state, pid, created_at, started_at, last_output_at, updated_at, termination_reason, exit_code, exit_signal"

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	ScopeKey  string
	SessionID string
	Reason    registry.TerminationReason
	Limit     int
	Offset    int
}

// Where renders the filter as a WHERE clause. placeholder returns the bind
// parameter syntax for the n-th argument (1-based).
func (f RunFilter) Where(placeholder func(n int) string) (string, []any) {
	var conds []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = %s", column, placeholder(len(args))))
	}
	if f.ScopeKey != "" {
		add("scope_key", f.ScopeKey)
	}
	if f.SessionID != "" {
		add("session_id", f.SessionID)
	}
	if f.Reason != "" {
		add("termination_reason", string(f.Reason))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// Page returns the effective limit and offset.
func (f RunFilter) Page() (int, int) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ScanRun reads one row selected with RunColumns.
func ScanRun(row RowScanner) (registry.RunRecord, error) {
	var (
		rec          registry.RunRecord
		state        string
		reason       string
		pid          sql.NullInt64
		startedAt    sql.NullTime
		lastOutputAt sql.NullTime
		exitCode     sql.NullInt64
	)

	err := row.Scan(
		&rec.RunID, &rec.SessionID, &rec.BackendID, &rec.ScopeKey,
		&state, &pid, &rec.CreatedAt, &startedAt, &lastOutputAt, &rec.UpdatedAt,
		&reason, &exitCode, &rec.ExitSignal,
	)
	if err != nil {
		return registry.RunRecord{}, err
	}

	rec.State = registry.RunState(state)
	rec.TerminationReason = registry.TerminationReason(reason)
	rec.PID = int(pid.Int64)
	rec.StartedAt = timePtr(startedAt)
	rec.LastOutputAt = timePtr(lastOutputAt)
	if exitCode.Valid {
		code := int(exitCode.Int64)
		rec.ExitCode = &code
	}
	return rec, nil
}

// RunArgs returns the record's values in RunColumns order.
func RunArgs(rec registry.RunRecord) []any {
	return []any{
		rec.RunID, rec.SessionID, rec.BackendID, rec.ScopeKey,
		string(rec.State), nullInt(rec.PID), rec.CreatedAt.UTC(), nullTime(rec.StartedAt), nullTime(rec.LastOutputAt), rec.UpdatedAt.UTC(),
		string(rec.TerminationReason), nullCode(rec.ExitCode), rec.ExitSignal,
	}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n > 0}
}

func nullCode(c *int) sql.NullInt64 {
	if c == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*c), Valid: true}
}
