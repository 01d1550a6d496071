package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"runplane/internal/registry"
	"runplane/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func finishedRecord(id, scope string, reason registry.TerminationReason, created time.Time) registry.RunRecord {
	started := created.Add(10 * time.Millisecond)
	return registry.RunRecord{
		RunID:             id,
		SessionID:         "session-1",
		BackendID:         "backend-1",
		ScopeKey:          scope,
		State:             registry.RunStateExited,
		PID:               1234,
		CreatedAt:         created,
		StartedAt:         &started,
		UpdatedAt:         started,
		TerminationReason: reason,
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := finishedRecord("run-1", "chat:1", registry.ReasonExit, created)
	code := 3
	rec.ExitCode = &code

	if err := s.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.ScopeKey != "chat:1" || got.SessionID != "session-1" || got.BackendID != "backend-1" {
		t.Errorf("identity fields not round-tripped: %+v", got)
	}
	if got.State != registry.RunStateExited || got.TerminationReason != registry.ReasonExit {
		t.Errorf("got %s/%s, want exited/exit", got.State, got.TerminationReason)
	}
	if got.ExitCode == nil || *got.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %v", got.ExitCode)
	}
	if got.PID != 1234 {
		t.Errorf("expected pid 1234, got %d", got.PID)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("expected CreatedAt %v, got %v", created, got.CreatedAt)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(*rec.StartedAt) {
		t.Errorf("expected StartedAt %v, got %v", rec.StartedAt, got.StartedAt)
	}
	if got.LastOutputAt != nil {
		t.Errorf("expected nil LastOutputAt, got %v", got.LastOutputAt)
	}
}

func TestSaveRun_ReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := finishedRecord("run-1", "", registry.ReasonExit, time.Now().UTC())
	if err := s.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	rec.TerminationReason = registry.ReasonSignal
	rec.ExitSignal = "SIGTERM"
	if err := s.SaveRun(ctx, rec); err != nil {
		t.Fatalf("second SaveRun failed: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.TerminationReason != registry.ReasonSignal || got.ExitSignal != "SIGTERM" {
		t.Errorf("expected updated signal record, got %s/%s", got.TerminationReason, got.ExitSignal)
	}

	all, err := s.ListRuns(ctx, store.RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected a single row, got %d", len(all))
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected store.ErrNotFound, got %v", err)
	}
}

func TestListRuns_FilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []registry.RunRecord{
		finishedRecord("a", "x", registry.ReasonExit, base),
		finishedRecord("b", "x", registry.ReasonManualCancel, base.Add(time.Second)),
		finishedRecord("c", "y", registry.ReasonExit, base.Add(2*time.Second)),
		finishedRecord("d", "x", registry.ReasonExit, base.Add(3*time.Second)),
	}
	for _, rec := range records {
		if err := s.SaveRun(ctx, rec); err != nil {
			t.Fatalf("SaveRun %s failed: %v", rec.RunID, err)
		}
	}

	runs, err := s.ListRuns(ctx, store.RunFilter{ScopeKey: "x"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if ids := runIDs(runs); ids != "d,b,a" {
		t.Errorf("expected d,b,a got %s", ids)
	}

	runs, err = s.ListRuns(ctx, store.RunFilter{ScopeKey: "x", Reason: registry.ReasonExit})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if ids := runIDs(runs); ids != "d,a" {
		t.Errorf("expected d,a got %s", ids)
	}

	runs, err = s.ListRuns(ctx, store.RunFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if ids := runIDs(runs); ids != "c,b" {
		t.Errorf("expected c,b got %s", ids)
	}
}

func runIDs(runs []registry.RunRecord) string {
	out := ""
	for i, r := range runs {
		if i > 0 {
			out += ","
		}
		out += r.RunID
	}
	return out
}
