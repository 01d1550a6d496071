package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"runplane/internal/logger"
	"runplane/internal/registry"
	"runplane/internal/store"
	"runplane/internal/supervisor"
	"runplane/internal/transport"
	"runplane/internal/transport/transporttest"
)

// Mock history store
type mockHistory struct {
	mu sync.Mutex

	pingErr error

	getRunResp *registry.RunRecord
	getRunErr  error

	listRunsResp []registry.RunRecord
	listRunsErr  error

	// Spies (to verify arguments passed by handlers)
	capturedFilter store.RunFilter
	saved          []registry.RunRecord
}

func (m *mockHistory) SaveRun(ctx context.Context, rec registry.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, rec)
	return nil
}

func (m *mockHistory) GetRun(ctx context.Context, runID string) (*registry.RunRecord, error) {
	if m.getRunErr != nil {
		return nil, m.getRunErr
	}
	if m.getRunResp == nil || m.getRunResp.RunID != runID {
		return nil, store.ErrNotFound
	}
	return m.getRunResp, nil
}

func (m *mockHistory) ListRuns(ctx context.Context, f store.RunFilter) ([]registry.RunRecord, error) {
	m.capturedFilter = f
	return m.listRunsResp, m.listRunsErr
}

func (m *mockHistory) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockHistory) Close() error { return nil }

type testEnv struct {
	h   *Handlers
	sup *supervisor.Supervisor
	rt  *transporttest.Runtime
}

func newTestEnv(t *testing.T, history store.RunHistory) *testEnv {
	t.Helper()
	rt := transporttest.NewRuntime()
	sup := supervisor.New(registry.New(), transport.Runtimes{
		transport.ModeChild: rt,
		transport.ModePTY:   rt,
	}, supervisor.Config{Logger: logger.Discard()})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})

	return &testEnv{h: New(sup, history, logger.Discard()), sup: sup, rt: rt}
}

// spawn starts a run on the fake runtime and returns its handle.
func (e *testEnv) spawn(t *testing.T, in supervisor.SpawnInput) (*supervisor.ManagedRun, *transporttest.Handle) {
	t.Helper()
	if len(in.Argv) == 0 {
		in.Argv = []string{"sleep", "5"}
	}
	run, err := e.sup.Spawn(context.Background(), in)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	select {
	case h := <-e.rt.Started():
		return run, h
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handle")
		return nil, nil
	}
}

func waitSettled(t *testing.T, run *supervisor.ManagedRun) supervisor.RunExit {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	exit, err := run.Wait(ctx)
	if err != nil && !errors.Is(err, supervisor.ErrSpawn) {
		t.Fatalf("run did not settle: %v", err)
	}
	return exit
}
