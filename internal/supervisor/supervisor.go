// Package supervisor turns spawn requests into supervised runs, each ending
// in exactly one RunExit.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"runplane/internal/observability"
	"runplane/internal/registry"
	"runplane/internal/transport"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrSpawn wraps every failure to construct a run's process.
var ErrSpawn = errors.New("spawn failed")

func spawnError(err error) error {
	return fmt.Errorf("%w: %w", ErrSpawn, err)
}

// History receives every finalized record.
type History interface {
	SaveRun(ctx context.Context, rec registry.RunRecord) error
}

// Config holds supervisor settings and collaborators.
type Config struct {
	Logger  *slog.Logger
	Metrics *observability.RunMetrics
	History History

	// DefaultTimeout and DefaultNoOutputTimeout apply when a SpawnInput
	// leaves its timeout at zero.
	DefaultTimeout         time.Duration
	DefaultNoOutputTimeout time.Duration

	// HistoryTimeout bounds each history write (default: 5s).
	HistoryTimeout time.Duration

	// Now overrides the clock used for run durations.
	Now func() time.Time
}

// Supervisor owns the active runs and drives them to settlement.
type Supervisor struct {
	registry *registry.Registry
	runtimes transport.Runtimes
	logger   *slog.Logger
	metrics  *observability.RunMetrics
	history  History
	tracer   trace.Tracer
	config   Config

	mu     sync.RWMutex
	active map[string]*ManagedRun

	scopeMu    sync.Mutex
	scopeLocks map[string]*scopeLock

	historyWG sync.WaitGroup
}

// New creates a supervisor over reg using runtimes to start processes.
func New(reg *registry.Registry, runtimes transport.Runtimes, config Config) *Supervisor {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.HistoryTimeout <= 0 {
		config.HistoryTimeout = 5 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Supervisor{
		registry: reg,
		runtimes: runtimes,
		logger:   config.Logger,
		metrics:  config.Metrics,
		history:  config.History,
		tracer:   otel.Tracer("runplane-supervisor"),
		config:   config,
		active:   make(map[string]*ManagedRun),

		scopeLocks: make(map[string]*scopeLock),
	}
}

func (s *Supervisor) now() time.Time { return s.config.Now() }

// Spawn starts a supervised run. Failures to start the process are returned
// wrapped in ErrSpawn and leave a spawn-error record behind; every later
// outcome is reported through the ManagedRun's RunExit.
func (s *Supervisor) Spawn(ctx context.Context, in SpawnInput) (*ManagedRun, error) {
	if len(in.Argv) == 0 {
		return nil, spawnError(transport.ErrEmptyArgv)
	}
	rt, err := s.runtimes.Lookup(in.Mode)
	if err != nil {
		return nil, spawnError(err)
	}
	if in.Mode == "" {
		in.Mode = transport.ModeChild
	}
	if in.RunID == "" {
		in.RunID = uuid.New().String()
	}

	// Replacing spawns in one scope are serialized from the scope sweep
	// until the new run is in the active set.
	replace := in.ReplaceExistingScope && in.ScopeKey != ""
	if replace {
		unlock, err := s.lockScope(ctx, in.ScopeKey)
		if err != nil {
			return nil, fmt.Errorf("waiting for scope %q: %w", in.ScopeKey, err)
		}
		defer unlock()
	}

	err = s.registry.Add(registry.RunRecord{
		RunID:     in.RunID,
		SessionID: in.SessionID,
		BackendID: in.BackendID,
		ScopeKey:  in.ScopeKey,
	})
	if err != nil {
		return nil, fmt.Errorf("register run %s: %w", in.RunID, err)
	}

	if replace {
		if err := s.replaceScope(ctx, in.ScopeKey); err != nil {
			s.registry.Discard(in.RunID)
			return nil, err
		}
	}

	run := &ManagedRun{
		sup:   s,
		id:    in.RunID,
		scope: in.ScopeKey,
		mode:  in.Mode,
		input: in,
		done:  make(chan struct{}),
	}

	spanCtx, span := s.tracer.Start(ctx, "supervise_run",
		trace.WithAttributes(
			attribute.String("run_id", in.RunID),
			attribute.String("mode", string(in.Mode)),
			attribute.String("scope_key", in.ScopeKey),
		),
	)
	run.span = span

	handle, err := rt.Start(spanCtx, transport.StartOptions{
		Argv:     in.Argv,
		Dir:      in.Dir,
		Env:      in.Env,
		OnStdout: run.onOutput(&run.stdout, in.OnStdout),
		OnStderr: run.onOutput(&run.stderr, in.OnStderr),
	})
	if err != nil {
		s.failSpawn(run, err)
		return nil, spawnError(err)
	}

	run.handle = handle
	run.pid = handle.PID()
	run.startedAt = s.now()

	s.mu.Lock()
	s.active[run.id] = run
	s.mu.Unlock()

	s.registry.UpdateState(run.id, registry.RunStateRunning, registry.Patch{PID: run.pid})
	s.metrics.RunStarted(ctx, string(in.Mode))
	s.logger.Info("run started",
		"run_id", run.id,
		"scope_key", run.scope,
		"mode", in.Mode,
		"pid", run.pid,
	)

	run.armTimers(s.timeout(in.Timeout, s.config.DefaultTimeout), s.timeout(in.NoOutputTimeout, s.config.DefaultNoOutputTimeout))
	s.feedInput(run)

	go run.supervise()

	return run, nil
}

// failSpawn finalizes a run whose process never started.
func (s *Supervisor) failSpawn(run *ManagedRun, cause error) {
	run.span.RecordError(cause)
	run.span.End()

	record, err := s.registry.Finalize(run.id, registry.Termination{Reason: registry.ReasonSpawnError})
	if err != nil {
		s.logger.Error("failed to finalize run", "run_id", run.id, "error", err)
		return
	}
	s.metrics.RunFinished(context.Background(), string(run.mode), string(registry.ReasonSpawnError), 0, false)
	s.logger.Error("run failed to spawn",
		"run_id", run.id,
		"scope_key", run.scope,
		"reason", registry.ReasonSpawnError,
		"error", cause,
	)
	s.saveHistory(record)
}

func (s *Supervisor) timeout(requested, fallback time.Duration) time.Duration {
	switch {
	case requested < 0:
		return 0
	case requested > 0:
		return requested
	default:
		return fallback
	}
}

// feedInput writes the initial payload and closes stdin when requested.
// Writes happen off the caller's goroutine since a child that never reads
// would block them.
func (s *Supervisor) feedInput(run *ManagedRun) {
	in := run.input
	if in.Input == "" && in.KeepStdinOpen {
		return
	}
	stdin := run.handle.Stdin()
	if stdin == nil {
		return
	}
	go func() {
		if in.Input != "" {
			if _, err := stdin.Write([]byte(in.Input)); err != nil {
				s.logger.Debug("failed to write run input", "run_id", run.id, "error", err)
				return
			}
		}
		if !in.KeepStdinOpen {
			_ = stdin.Close()
		}
	}()
}

// replaceScope cancels the active runs of scopeKey and waits for them to settle.
func (s *Supervisor) replaceScope(ctx context.Context, scopeKey string) error {
	runs := s.snapshot(func(r *ManagedRun) bool { return r.scope == scopeKey })
	for _, r := range runs {
		r.Cancel(registry.ReasonManualCancel)
	}
	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for scope %q to settle: %w", scopeKey, ctx.Err())
		}
	}
	return nil
}

// Cancel terminates an active run. Unknown or settled run ids are ignored.
func (s *Supervisor) Cancel(runID string, reason registry.TerminationReason) {
	s.mu.RLock()
	run, ok := s.active[runID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	run.Cancel(reason)
}

// CancelScope cancels every active run sharing scopeKey and returns how many
// were signalled.
func (s *Supervisor) CancelScope(scopeKey string, reason registry.TerminationReason) int {
	if scopeKey == "" {
		return 0
	}
	runs := s.snapshot(func(r *ManagedRun) bool { return r.scope == scopeKey })
	for _, r := range runs {
		r.Cancel(reason)
	}
	return len(runs)
}

// Run returns the live handle of an active run.
func (s *Supervisor) Run(runID string) (*ManagedRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.active[runID]
	return run, ok
}

// Record returns a copy of the registry record for runID.
func (s *Supervisor) Record(runID string) (registry.RunRecord, bool) {
	return s.registry.Get(runID)
}

// Records lists registry records matching f.
func (s *Supervisor) Records(f registry.Filter) []registry.RunRecord {
	return s.registry.List(f)
}

// ReconcileOrphans is reserved for adopting processes left behind by a
// previous supervisor. It currently does nothing.
func (s *Supervisor) ReconcileOrphans(ctx context.Context) error {
	return nil
}

// Shutdown cancels every active run and waits for them and any pending
// history writes to finish.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	runs := s.snapshot(func(*ManagedRun) bool { return true })
	s.logger.Info("shutting down supervisor", "active_runs", len(runs))

	for _, r := range runs {
		r.Cancel(registry.ReasonManualCancel)
	}
	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	flushed := make(chan struct{})
	go func() {
		s.historyWG.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) snapshot(match func(*ManagedRun) bool) []*ManagedRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*ManagedRun
	for _, r := range s.active {
		if match(r) {
			runs = append(runs, r)
		}
	}
	return runs
}

func (s *Supervisor) removeActive(runID string) {
	s.mu.Lock()
	delete(s.active, runID)
	s.mu.Unlock()
}

func (s *Supervisor) saveHistory(rec registry.RunRecord) {
	if s.history == nil {
		return
	}
	s.historyWG.Add(1)
	go func() {
		defer s.historyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.config.HistoryTimeout)
		defer cancel()
		if err := s.history.SaveRun(ctx, rec); err != nil {
			s.logger.Warn("failed to save run history", "run_id", rec.RunID, "error", err)
		}
	}()
}
