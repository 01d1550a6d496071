package supervisor

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"runplane/internal/registry"
	"runplane/internal/transport"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpawnInput describes one run request.
type SpawnInput struct {
	// RunID is generated when empty.
	RunID     string
	SessionID string
	BackendID string

	// ScopeKey groups related runs for CancelScope and ReplaceExistingScope.
	ScopeKey string

	Mode transport.Mode
	Argv []string
	Dir  string
	Env  map[string]string

	// Timeout bounds the whole run. NoOutputTimeout bounds the gap between
	// output chunks and is re-armed on every chunk. Zero uses the supervisor
	// default; a negative value disables the timer.
	Timeout         time.Duration
	NoOutputTimeout time.Duration

	// Input is written to stdin after spawn. Stdin is then closed unless
	// KeepStdinOpen is set.
	Input         string
	KeepStdinOpen bool

	// ReplaceExistingScope cancels every active run sharing ScopeKey and
	// waits for them to settle before this run starts.
	ReplaceExistingScope bool

	OnStdout transport.OutputFunc
	OnStderr transport.OutputFunc
}

// RunExit is the single final report of a run.
type RunExit struct {
	RunID            string                     `json:"run_id"`
	Reason           registry.TerminationReason `json:"reason"`
	ExitCode         *int                       `json:"exit_code,omitempty"`
	ExitSignal       string                     `json:"exit_signal,omitempty"`
	Duration         time.Duration              `json:"duration"`
	Stdout           string                     `json:"stdout"`
	Stderr           string                     `json:"stderr"`
	TimedOut         bool                       `json:"timed_out"`
	NoOutputTimedOut bool                       `json:"no_output_timed_out"`
}

// ManagedRun is the live handle of a spawned run.
type ManagedRun struct {
	sup    *Supervisor
	id     string
	scope  string
	mode   transport.Mode
	input  SpawnInput
	handle transport.Handle

	pid       int
	startedAt time.Time

	span trace.Span

	// forced latches the first termination cause. A natural exit stores an
	// empty reason so later cancels and timer fires lose the race.
	forced atomic.Pointer[registry.TerminationReason]

	outMu    sync.Mutex
	stdout   strings.Builder
	stderr   strings.Builder
	overall  *time.Timer
	idle     *time.Timer
	idleWait time.Duration
	settled  bool

	done chan struct{}
	exit RunExit
	err  error
}

// RunID returns the run identifier.
func (r *ManagedRun) RunID() string { return r.id }

// PID returns the OS process id.
func (r *ManagedRun) PID() int { return r.pid }

// StartedAt returns the time the process was spawned.
func (r *ManagedRun) StartedAt() time.Time { return r.startedAt }

// Stdin returns the input stream of the process.
func (r *ManagedRun) Stdin() io.WriteCloser { return r.handle.Stdin() }

// Done is closed once the run has settled.
func (r *ManagedRun) Done() <-chan struct{} { return r.done }

// Wait blocks until the run settles and returns its exit report. Every
// caller observes the same result. A non-nil error means the transport
// failed after spawn; the report then carries ReasonSpawnError.
func (r *ManagedRun) Wait(ctx context.Context) (RunExit, error) {
	select {
	case <-r.done:
		return r.exit, r.err
	case <-ctx.Done():
		return RunExit{}, ctx.Err()
	}
}

// Cancel terminates the run with reason. Calls after the first effective
// one, or after settlement, are no-ops.
func (r *ManagedRun) Cancel(reason registry.TerminationReason) {
	if reason == "" {
		reason = registry.ReasonManualCancel
	}
	r.force(reason)
}

// force latches reason and kills the process. It reports whether this call
// won the latch.
func (r *ManagedRun) force(reason registry.TerminationReason) bool {
	if !r.forced.CompareAndSwap(nil, &reason) {
		return false
	}
	r.sup.registry.UpdateState(r.id, registry.RunStateExiting, registry.Patch{TerminationReason: reason})
	r.sup.logger.Info("terminating run", "run_id", r.id, "scope_key", r.scope, "reason", reason)

	if err := r.handle.Kill(os.Kill); err != nil {
		r.sup.logger.Warn("failed to kill run", "run_id", r.id, "error", err)
	}
	return true
}

// onOutput is installed as the transport callback for one stream.
func (r *ManagedRun) onOutput(buf *strings.Builder, forward transport.OutputFunc) transport.OutputFunc {
	return func(chunk []byte) {
		r.outMu.Lock()
		defer r.outMu.Unlock()

		if r.settled {
			return
		}
		buf.Write(chunk)
		if forward != nil {
			forward(chunk)
		}
		if r.idle != nil && r.forced.Load() == nil {
			r.idle.Reset(r.idleWait)
		}
		r.sup.registry.TouchOutput(r.id)
	}
}

// armTimers starts the overall and idle timers that are configured.
func (r *ManagedRun) armTimers(timeout, noOutput time.Duration) {
	r.outMu.Lock()
	defer r.outMu.Unlock()

	if timeout > 0 {
		r.overall = time.AfterFunc(timeout, func() {
			r.force(registry.ReasonOverallTimeout)
		})
	}
	if noOutput > 0 {
		r.idleWait = noOutput
		r.idle = time.AfterFunc(noOutput, func() {
			r.force(registry.ReasonNoOutputTimeout)
		})
	}
}

// supervise waits for the transport and settles the run. It runs exactly
// once per run.
func (r *ManagedRun) supervise() {
	res, waitErr := r.handle.Wait(context.Background())

	natural := registry.TerminationReason("")
	if r.forced.CompareAndSwap(nil, &natural) {
		r.sup.registry.UpdateState(r.id, registry.RunStateExiting, registry.Patch{})
	}

	r.settle(res, waitErr)
}

func (r *ManagedRun) settle(res transport.ExitResult, waitErr error) {
	r.outMu.Lock()
	r.settled = true
	if r.overall != nil {
		r.overall.Stop()
	}
	if r.idle != nil {
		r.idle.Stop()
	}
	stdout, stderr := r.stdout.String(), r.stderr.String()
	r.outMu.Unlock()

	if err := r.handle.Dispose(); err != nil {
		r.sup.logger.Warn("failed to dispose transport", "run_id", r.id, "error", err)
	}
	r.sup.removeActive(r.id)

	term := registry.Termination{
		ExitCode:   res.Code,
		ExitSignal: res.Signal,
	}
	switch forced := r.forced.Load(); {
	case waitErr != nil:
		term = registry.Termination{Reason: registry.ReasonSpawnError}
	case forced != nil && *forced != "":
		term.Reason = *forced
	case res.Signal != "":
		term.Reason = registry.ReasonSignal
	default:
		term.Reason = registry.ReasonExit
	}

	record, err := r.sup.registry.Finalize(r.id, term)
	if err != nil {
		r.sup.logger.Error("failed to finalize run", "run_id", r.id, "error", err)
	}

	duration := r.sup.now().Sub(r.startedAt)
	r.exit = RunExit{
		RunID:            r.id,
		Reason:           term.Reason,
		ExitCode:         term.ExitCode,
		ExitSignal:       term.ExitSignal,
		Duration:         duration,
		Stdout:           stdout,
		Stderr:           stderr,
		TimedOut:         term.Reason == registry.ReasonOverallTimeout,
		NoOutputTimedOut: term.Reason == registry.ReasonNoOutputTimeout,
	}
	if waitErr != nil {
		r.err = spawnError(waitErr)
		r.span.RecordError(waitErr)
		r.span.SetStatus(codes.Error, waitErr.Error())
	}

	r.span.SetAttributes(attribute.String("reason", string(term.Reason)))
	if term.ExitCode != nil {
		r.span.SetAttributes(attribute.Int("exit_code", *term.ExitCode))
	}
	r.span.End()

	r.sup.metrics.RunFinished(context.Background(), string(r.mode), string(term.Reason), duration, true)
	r.sup.logger.Info("run settled",
		"run_id", r.id,
		"scope_key", r.scope,
		"reason", term.Reason,
		"exit_signal", term.ExitSignal,
		"duration", duration,
	)

	if err == nil {
		r.sup.saveHistory(record)
	}
	close(r.done)
}
