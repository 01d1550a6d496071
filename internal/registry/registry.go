package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrRunExists is returned when adding a run id that is already known.
	ErrRunExists = errors.New("run already exists")

	// ErrNotFound is returned for unknown run ids.
	ErrNotFound = errors.New("run not found")

	// ErrAlreadyFinalized is returned when a run is finalized twice.
	ErrAlreadyFinalized = errors.New("run already finalized")
)

// DefaultMaxFinished is how many finished records are retained.
const DefaultMaxFinished = 2000

// Registry is the in-memory index of run records. Each run has a single
// writer, but different runs are written concurrently.
type Registry struct {
	mu       sync.RWMutex
	records  map[string]*RunRecord
	finished []string // finalization order, oldest first

	maxFinished int
	now         func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxFinished bounds how many finished records are kept.
func WithMaxFinished(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxFinished = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		records:     map[string]*RunRecord{},
		maxFinished: DefaultMaxFinished,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add inserts a new record in the starting state.
func (r *Registry) Add(record RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.RunID]; ok {
		return fmt.Errorf("%w: %s", ErrRunExists, record.RunID)
	}

	now := r.now()
	rec := record.clone()
	rec.State = RunStateStarting
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.records[rec.RunID] = &rec
	return nil
}

// Discard drops a record that never left the starting state. It reports
// whether a record was removed.
func (r *Registry) Discard(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[runID]
	if !ok || rec.State != RunStateStarting {
		return false
	}
	delete(r.records, runID)
	return true
}

// UpdateState moves a run forward and merges patch. Unknown runs and
// backward transitions are ignored.
func (r *Registry) UpdateState(runID string, state RunState, patch Patch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[runID]
	if !ok || rec.Terminal() || state.rank() < rec.State.rank() || state == RunStateExited {
		return
	}

	now := r.now()
	rec.State = state
	rec.UpdatedAt = now
	if patch.PID > 0 {
		rec.PID = patch.PID
	}
	if state == RunStateRunning && rec.StartedAt == nil {
		rec.StartedAt = &now
	}
	if patch.TerminationReason != "" && rec.TerminationReason == "" {
		rec.TerminationReason = patch.TerminationReason
	}
}

// TouchOutput stamps the last output time of a run.
func (r *Registry) TouchOutput(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[runID]
	if !ok || rec.Terminal() {
		return
	}
	now := r.now()
	rec.LastOutputAt = &now
	rec.UpdatedAt = now
}

// Finalize marks a run terminal and returns the final record.
func (r *Registry) Finalize(runID string, t Termination) (RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[runID]
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if rec.Terminal() {
		return rec.clone(), fmt.Errorf("%w: %s", ErrAlreadyFinalized, runID)
	}

	rec.State = RunStateExited
	rec.UpdatedAt = r.now()
	rec.TerminationReason = t.Reason
	rec.ExitSignal = t.ExitSignal
	rec.ExitCode = nil
	if t.ExitCode != nil {
		code := *t.ExitCode
		rec.ExitCode = &code
	}

	r.finished = append(r.finished, runID)
	r.prune()
	return rec.clone(), nil
}

// prune drops the oldest finished records beyond the retention limit.
// Caller must hold r.mu.
func (r *Registry) prune() {
	excess := len(r.finished) - r.maxFinished
	if excess <= 0 {
		return
	}
	for _, id := range r.finished[:excess] {
		delete(r.records, id)
	}
	r.finished = append([]string(nil), r.finished[excess:]...)
}

// Get returns a copy of the record for runID.
func (r *Registry) Get(runID string) (RunRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[runID]
	if !ok {
		return RunRecord{}, false
	}
	return rec.clone(), true
}

// List returns matching records ordered by creation time.
func (r *Registry) List(f Filter) []RunRecord {
	r.mu.RLock()
	out := make([]RunRecord, 0, len(r.records))
	for _, rec := range r.records {
		if f.match(rec) {
			out = append(out, rec.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
