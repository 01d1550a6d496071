// Package registry keeps the in-memory status of every known run.
package registry

import "time"

// RunState is the lifecycle state of a run.
type RunState string

const (
	RunStateStarting RunState = "starting"
	RunStateRunning  RunState = "running"
	RunStateExiting  RunState = "exiting"
	RunStateExited   RunState = "exited"
)

// rank orders states so transitions only move forward.
func (s RunState) rank() int {
	switch s {
	case RunStateStarting:
		return 0
	case RunStateRunning:
		return 1
	case RunStateExiting:
		return 2
	case RunStateExited:
		return 3
	default:
		return -1
	}
}

// TerminationReason records why a run ended.
type TerminationReason string

const (
	ReasonExit            TerminationReason = "exit"
	ReasonSignal          TerminationReason = "signal"
	ReasonManualCancel    TerminationReason = "manual-cancel"
	ReasonOverallTimeout  TerminationReason = "overall-timeout"
	ReasonNoOutputTimeout TerminationReason = "no-output-timeout"
	ReasonSpawnError      TerminationReason = "spawn-error"
)

// Valid reports whether r is one of the known reasons.
func (r TerminationReason) Valid() bool {
	switch r {
	case ReasonExit, ReasonSignal, ReasonManualCancel, ReasonOverallTimeout,
		ReasonNoOutputTimeout, ReasonSpawnError:
		return true
	}
	return false
}

// RunRecord is the observable state of one run.
type RunRecord struct {
	RunID     string   `json:"run_id"`
	SessionID string   `json:"session_id"`
	BackendID string   `json:"backend_id"`
	ScopeKey  string   `json:"scope_key,omitempty"`
	State     RunState `json:"state"`
	PID       int      `json:"pid,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastOutputAt *time.Time `json:"last_output_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`

	TerminationReason TerminationReason `json:"termination_reason,omitempty"`
	ExitCode          *int              `json:"exit_code,omitempty"`
	ExitSignal        string            `json:"exit_signal,omitempty"`
}

// Terminal reports whether the record has been finalized.
func (r RunRecord) Terminal() bool {
	return r.State == RunStateExited
}

// clone returns a deep copy so callers never share pointers with the registry.
func (r RunRecord) clone() RunRecord {
	out := r
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.LastOutputAt != nil {
		t := *r.LastOutputAt
		out.LastOutputAt = &t
	}
	if r.ExitCode != nil {
		c := *r.ExitCode
		out.ExitCode = &c
	}
	return out
}

// Patch carries optional fields merged by UpdateState.
type Patch struct {
	PID               int
	TerminationReason TerminationReason
}

// Termination is the final outcome recorded by Finalize.
type Termination struct {
	Reason     TerminationReason
	ExitCode   *int
	ExitSignal string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	ScopeKey   string
	SessionID  string
	ActiveOnly bool
}

func (f Filter) match(r *RunRecord) bool {
	if f.ScopeKey != "" && r.ScopeKey != f.ScopeKey {
		return false
	}
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.ActiveOnly && r.Terminal() {
		return false
	}
	return true
}
