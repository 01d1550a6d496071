// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the daemon.
package api

import "time"

// SpawnRunRequest is the request body for starting a run.
type SpawnRunRequest struct {
	RunID     string `json:"run_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	BackendID string `json:"backend_id,omitempty"`
	ScopeKey  string `json:"scope_key,omitempty"`

	// Mode is "child" (default) or "pty"
	Mode    string            `json:"mode,omitempty"`
	Command []string          `json:"command"`
	Dir     string            `json:"dir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// Zero uses the daemon default, negative disables the timer
	TimeoutMs         int64 `json:"timeout_ms,omitempty"`
	NoOutputTimeoutMs int64 `json:"no_output_timeout_ms,omitempty"`

	Input                string `json:"input,omitempty"`
	KeepStdinOpen        bool   `json:"keep_stdin_open,omitempty"`
	ReplaceExistingScope bool   `json:"replace_existing_scope,omitempty"`
}

// SpawnRunResponse is returned when a run was accepted without waiting.
type SpawnRunResponse struct {
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// RunExitResponse is the final report of a run.
type RunExitResponse struct {
	RunID            string `json:"run_id"`
	Reason           string `json:"reason"`
	ExitCode         *int   `json:"exit_code,omitempty"`
	ExitSignal       string `json:"exit_signal,omitempty"`
	DurationMs       int64  `json:"duration_ms"`
	Stdout           string `json:"stdout"`
	Stderr           string `json:"stderr"`
	TimedOut         bool   `json:"timed_out"`
	NoOutputTimedOut bool   `json:"no_output_timed_out"`
	Error            string `json:"error,omitempty"`
}

// RunResponse represents a run record in API responses.
type RunResponse struct {
	RunID             string     `json:"run_id"`
	SessionID         string     `json:"session_id,omitempty"`
	BackendID         string     `json:"backend_id,omitempty"`
	ScopeKey          string     `json:"scope_key,omitempty"`
	State             string     `json:"state"`
	PID               int        `json:"pid,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	LastOutputAt      *time.Time `json:"last_output_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
	TerminationReason string     `json:"termination_reason,omitempty"`
	ExitCode          *int       `json:"exit_code,omitempty"`
	ExitSignal        string     `json:"exit_signal,omitempty"`
}

// ListRunsResponse wraps a list of runs.
type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

// CancelRunRequest is the optional body of a cancel call.
type CancelRunRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelScopeResponse reports how many runs a scope cancel signalled.
type CancelScopeResponse struct {
	ScopeKey  string `json:"scope_key"`
	Cancelled int    `json:"cancelled"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
