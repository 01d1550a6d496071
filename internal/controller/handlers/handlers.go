// Package handlers contains HTTP handlers for the run API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"runplane/internal/registry"
	"runplane/internal/store"
	"runplane/internal/supervisor"
	"runplane/pkg/api"
)

// RunSupervisor is the part of the supervisor the API drives.
type RunSupervisor interface {
	Spawn(ctx context.Context, in supervisor.SpawnInput) (*supervisor.ManagedRun, error)
	Cancel(runID string, reason registry.TerminationReason)
	CancelScope(scopeKey string, reason registry.TerminationReason) int
	Record(runID string) (registry.RunRecord, bool)
	Records(f registry.Filter) []registry.RunRecord
}

// Pinger is implemented by history stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	sup     RunSupervisor
	history store.RunHistory
	logger  *slog.Logger
}

// New creates a new Handlers instance. history may be nil.
func New(sup RunSupervisor, history store.RunHistory, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{sup: sup, history: history, logger: logger}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

func (h *Handlers) httpErrorDetails(w http.ResponseWriter, message string, code int, err error) {
	h.respondJson(w, code, api.ErrorResponse{
		Error:   message,
		Code:    strconv.Itoa(code),
		Details: err.Error(),
	})
}

func toRunResponse(rec registry.RunRecord) api.RunResponse {
	return api.RunResponse{
		RunID:             rec.RunID,
		SessionID:         rec.SessionID,
		BackendID:         rec.BackendID,
		ScopeKey:          rec.ScopeKey,
		State:             string(rec.State),
		PID:               rec.PID,
		CreatedAt:         rec.CreatedAt,
		StartedAt:         rec.StartedAt,
		LastOutputAt:      rec.LastOutputAt,
		UpdatedAt:         rec.UpdatedAt,
		TerminationReason: string(rec.TerminationReason),
		ExitCode:          rec.ExitCode,
		ExitSignal:        rec.ExitSignal,
	}
}

func toRunResponses(recs []registry.RunRecord) []api.RunResponse {
	out := make([]api.RunResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRunResponse(rec))
	}
	return out
}
