package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"runplane/internal/logger"
	"runplane/internal/registry"
	"runplane/internal/supervisor"
	"runplane/internal/transport"
	"runplane/pkg/api"
)

// SpawnRun handles POST /runs.
// With ?wait=true the response is the run's final exit report; otherwise the
// run is accepted and its id returned immediately.
func (h *Handlers) SpawnRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx, h.logger)

	var req api.SpawnRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Command) == 0 {
		h.httpError(w, "command is required", http.StatusBadRequest)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	run, err := h.sup.Spawn(ctx, supervisor.SpawnInput{
		RunID:                req.RunID,
		SessionID:            req.SessionID,
		BackendID:            req.BackendID,
		ScopeKey:             req.ScopeKey,
		Mode:                 transport.Mode(req.Mode),
		Argv:                 req.Command,
		Dir:                  req.Dir,
		Env:                  req.Env,
		Timeout:              time.Duration(req.TimeoutMs) * time.Millisecond,
		NoOutputTimeout:      time.Duration(req.NoOutputTimeoutMs) * time.Millisecond,
		Input:                req.Input,
		KeepStdinOpen:        req.KeepStdinOpen,
		ReplaceExistingScope: req.ReplaceExistingScope,
	})
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrRunExists):
			h.httpError(w, "Run already exists", http.StatusConflict)
		case errors.Is(err, transport.ErrEmptyArgv), errors.Is(err, transport.ErrUnsupportedMode):
			h.httpErrorDetails(w, "Invalid run request", http.StatusBadRequest, err)
		case errors.Is(err, supervisor.ErrSpawn):
			h.httpErrorDetails(w, "Failed to spawn run", http.StatusUnprocessableEntity, err)
		default:
			log.Error("spawn failed", "error", err)
			h.httpErrorDetails(w, "Failed to spawn run", http.StatusInternalServerError, err)
		}
		return
	}

	if !wait {
		h.respondJson(w, http.StatusAccepted, api.SpawnRunResponse{
			RunID:     run.RunID(),
			PID:       run.PID(),
			StartedAt: run.StartedAt(),
		})
		return
	}

	exit, err := run.Wait(ctx)
	if err != nil && !errors.Is(err, supervisor.ErrSpawn) {
		// Client went away; the run keeps going under the supervisor.
		logger.FromContext(logger.WithRunID(ctx, run.RunID()), h.logger).Info("stopped waiting for run", "error", err)
		return
	}

	resp := toExitResponse(exit)
	if err != nil {
		resp.Error = err.Error()
	}
	h.respondJson(w, http.StatusOK, resp)
}

func toExitResponse(exit supervisor.RunExit) api.RunExitResponse {
	return api.RunExitResponse{
		RunID:            exit.RunID,
		Reason:           string(exit.Reason),
		ExitCode:         exit.ExitCode,
		ExitSignal:       exit.ExitSignal,
		DurationMs:       exit.Duration.Milliseconds(),
		Stdout:           exit.Stdout,
		Stderr:           exit.Stderr,
		TimedOut:         exit.TimedOut,
		NoOutputTimedOut: exit.NoOutputTimedOut,
	}
}

// ListRuns handles GET /runs.
// Query parameters scope, session and active narrow the in-memory records.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	active, _ := strconv.ParseBool(q.Get("active"))

	recs := h.sup.Records(registry.Filter{
		ScopeKey:   q.Get("scope"),
		SessionID:  q.Get("session"),
		ActiveOnly: active,
	})
	h.respondJson(w, http.StatusOK, api.ListRunsResponse{Runs: toRunResponses(recs)})
}

// GetRun handles GET /runs/{id}.
// Records pruned from memory are looked up in the history when one is configured.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	if rec, ok := h.sup.Record(runID); ok {
		h.respondJson(w, http.StatusOK, toRunResponse(rec))
		return
	}

	if h.history != nil {
		if rec, err := h.history.GetRun(r.Context(), runID); err == nil {
			h.respondJson(w, http.StatusOK, toRunResponse(*rec))
			return
		}
	}
	h.httpError(w, "Run not found", http.StatusNotFound)
}

// CancelRun handles POST /runs/{id}/cancel.
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	reason, ok := h.cancelReason(w, r)
	if !ok {
		return
	}

	rec, found := h.sup.Record(runID)
	if !found {
		h.httpError(w, "Run not found", http.StatusNotFound)
		return
	}
	if rec.Terminal() {
		h.respondJson(w, http.StatusOK, toRunResponse(rec))
		return
	}

	h.sup.Cancel(runID, reason)
	logger.FromContext(logger.WithRunID(r.Context(), runID), h.logger).Info("run cancel requested", "reason", reason)

	rec, _ = h.sup.Record(runID)
	h.respondJson(w, http.StatusAccepted, toRunResponse(rec))
}

// CancelScope handles POST /scopes/{key}/cancel.
func (h *Handlers) CancelScope(w http.ResponseWriter, r *http.Request) {
	scopeKey := r.PathValue("key")
	if scopeKey == "" {
		h.httpError(w, "scope key is required", http.StatusBadRequest)
		return
	}

	reason, ok := h.cancelReason(w, r)
	if !ok {
		return
	}

	n := h.sup.CancelScope(scopeKey, reason)
	logger.FromContext(r.Context(), h.logger).Info("scope cancel requested", "scope_key", scopeKey, "cancelled", n)

	h.respondJson(w, http.StatusAccepted, api.CancelScopeResponse{ScopeKey: scopeKey, Cancelled: n})
}

// cancelReason reads the optional cancel body. An absent body means manual-cancel.
func (h *Handlers) cancelReason(w http.ResponseWriter, r *http.Request) (registry.TerminationReason, bool) {
	var req api.CancelRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return "", false
	}

	reason := registry.TerminationReason(req.Reason)
	if reason == "" {
		return registry.ReasonManualCancel, true
	}
	switch reason {
	case registry.ReasonManualCancel, registry.ReasonOverallTimeout, registry.ReasonNoOutputTimeout:
		return reason, true
	}
	h.httpError(w, "Invalid cancel reason", http.StatusBadRequest)
	return "", false
}
