package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"runplane/internal/logger"
	"runplane/internal/registry"
	"runplane/internal/store"
	"runplane/pkg/api"
)

// ListHistory handles GET /history.
// Supports scope, session, reason, limit and offset query parameters.
func (h *Handlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.httpError(w, "Run history is not configured", http.StatusNotImplemented)
		return
	}

	q := r.URL.Query()
	f := store.RunFilter{
		ScopeKey:  q.Get("scope"),
		SessionID: q.Get("session"),
		Reason:    registry.TerminationReason(q.Get("reason")),
	}
	if f.Reason != "" && !f.Reason.Valid() {
		h.httpError(w, "Invalid reason", http.StatusBadRequest)
		return
	}

	var err error
	if f.Limit, err = intParam(q.Get("limit"), 0, 1000); err != nil {
		h.httpError(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	if f.Offset, err = intParam(q.Get("offset"), 0, -1); err != nil {
		h.httpError(w, "Invalid offset", http.StatusBadRequest)
		return
	}

	recs, err := h.history.ListRuns(r.Context(), f)
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Error("failed to list history", "error", err)
		h.httpError(w, "Failed to list history", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, api.ListRunsResponse{Runs: toRunResponses(recs)})
}

// GetHistory handles GET /history/{id}.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.httpError(w, "Run history is not configured", http.StatusNotImplemented)
		return
	}

	rec, err := h.history.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		h.httpError(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Error("failed to load history", "error", err)
		h.httpError(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, toRunResponse(*rec))
}

// intParam parses a non-negative integer. max < 0 means unbounded.
func intParam(s string, def, max int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	if max >= 0 && n > max {
		n = max
	}
	return n, nil
}
