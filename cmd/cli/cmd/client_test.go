package cmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"runplane/pkg/api"
)

func TestRunClient_SpawnRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/runs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("wait") != "" {
			t.Errorf("expected no wait parameter, got %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("expected Bearer token, got: %s", r.Header.Get("Authorization"))
		}

		var req api.SpawnRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if len(req.Command) != 2 || req.Command[0] != "echo" {
			t.Errorf("unexpected command: %v", req.Command)
		}

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(api.SpawnRunResponse{RunID: "run-1", PID: 42})
	}))
	defer server.Close()

	client := NewRunClient(server.URL, "secret")
	resp, err := client.SpawnRun(api.SpawnRunRequest{Command: []string{"echo", "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.RunID != "run-1" || resp.PID != 42 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestRunClient_NoTokenOmitsHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := r.Header.Get("Authorization"); h != "" {
			t.Errorf("expected no Authorization header, got %q", h)
		}
		json.NewEncoder(w).Encode(api.ListRunsResponse{})
	}))
	defer server.Close()

	if _, err := NewRunClient(server.URL, "").ListRuns("", "", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunClient_ListRunsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("scope") != "build" || q.Get("session") != "s1" || q.Get("active") != "true" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(api.ListRunsResponse{Runs: []api.RunResponse{{RunID: "a"}, {RunID: "b"}}})
	}))
	defer server.Close()

	runs, err := NewRunClient(server.URL, "t").ListRuns("build", "s1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestRunClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Run not found"}` + "\n"))
	}))
	defer server.Close()

	_, err := NewRunClient(server.URL, "t").GetRun("missing")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != `{"error":"Run not found"}` {
		t.Errorf("unexpected message: %q", apiErr.Message)
	}
}

func TestRunClient_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	if _, err := NewRunClient(server.URL, "t").GetRun("x"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRunClient_CancelPaths(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())

		var req api.CancelRunRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Reason != "overall-timeout" {
			t.Errorf("expected reason overall-timeout, got %q", req.Reason)
		}

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewRunClient(server.URL, "t")
	if _, err := client.CancelRun("run 1", "overall-timeout"); err != nil {
		t.Fatalf("CancelRun: %v", err)
	}
	if _, err := client.CancelScope("team/build", "overall-timeout"); err != nil {
		t.Fatalf("CancelScope: %v", err)
	}

	want := []string{"/runs/run%201/cancel", "/scopes/team%2Fbuild/cancel"}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("expected paths %v, got %v", want, paths)
	}
}
