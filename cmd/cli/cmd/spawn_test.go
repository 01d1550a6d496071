package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"runplane/pkg/api"
)

func TestSpawnCommand_Accepted(t *testing.T) {
	var got api.SpawnRunRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/runs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("wait") != "" {
			t.Errorf("expected no wait parameter, got %q", r.URL.RawQuery)
		}
		json.NewDecoder(r.Body).Decode(&got)

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(api.SpawnRunResponse{RunID: "run-abc", PID: 99})
	}))
	defer server.Close()

	output, err := execute(t, server.URL, "spawn",
		"--scope", "build", "--mode", "pty", "--timeout", "2s", "--idle-timeout=-1s",
		"-e", "A=1", "-e", "B=x=y", "--replace",
		"--", "make", "-j4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(output, "Run ID: run-abc") || !strings.Contains(output, "PID: 99") {
		t.Errorf("unexpected output: %s", output)
	}

	if strings.Join(got.Command, " ") != "make -j4" {
		t.Errorf("unexpected command: %v", got.Command)
	}
	if got.ScopeKey != "build" || got.Mode != "pty" || !got.ReplaceExistingScope {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.TimeoutMs != 2000 || got.NoOutputTimeoutMs != -1000 {
		t.Errorf("unexpected timeouts: %d %d", got.TimeoutMs, got.NoOutputTimeoutMs)
	}
	if got.Env["A"] != "1" || got.Env["B"] != "x=y" {
		t.Errorf("unexpected env: %v", got.Env)
	}
}

func TestSpawnCommand_ArgsAfterCommandAreNotFlags(t *testing.T) {
	var got api.SpawnRunRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(api.SpawnRunResponse{RunID: "r"})
	}))
	defer server.Close()

	if _, err := execute(t, server.URL, "spawn", "ls", "-la", "--timeout"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got.Command, " ") != "ls -la --timeout" {
		t.Errorf("unexpected command: %v", got.Command)
	}
	if got.TimeoutMs != 0 {
		t.Errorf("expected no timeout, got %d", got.TimeoutMs)
	}
}

func TestSpawnCommand_Wait(t *testing.T) {
	exitCode := 3
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("wait") != "true" {
			t.Errorf("expected wait=true, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(api.RunExitResponse{
			RunID:      "run-w",
			Reason:     "exit",
			ExitCode:   &exitCode,
			DurationMs: 1500,
			Stdout:     "building\n",
			Stderr:     "oops\n",
		})
	}))
	defer server.Close()

	output, err := execute(t, server.URL, "spawn", "--wait", "--", "./build.sh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"building\n", "oops\n", "run-w exited with code 3", "failed", "1.5s"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestSpawnCommand_InvalidEnv(t *testing.T) {
	_, err := execute(t, "http://unused", "spawn", "-e", "NOEQUALS", "--", "true")
	if err == nil || !strings.Contains(err.Error(), "KEY=VALUE") {
		t.Fatalf("expected env parse error, got %v", err)
	}
}

func TestSpawnCommand_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"Run already exists"}`))
	}))
	defer server.Close()

	_, err := execute(t, server.URL, "spawn", "--id", "dup", "--", "true")
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected 409 error, got %v", err)
	}
}

func TestSpawnCommand_RequiresCommand(t *testing.T) {
	if _, err := execute(t, "http://unused", "spawn"); err == nil {
		t.Error("expected error when command is missing")
	}
}

func TestParseEnv(t *testing.T) {
	env, err := parseEnv([]string{"A=1", "EMPTY="})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env["A"] != "1" {
		t.Errorf("expected A=1, got %q", env["A"])
	}
	if v, ok := env["EMPTY"]; !ok || v != "" {
		t.Errorf("expected EMPTY set to empty string, got %q %v", v, ok)
	}

	if env, _ := parseEnv(nil); env != nil {
		t.Errorf("expected nil env for no pairs, got %v", env)
	}
	if _, err := parseEnv([]string{"=value"}); err == nil {
		t.Error("expected error for empty key")
	}
}
