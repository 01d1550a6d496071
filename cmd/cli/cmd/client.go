package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"runplane/pkg/api"
)

// RunClient handles API calls to the runplane daemon.
type RunClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewRunClient creates a new client with the given base URL and token.
func NewRunClient(baseURL, token string) *RunClient {
	return &RunClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends a request and decodes a JSON response into out.
// Any status outside 2xx becomes an *APIError carrying the raw body.
func (c *RunClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.Token != "" {
		httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(respBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// SpawnRun sends POST /runs and returns the accepted run.
func (c *RunClient) SpawnRun(req api.SpawnRunRequest) (*api.SpawnRunResponse, error) {
	var result api.SpawnRunResponse
	if err := c.do(http.MethodPost, "/runs", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SpawnRunAndWait sends POST /runs?wait=true and returns the exit report.
// The HTTP timeout is lifted because the call lasts as long as the run.
func (c *RunClient) SpawnRunAndWait(req api.SpawnRunRequest) (*api.RunExitResponse, error) {
	waiting := *c
	waiting.HTTPClient = &http.Client{Transport: c.HTTPClient.Transport}

	var result api.RunExitResponse
	if err := waiting.do(http.MethodPost, "/runs?wait=true", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRun sends GET /runs/{id}.
func (c *RunClient) GetRun(runID string) (*api.RunResponse, error) {
	var result api.RunResponse
	if err := c.do(http.MethodGet, "/runs/"+url.PathEscape(runID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRuns sends GET /runs with optional scope, session and active filters.
func (c *RunClient) ListRuns(scope, session string, active bool) ([]api.RunResponse, error) {
	q := url.Values{}
	if scope != "" {
		q.Set("scope", scope)
	}
	if session != "" {
		q.Set("session", session)
	}
	if active {
		q.Set("active", "true")
	}

	path := "/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result api.ListRunsResponse
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Runs, nil
}

// CancelRun sends POST /runs/{id}/cancel. An empty reason means manual-cancel.
func (c *RunClient) CancelRun(runID, reason string) (*api.RunResponse, error) {
	var result api.RunResponse
	path := "/runs/" + url.PathEscape(runID) + "/cancel"
	if err := c.do(http.MethodPost, path, api.CancelRunRequest{Reason: reason}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelScope sends POST /scopes/{key}/cancel.
func (c *RunClient) CancelScope(scopeKey, reason string) (*api.CancelScopeResponse, error) {
	var result api.CancelScopeResponse
	path := "/scopes/" + url.PathEscape(scopeKey) + "/cancel"
	if err := c.do(http.MethodPost, path, api.CancelRunRequest{Reason: reason}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListHistory sends GET /history to page through persisted runs.
func (c *RunClient) ListHistory(scope, reason string, limit, offset int) ([]api.RunResponse, error) {
	q := url.Values{}
	if scope != "" {
		q.Set("scope", scope)
	}
	if reason != "" {
		q.Set("reason", reason)
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var result api.ListRunsResponse
	if err := c.do(http.MethodGet, "/history?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return result.Runs, nil
}
