package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"runplane/internal/auth"
)

const testToken = "test-secret-61"

func TestRequireToken_MissingHeader(t *testing.T) {
	middleware := RequireToken(auth.HashKey(testToken))

	// Dummy handler that should NOT be called
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not have been called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if body := rr.Body.String(); body != "Missing authorization header\n" {
		t.Errorf("got body %q, want %q", body, "Missing authorization header\n")
	}
}

func TestRequireToken_InvalidHeaderFormat(t *testing.T) {
	middleware := RequireToken(auth.HashKey(testToken))

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not have been called")
	}))

	invalidHeaders := []string{
		"Basic " + testToken,
		"Bearer",
		"Bearer " + testToken + " extra",
		testToken,
	}

	for _, header := range invalidHeaders {
		req := httptest.NewRequest(http.MethodGet, "/runs", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("header %q: got status %d, want %d", header, rr.Code, http.StatusUnauthorized)
		}
	}
}

func TestRequireToken_WrongToken(t *testing.T) {
	middleware := RequireToken(auth.HashKey(testToken))

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not have been called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "Bearer wrong-secret")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if body := rr.Body.String(); body != "Invalid authorization token\n" {
		t.Errorf("got body %q", body)
	}
}

func TestRequireToken_ValidToken(t *testing.T) {
	middleware := RequireToken(auth.HashKey(testToken))

	var client string
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, _ = ClientFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}
	if client == "" {
		t.Error("expected client identity on context")
	}
}

func TestRequireToken_DisabledWithoutHash(t *testing.T) {
	called := false
	handler := RequireToken("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/runs", nil))

	if !called {
		t.Error("expected handler to be called when auth is disabled")
	}
}
