package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/kozaktomas/face-registry/internal/tokens"
	"github.com/kozaktomas/face-registry/internal/web/middleware"
)

func newAuthHandler(t *testing.T, store tokens.Store) *AuthHandler {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	return NewAuthHandler(store, nil, log)
}

func TestAuthHandler_Login(t *testing.T) {
	store := tokens.NewMemoryStore(0)
	tok, _ := store.Issue(context.Background())
	handler := newAuthHandler(t, store)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid token", `{"token":"` + tok.Value + `"}`, http.StatusOK},
		{"unknown token", `{"token":"not-a-token"}`, http.StatusUnauthorized},
		{"empty token", `{"token":""}`, http.StatusBadRequest},
		{"malformed body", `{token`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/login", bytes.NewBufferString(tc.body))
			recorder := httptest.NewRecorder()
			handler.Login(recorder, req)

			if recorder.Code != tc.want {
				t.Errorf("expected status %d, got %d", tc.want, recorder.Code)
			}
		})
	}
}

func TestAuthHandler_LoginDoesNotConsumeToken(t *testing.T) {
	store := tokens.NewMemoryStore(0)
	tok, _ := store.Issue(context.Background())
	handler := newAuthHandler(t, store)

	for j := 0; j < 2; j++ {
		req := httptest.NewRequest("POST", "/login", bytes.NewBufferString(`{"token":"`+tok.Value+`"}`))
		recorder := httptest.NewRecorder()
		handler.Login(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", recorder.Code)
		}
		var resp LoginResponse
		json.Unmarshal(recorder.Body.Bytes(), &resp)
		if !resp.OK {
			t.Error("expected ok=true")
		}
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	store := tokens.NewMemoryStore(0)
	tok, _ := store.Issue(context.Background())
	handler := newAuthHandler(t, store)

	req := httptest.NewRequest("POST", "/logout", nil)
	req = req.WithContext(middleware.SetTokenInContext(req.Context(), tok.Value))
	recorder := httptest.NewRecorder()
	handler.Logout(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	if ok, _ := store.Validate(context.Background(), tok.Value); ok {
		t.Error("token should be revoked")
	}
}

func TestAuthHandler_GenerateToken(t *testing.T) {
	store := tokens.NewMemoryStore(time.Hour)
	handler := newAuthHandler(t, store)

	recorder := httptest.NewRecorder()
	handler.GenerateToken(recorder, httptest.NewRequest("GET", "/generarToken", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	var resp TokenResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if ok, _ := store.Validate(context.Background(), resp.Token); !ok {
		t.Error("generated token should be valid")
	}
	if resp.ExpiresAt == nil {
		t.Error("expected expires_at with a positive TTL")
	}
}
