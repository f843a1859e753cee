package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-registry/internal/metrics"
	"github.com/kozaktomas/face-registry/internal/tokens"
	"github.com/kozaktomas/face-registry/internal/web/middleware"
)

// AuthHandler handles token endpoints
type AuthHandler struct {
	tokens  tokens.Store
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(store tokens.Store, m *metrics.Metrics, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{tokens: store, metrics: m, log: log}
}

// loginRequest represents a login request
type loginRequest struct {
	Token string `json:"token"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TokenResponse is returned when a token is issued outside face login
type TokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Message   string     `json:"message"`
}

// Login checks whether a token is valid
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	ok, err := h.tokens.Validate(r.Context(), req.Token)
	if err != nil {
		h.log.WithError(err).Error("token validation failed")
		respondError(w, http.StatusInternalServerError, "failed to validate token")
		return
	}
	if !ok {
		respondJSON(w, http.StatusUnauthorized, LoginResponse{
			OK:    false,
			Error: "invalid token",
		})
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{
		OK:      true,
		Message: "token valid, access granted",
	})
}

// Logout revokes the presented token
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromContext(r.Context())
	if err := h.tokens.Revoke(r.Context(), token); err != nil {
		h.log.WithError(err).Error("failed to revoke token")
		respondError(w, http.StatusInternalServerError, "failed to revoke token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out",
	})
}

// GenerateToken issues a token without face login. Only routed when the
// development token endpoint is enabled.
func (h *AuthHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.tokens.Issue(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to issue token")
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	h.metrics.IncTokensIssued()
	h.log.WithField("remote_addr", sanitizeForLog(r.RemoteAddr)).Warn("development token issued")

	resp := TokenResponse{
		Token:   tok.Value,
		Message: "token generated for testing",
	}
	if !tok.ExpiresAt.IsZero() {
		resp.ExpiresAt = &tok.ExpiresAt
	}
	respondJSON(w, http.StatusOK, resp)
}
