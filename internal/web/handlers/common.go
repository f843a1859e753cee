package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/registry"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps a registry error to its HTTP status. Internal
// failures are logged and answered with a generic message.
func respondDomainError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	var (
		validationErr *registry.ValidationError
		providerErr   *embedding.ProviderError
		storageErr    *registry.StorageError
	)
	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, registry.ErrUnsupportedMedia):
		respondError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, embedding.ErrNoFaceDetected),
		errors.Is(err, embedding.ErrEmptyEmbedding),
		errors.Is(err, embedding.ErrInvalidImage):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrDuplicateFace):
		respondError(w, http.StatusConflict, registry.ErrDuplicateFace.Error())
	case errors.Is(err, registry.ErrDuplicateEmail):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &providerErr):
		log.WithError(err).Error("embedding provider failed")
		respondError(w, http.StatusBadGateway, "face embedding service unavailable")
	case errors.As(err, &storageErr):
		log.WithError(err).Error("image storage failed")
		respondError(w, http.StatusInternalServerError, "failed to store image")
	case errors.Is(err, database.ErrLockTimeout):
		log.WithError(err).Error("registry lock timeout")
		respondError(w, http.StatusInternalServerError, "registry busy, try again")
	default:
		log.WithError(err).Error("request failed")
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
