package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/registry"
)

// IdentitiesHandler handles registration and identity management endpoints
type IdentitiesHandler struct {
	registry *registry.Registry
	log      logrus.FieldLogger
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(reg *registry.Registry, log logrus.FieldLogger) *IdentitiesHandler {
	return &IdentitiesHandler{registry: reg, log: log}
}

// IdentityResponse is the public view of an identity. The embedding is never exposed.
type IdentityResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Surname   string    `json:"surname"`
	Email     string    `json:"email"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toIdentityResponse(identity *database.Identity) IdentityResponse {
	return IdentityResponse{
		ID:        identity.ID,
		Name:      identity.Name,
		Surname:   identity.Surname,
		Email:     identity.Email,
		Image:     identity.ImageRef,
		CreatedAt: identity.CreatedAt,
		UpdatedAt: identity.UpdatedAt,
	}
}

// createdResponse is the registration response
type createdResponse struct {
	IdentityResponse
	Message string `json:"message"`
}

func parseIdentityID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Create registers a new identity from a multipart form
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	name, _ := formValue(r, fieldName)
	surname, _ := formValue(r, fieldSurname)
	email, _ := formValue(r, fieldEmail)
	image, err := formImage(r, fieldImage)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	in := registry.RegisterInput{Name: name, Surname: surname, Email: email}
	if image != nil {
		in.Image = *image
	}

	identity, err := h.registry.Register(r.Context(), in)
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, createdResponse{
		IdentityResponse: toIdentityResponse(identity),
		Message:          fmt.Sprintf("El usuario %s %s, ha sido creado exitosamente", identity.Name, identity.Surname),
	})
}

// List returns all identities; ?buscar= filters by name or email
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("buscar")
	if query == "" {
		query = r.URL.Query().Get("q")
	}

	identities, err := h.registry.Search(r.Context(), query)
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}

	out := make([]IdentityResponse, len(identities))
	for i := range identities {
		out[i] = toIdentityResponse(&identities[i])
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns a single identity
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIdentityID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid identity id")
		return
	}

	identity, err := h.registry.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// Update changes the fields present in the form
func (h *IdentitiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIdentityID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid identity id")
		return
	}
	if !parseForm(w, r) {
		return
	}

	image, err := formImage(r, fieldImage)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	in := registry.UpdateInput{
		Name:    optionalFormValue(r, fieldName),
		Surname: optionalFormValue(r, fieldSurname),
		Email:   optionalFormValue(r, fieldEmail),
		Image:   image,
	}

	identity, err := h.registry.Update(r.Context(), id, in)
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// Delete removes an identity and its image
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIdentityID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid identity id")
		return
	}

	if err := h.registry.Delete(r.Context(), id); err != nil {
		respondDomainError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "identity deleted",
	})
}
