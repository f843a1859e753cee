package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/kozaktomas/face-registry/internal/tokens"
)

// CompareHandler handles face login
type CompareHandler struct {
	registry *registry.Registry
	tokens   tokens.Store
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

// NewCompareHandler creates a new compare handler
func NewCompareHandler(reg *registry.Registry, store tokens.Store, m *metrics.Metrics, log logrus.FieldLogger) *CompareHandler {
	return &CompareHandler{registry: reg, tokens: store, metrics: m, log: log}
}

// CompareResponse is the face login result. Status is one of recognized,
// unmatched or no_candidates.
type CompareResponse struct {
	Status   string            `json:"status"`
	Message  string            `json:"message,omitempty"`
	Error    string            `json:"error,omitempty"`
	Token    string            `json:"token,omitempty"`
	Identity *IdentityResponse `json:"identity,omitempty"`
	Distance *float64          `json:"distance,omitempty"`
}

// Compare matches the uploaded face and issues a token on success
func (h *CompareHandler) Compare(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	image, err := formImage(r, fieldImage)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if image == nil {
		respondError(w, http.StatusBadRequest, "image: is required")
		return
	}

	rec, err := h.registry.Recognize(r.Context(), *image)
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}

	switch rec.Outcome {
	case facematch.Recognized:
		tok, err := h.tokens.Issue(r.Context())
		if err != nil {
			h.log.WithError(err).Error("failed to issue token")
			respondError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}
		h.metrics.IncTokensIssued()

		distance := rec.Distance
		resp := CompareResponse{
			Status:   string(facematch.Recognized),
			Token:    tok.Value,
			Distance: &distance,
		}
		if rec.Identity != nil {
			identity := toIdentityResponse(rec.Identity)
			resp.Identity = &identity
			resp.Message = "Hola " + rec.Identity.Name
		}
		respondJSON(w, http.StatusOK, resp)

	case facematch.Unmatched:
		distance := rec.Distance
		respondJSON(w, http.StatusUnauthorized, CompareResponse{
			Status:   string(facematch.Unmatched),
			Error:    "face not recognized",
			Distance: &distance,
		})

	default:
		respondJSON(w, http.StatusNotFound, CompareResponse{
			Status: string(facematch.NoCandidates),
			Error:  "no users registered",
		})
	}
}
