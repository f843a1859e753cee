package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-registry/internal/storage"
)

// ImagesHandler serves stored identity photographs
type ImagesHandler struct {
	images storage.ImageStore
	log    logrus.FieldLogger
}

// NewImagesHandler creates a new images handler
func NewImagesHandler(images storage.ImageStore, log logrus.FieldLogger) *ImagesHandler {
	return &ImagesHandler{images: images, log: log}
}

// Serve streams the image at the wildcard reference, e.g. /imagenes/usuarios/<uuid>.jpg
func (h *ImagesHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ref, err := storage.CleanRef(chi.URLParam(r, "*"))
	if err != nil {
		respondError(w, http.StatusNotFound, storage.ErrImageNotFound.Error())
		return
	}

	rc, err := h.images.Open(r.Context(), ref)
	if err != nil {
		if errors.Is(err, storage.ErrImageNotFound) || errors.Is(err, storage.ErrInvalidRef) {
			respondError(w, http.StatusNotFound, storage.ErrImageNotFound.Error())
			return
		}
		h.log.WithError(err).WithField("image", sanitizeForLog(ref)).Error("failed to open image")
		respondError(w, http.StatusInternalServerError, "failed to read image")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", storage.ContentTypeForRef(ref))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.WithError(err).WithField("image", sanitizeForLog(ref)).Warn("failed to stream image")
	}
}
