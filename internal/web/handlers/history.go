package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-registry/internal/audit"
)

// HistoryHandler serves the request history
type HistoryHandler struct {
	recorder *audit.Recorder
	log      logrus.FieldLogger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(recorder *audit.Recorder, log logrus.FieldLogger) *HistoryHandler {
	return &HistoryHandler{recorder: recorder, log: log}
}

// HistoryEntry is one audit record
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Method    string    `json:"method"`
	Endpoint  string    `json:"endpoint"`
	Status    int       `json:"status"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Timestamp time.Time `json:"timestamp"`
}

// List returns the most recent records, newest first
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.recorder.List(r.Context(), limit)
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}

	out := make([]HistoryEntry, len(records))
	for i, rec := range records {
		out[i] = HistoryEntry{
			ID:        rec.ID,
			Action:    rec.Action,
			Method:    rec.Method,
			Endpoint:  rec.Endpoint,
			Status:    rec.Status,
			IP:        rec.IP,
			UserAgent: rec.UserAgent,
			Timestamp: rec.Timestamp,
		}
	}
	respondJSON(w, http.StatusOK, out)
}
