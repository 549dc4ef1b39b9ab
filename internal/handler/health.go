package handler

import (
	"net/http"
	"time"
)

// DatabaseCheck is the health probe name reported as "database" by
// /api/health.
const DatabaseCheck = "postgres"

type apiHealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
}

func (h *Handler) apiHealth(w http.ResponseWriter, _ *http.Request) {
	db := "Connected"
	if err := h.Health.Check(DatabaseCheck); err != nil {
		db = "Disconnected"
	}
	writeJSON(w, http.StatusOK, apiHealthResponse{
		Status:    "OK",
		Timestamp: h.now().UTC(),
		Database:  db,
	})
}
