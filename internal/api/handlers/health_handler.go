package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler answers liveness checks.
type HealthHandler struct{}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Check handles the healthz request.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"ts":     float64(time.Now().UnixNano()) / float64(time.Second),
	})
}
