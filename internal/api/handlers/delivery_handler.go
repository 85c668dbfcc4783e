package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/siftwatch/sift-be/internal/models"
	"github.com/siftwatch/sift-be/internal/services"
)

// DeliveryHandler exposes the retry queue and delivery audit log.
type DeliveryHandler struct {
	service services.DeliveryServiceProvider
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(service services.DeliveryServiceProvider) *DeliveryHandler {
	return &DeliveryHandler{service: service}
}

// Get returns pending queue entries and recent log records.
func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 100)

	queue, err := h.service.PendingQueue(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve delivery queue")
		http.Error(w, "Failed to retrieve delivery queue: "+err.Error(), http.StatusInternalServerError)
		return
	}
	logEntries, err := h.service.RecentLog(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve delivery log")
		http.Error(w, "Failed to retrieve delivery log: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if queue == nil {
		queue = []models.DeliveryQueueEntry{}
	}
	if logEntries == nil {
		logEntries = []models.DeliveryLogEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"queue": queue,
		"log":   logEntries,
	})
}
