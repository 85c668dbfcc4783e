package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/siftwatch/sift-be/internal/metrics"
	"github.com/siftwatch/sift-be/internal/models"
	"github.com/siftwatch/sift-be/internal/rules"
	"github.com/siftwatch/sift-be/internal/services"
)

var validate = validator.New()

// EventHandler handles event ingestion and the intel overview.
type EventHandler struct {
	events  services.EventServiceProvider
	actions services.ActionServiceProvider
	rules   *rules.Store
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(events services.EventServiceProvider, actions services.ActionServiceProvider, ruleStore *rules.Store) *EventHandler {
	return &EventHandler{events: events, actions: actions, rules: ruleStore}
}

// ingestRequest is the POST /events body.
type ingestRequest struct {
	User      string         `json:"user"`
	Action    string         `json:"action" validate:"required"`
	Payload   map[string]any `json:"payload"`
	Timestamp float64        `json:"timestamp"`
}

// Ingest handles the request to report a new event.
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Missing required field: action", http.StatusBadRequest)
		return
	}

	eventID, err := h.events.InsertEvent(req.User, req.Action, req.Payload, req.Timestamp)
	if err != nil {
		log.Error().Err(err).Str("action", req.Action).Msg("Failed to insert event")
		http.Error(w, "Failed to store event: "+err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.EventsIngested.Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "event_id": eventID})
}

// intelResponse bundles recent activity with the active rules.
type intelResponse struct {
	Events  []models.Event        `json:"events"`
	Actions []models.ActionRecord `json:"actions"`
	Rules   models.RuleConfig     `json:"rules"`
}

// GetIntel handles the request for the combined activity overview.
func (h *EventHandler) GetIntel(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 100)

	events, err := h.events.GetRecentEvents(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve events")
		http.Error(w, "Failed to retrieve events: "+err.Error(), http.StatusInternalServerError)
		return
	}
	actions, err := h.actions.GetRecentActions(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve actions")
		http.Error(w, "Failed to retrieve actions: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := intelResponse{
		Events:  events,
		Actions: actions,
		Rules:   h.rules.Current(),
	}
	if resp.Events == nil {
		resp.Events = []models.Event{}
	}
	if resp.Actions == nil {
		resp.Actions = []models.ActionRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// queryLimit parses the limit query parameter with a fallback.
func queryLimit(r *http.Request, fallback int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
