package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/siftwatch/sift-be/internal/models"
	"github.com/siftwatch/sift-be/internal/rules"
)

// RulesHandler handles reading and replacing the rule configuration.
type RulesHandler struct {
	store *rules.Store
}

// NewRulesHandler creates a new RulesHandler.
func NewRulesHandler(store *rules.Store) *RulesHandler {
	return &RulesHandler{store: store}
}

// Get returns the active rule configuration document.
func (h *RulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.store.Current())
}

// Update replaces the rule configuration wholesale. The body is the full
// document; partial updates are not supported by design.
func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var cfg models.RuleConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.store.Save(cfg); err != nil {
		log.Error().Err(err).Msg("Failed to save rules document")
		http.Error(w, "Failed to save rules: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.store.Current())
}
