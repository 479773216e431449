package handlers

import (
	"net/http"
	"strconv"

	"github.com/isdelr/practice-server/internal/services"
	"github.com/rs/zerolog/log"
)

// EventHandler handles HTTP requests for the audit log.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetRecent returns the newest audit events. Only admin requests may read
// the log.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	if !RequestContextFrom(r).Admin {
		respondError(w, services.CredentialError())
		return
	}

	limitStr := r.URL.Query().Get("limit")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 20 // Default limit
	}

	events, err := h.service.GetRecentEvents(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve events")
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}
