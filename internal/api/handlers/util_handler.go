package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/practice-server/internal/services"
)

// UtilHandler reads and toggles runtime switches such as throttling.
type UtilHandler struct {
	service services.UtilServiceProvider
}

// NewUtilHandler creates a new UtilHandler.
func NewUtilHandler(service services.UtilServiceProvider) *UtilHandler {
	return &UtilHandler{service: service}
}

// Get returns the value of one switch; unknown switches have no content.
func (h *UtilHandler) Get(w http.ResponseWriter, r *http.Request) {
	value, ok := h.service.Setting(chi.URLParam(r, "setting"))
	if !ok {
		respondJSON(w, http.StatusNoContent, nil)
		return
	}
	if value == nil {
		respondNull(w)
		return
	}
	respondJSON(w, http.StatusOK, value)
}

// Set stores every key of the JSON object body and answers "".
func (h *UtilHandler) Set(w http.ResponseWriter, r *http.Request) {
	body, err := decodeRecord(r)
	if err != nil {
		respondError(w, err)
		return
	}
	h.service.Set(body)
	respondJSON(w, http.StatusOK, "")
}
