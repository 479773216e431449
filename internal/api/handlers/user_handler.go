package handlers

import (
	"net/http"

	"github.com/isdelr/practice-server/internal/services"
)

// UserHandler handles HTTP requests for user management.
type UserHandler struct {
	service services.UserServiceProvider
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider) *UserHandler {
	return &UserHandler{service: service}
}

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeRecord(r)
	if err != nil {
		respondError(w, err)
		return
	}

	user, err := h.service.Register(payload)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Login handles user authentication and session creation.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeRecord(r)
	if err != nil {
		respondError(w, err)
		return
	}

	user, err := h.service.Login(payload)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Logout ends the current session. Success has no body.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(RequestContextFrom(r)); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// Me returns the authenticated user.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(RequestContextFrom(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}
