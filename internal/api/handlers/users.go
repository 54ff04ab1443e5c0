package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/atriumhq/atrium/internal/api/middleware"
	"github.com/atriumhq/atrium/pkg/models"
)

// Me returns the caller's own user record.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, middleware.GetUser(r.Context()))
}

func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *Handlers) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req struct {
		Role models.UserRole `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleStandard {
		respondError(w, http.StatusBadRequest, "role must be admin or user")
		return
	}

	// An admin demoting themself is an easy way to lock a deployment
	// out of administration entirely.
	if caller := middleware.GetUser(r.Context()); caller != nil && caller.ID == userID && req.Role != models.RoleAdmin {
		respondError(w, http.StatusBadRequest, "cannot demote your own account")
		return
	}

	user, err := h.Store.UpdateUserRole(r.Context(), userID, req.Role)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	log.Info().Str("user", userID).Str("role", string(req.Role)).Msg("user role updated")
	respondJSON(w, http.StatusOK, user)
}
