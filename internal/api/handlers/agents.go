package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/atriumhq/atrium/internal/api/middleware"
	"github.com/atriumhq/atrium/pkg/models"
)

const (
	maxAgentNameLen = 100
	maxAgentDescLen = 500
)

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Store.ListAgents(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if agents == nil {
		agents = []models.Agent{}
	}
	respondJSON(w, http.StatusOK, agents)
}

// CreateAgent provisions a new agent: its record, its document bucket,
// and an empty corpus.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxAgentNameLen {
		respondError(w, http.StatusBadRequest, "name must be 1-100 characters")
		return
	}
	if len(req.Description) > maxAgentDescLen {
		respondError(w, http.StatusBadRequest, "description must be at most 500 characters")
		return
	}

	agent := &models.Agent{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   middleware.GetUser(r.Context()).ID,
		Status:      models.AgentStatusActive,
		Settings:    models.DefaultAgentSettings(),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	agent.BucketName = h.bucketFor(agent.ID)
	agent.CorpusID = agent.ID

	if err := h.Objects.CreateBucket(r.Context(), h.bucketFor(agent.ID)); err != nil {
		log.Error().Err(err).Str("agent", agent.ID).Msg("bucket provisioning failed")
		respondError(w, http.StatusBadGateway, "object storage unavailable")
		return
	}
	if err := h.Store.CreateAgent(r.Context(), agent); err != nil {
		respondStoreError(w, err)
		return
	}

	log.Info().Str("agent", agent.ID).Str("name", agent.Name).Msg("agent created")
	respondJSON(w, http.StatusCreated, agent)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	var upd models.AgentUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" || len(trimmed) > maxAgentNameLen {
			respondError(w, http.StatusBadRequest, "name must be 1-100 characters")
			return
		}
		upd.Name = &trimmed
	}
	if upd.Description != nil && len(*upd.Description) > maxAgentDescLen {
		respondError(w, http.StatusBadRequest, "description must be at most 500 characters")
		return
	}

	agent, err := h.Store.UpdateAgent(r.Context(), chi.URLParam(r, "agentId"), upd)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

// DeleteAgent tears down everything the agent owns: stored bytes,
// corpus entries, and the directory records.
func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	if _, err := h.Store.GetAgent(r.Context(), agentID); err != nil {
		respondStoreError(w, err)
		return
	}

	if err := h.Objects.DeleteBucket(r.Context(), h.bucketFor(agentID)); err != nil {
		log.Warn().Err(err).Str("agent", agentID).Msg("bucket teardown failed, continuing")
	}
	if err := h.Index.DeleteCorpus(r.Context(), agentID); err != nil {
		log.Warn().Err(err).Str("agent", agentID).Msg("corpus teardown failed, continuing")
	}
	if err := h.Store.DeleteAgent(r.Context(), agentID); err != nil {
		respondStoreError(w, err)
		return
	}

	log.Info().Str("agent", agentID).Msg("agent deleted")
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
