package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/atriumhq/atrium/internal/api/middleware"
	"github.com/atriumhq/atrium/internal/chat"
	"github.com/atriumhq/atrium/pkg/models"
)

const maxChatMessageLen = 4000

// ChatStream runs one chat turn and streams its events over SSE.
// Validation and the agent existence check happen before the stream
// opens so they can still surface as proper HTTP statuses; once
// streaming has begun every failure is an in-band error event.
func (h *Handlers) ChatStream(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" || utf8.RuneCountInString(req.Message) > maxChatMessageLen {
		respondError(w, http.StatusBadRequest, "message must be 1-4000 characters")
		return
	}

	if _, err := h.Store.GetAgent(r.Context(), agentID); err != nil {
		respondStoreError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	user := middleware.GetUser(r.Context())
	turn := chat.TurnRequest{
		AgentID:        agentID,
		Message:        req.Message,
		UserID:         user.ID,
		ConversationID: req.ConversationID,
	}

	err := h.Orchestrator.ExecuteTurn(r.Context(), turn, func(ev models.TurnEvent) error {
		payload := []byte("{}")
		if ev.Data != nil {
			var err error
			if payload, err = json.Marshal(ev.Data); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// The write side is gone; nothing more can reach the client.
		log.Debug().Err(err).Str("agent", agentID).Msg("chat stream closed early")
	}
}

// ClearHistory deletes the caller's conversation with the agent. The
// conversation id is the user id; clearing an absent conversation is
// still a success.
func (h *Handlers) ClearHistory(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	user := middleware.GetUser(r.Context())

	if err := h.Store.DeleteConversation(r.Context(), agentID, user.ID); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
