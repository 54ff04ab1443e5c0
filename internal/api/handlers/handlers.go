// Package handlers implements the HTTP handlers for the Atrium API.
// All handlers work against the Store/ObjectStore interfaces; the
// chat handler streams the orchestrator's events over SSE.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/atriumhq/atrium/internal/chat"
	"github.com/atriumhq/atrium/internal/config"
	"github.com/atriumhq/atrium/internal/objectstore"
	"github.com/atriumhq/atrium/internal/retrieval"
	"github.com/atriumhq/atrium/internal/store"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store        store.Store
	Objects      objectstore.ObjectStore
	Index        *retrieval.CorpusIndex
	Ingester     *retrieval.Ingester
	Orchestrator *chat.Orchestrator

	BucketPrefix string
	Upload       config.UploadConfig
	Version      string
}

// New creates a Handlers instance with all dependencies.
func New(s store.Store, objects objectstore.ObjectStore, index *retrieval.CorpusIndex, ing *retrieval.Ingester, orch *chat.Orchestrator, cfg *config.Config) *Handlers {
	return &Handlers{
		Store:        s,
		Objects:      objects,
		Index:        index,
		Ingester:     ing,
		Orchestrator: orch,
		BucketPrefix: cfg.Object.BucketPrefix,
		Upload:       cfg.Upload,
		Version:      cfg.Version,
	}
}

// bucketFor maps an agent to its object-store bucket.
func (h *Handlers) bucketFor(agentID string) string {
	return h.BucketPrefix + agentID
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps store failures onto HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("%s %q not found", nf.Entity, nf.Key))
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
