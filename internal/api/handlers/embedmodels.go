package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/beaconhq/beacon/internal/indexstore"
	"github.com/beaconhq/beacon/internal/migration"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/queue"
)

// EmbedModelHandler is the admin surface for embedding models and
// zero-downtime model migration.
type EmbedModelHandler struct {
	manager *migration.Manager
	store   indexstore.ModelStore
	client  *queue.Client
}

func NewEmbedModelHandler(manager *migration.Manager, store indexstore.ModelStore, client *queue.Client) *EmbedModelHandler {
	return &EmbedModelHandler{manager: manager, store: store, client: client}
}

func (h *EmbedModelHandler) List(w http.ResponseWriter, r *http.Request) {
	ms, err := h.store.ListModels(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": ms, "count": len(ms)})
}

func (h *EmbedModelHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.manager.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type migrateRequest struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Dim      int    `json:"dim"`
}

// Migrate introduces a new embedding model. A second concurrent migration
// is rejected with 409 and leaves the running one untouched.
func (h *EmbedModelHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" || req.Dim <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and dim required"})
		return
	}
	if req.Provider == "" {
		req.Provider = "openai"
	}

	model, err := h.manager.Start(r.Context(), req.Name, req.Provider, req.Dim)
	if err != nil {
		if errors.Is(err, migration.ErrMigrationInProgress) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	// The first model ever becomes primary outright and needs no backfill.
	if model.Status == models.ModelStatusSecondary {
		if err := h.client.EnqueueMigrationBackfill(model.ID); err != nil {
			writeJSON(w, http.StatusCreated, map[string]interface{}{"model": model, "warning": "backfill not enqueued"})
			return
		}
	}
	writeJSON(w, http.StatusCreated, model)
}
