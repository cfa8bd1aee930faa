package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/connectors"
	"github.com/beaconhq/beacon/internal/indexstore"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/queue"
)

// IndexingHandler is the admin surface for connector-credential pairs:
// create, list, pause/resume, trigger runs and inspect attempt history.
type IndexingHandler struct {
	store    indexstore.Store
	client   *queue.Client
	registry *connectors.Registry
}

func NewIndexingHandler(store indexstore.Store, client *queue.Client, registry *connectors.Registry) *IndexingHandler {
	return &IndexingHandler{store: store, client: client, registry: registry}
}

type createCCPRequest struct {
	Name            string          `json:"name"`
	SourceType      string          `json:"source_type"`
	Config          json.RawMessage `json:"config"`
	CredentialRef   string          `json:"credential_ref"`
	RefreshInterval int             `json:"refresh_interval_secs"`
}

func (h *IndexingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCCPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" || req.SourceType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and source_type required"})
		return
	}
	if !h.registry.Supports(req.SourceType) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown source_type: " + req.SourceType})
		return
	}
	if req.RefreshInterval <= 0 {
		req.RefreshInterval = 600
	}
	if len(req.Config) == 0 {
		req.Config = json.RawMessage("{}")
	}

	ccp := &models.ConnectorCredentialPair{
		Name:            req.Name,
		SourceType:      req.SourceType,
		Config:          req.Config,
		CredentialRef:   req.CredentialRef,
		RefreshInterval: req.RefreshInterval,
	}
	if err := h.store.CreateCCP(r.Context(), ccp); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	// Freshly created pairs get their first run immediately rather than
	// waiting out a refresh interval.
	if err := h.client.EnqueueIndexRun(ccp.ID, true); err != nil {
		writeJSON(w, http.StatusCreated, map[string]interface{}{"ccp": ccp, "warning": "initial run not enqueued"})
		return
	}
	writeJSON(w, http.StatusCreated, ccp)
}

func (h *IndexingHandler) List(w http.ResponseWriter, r *http.Request) {
	ccps, err := h.store.ListCCPs(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ccps": ccps, "count": len(ccps)})
}

func (h *IndexingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	ccp, err := h.store.GetCCP(r.Context(), id)
	if errors.Is(err, indexstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ccp not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ccp)
}

// Run triggers an on-demand index run. Enqueueing is idempotent per pair,
// so hammering this endpoint produces at most one queued run.
func (h *IndexingHandler) Run(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	ccp, err := h.store.GetCCP(r.Context(), id)
	if errors.Is(err, indexstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ccp not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if ccp.Status != models.CCPStatusActive {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "ccp is " + ccp.Status})
		return
	}
	if err := h.client.EnqueueIndexRun(id, true); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

func (h *IndexingHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.CCPStatusPaused)
}

func (h *IndexingHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.CCPStatusActive)
}

func (h *IndexingHandler) setStatus(w http.ResponseWriter, r *http.Request, status string) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.store.UpdateCCPStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, indexstore.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ccp not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// Delete marks the pair deleting and hands document removal to a
// background prune task. The response returns before the documents are
// gone.
func (h *IndexingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.store.UpdateCCPStatus(r.Context(), id, models.CCPStatusDeleting); err != nil {
		if errors.Is(err, indexstore.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ccp not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if err := h.client.EnqueueCCPPrune(id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "deleting"})
}

func (h *IndexingHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	attempts, err := h.store.ListAttempts(r.Context(), id, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"attempts": attempts, "count": len(attempts)})
}

func (h *IndexingHandler) Sources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"source_types": h.registry.SourceTypes()})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ccp ID"})
		return uuid.Nil, false
	}
	return id, true
}
