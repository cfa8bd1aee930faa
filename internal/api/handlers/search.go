package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/beaconhq/beacon/internal/api/middleware"
	"github.com/beaconhq/beacon/internal/embedding"
	"github.com/beaconhq/beacon/internal/retrieval"
)

type SearchHandler struct {
	retriever *retrieval.Retriever
}

func NewSearchHandler(retriever *retrieval.Retriever) *SearchHandler {
	return &SearchHandler{retriever: retriever}
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req retrieval.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query required"})
		return
	}

	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no authenticated principal"})
		return
	}
	req.Principal = principal

	resp, err := h.retriever.Search(r.Context(), req)
	if err != nil {
		if errors.Is(err, embedding.ErrNoPrimary) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no embedding model configured"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
