package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"engram/internal/search"
)

// HandleSearch runs a hybrid search.
func (rt *Router) HandleSearch(w http.ResponseWriter, req *http.Request) {
	var body SearchRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if body.Query == "" {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Query is required")
		return
	}

	resp, err := rt.svc.Orchestrator.Search(req.Context(), body.Query, search.Options{
		OwnerID:    rt.owner(body.OwnerID),
		SessionID:  body.SessionID,
		Collection: body.Collection,
		Mode:       search.SearchMode(body.Mode),
		Limit:      body.Limit,
		Threshold:  body.Threshold,
		ForceCloud: body.ForceCloud,
	})
	if err != nil {
		if errors.Is(err, search.ErrInvalidInput) {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if resp.Results == nil {
		resp.Results = []search.SearchResult{}
	}
	SendJSON(w, http.StatusOK, SearchResponse{Results: resp.Results, Stats: resp.Stats})
}

// HandleContext builds the enriched context block for a prompt.
func (rt *Router) HandleContext(w http.ResponseWriter, req *http.Request) {
	var body ContextRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if body.Query == "" {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Query is required")
		return
	}

	enriched := rt.svc.Context.Build(req.Context(), body.Query, rt.owner(body.OwnerID))
	if enriched.Facts == nil {
		enriched.Facts = []search.SearchResult{}
	}
	if enriched.Messages == nil {
		enriched.Messages = []search.SearchResult{}
	}
	SendJSON(w, http.StatusOK, enriched)
}
