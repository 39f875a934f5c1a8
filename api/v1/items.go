package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"engram/internal/search"
)

// HandleInsertMessage durably writes a message and indexes it.
func (rt *Router) HandleInsertMessage(w http.ResponseWriter, req *http.Request) {
	var body InsertMessageRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if body.Content == "" {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Content is required")
		return
	}
	role := body.Role
	if role == "" {
		role = "user"
	}

	id, err := rt.svc.Indexer.Insert(req.Context(), search.IndexedItem{
		Content:    body.Content,
		Role:       role,
		OwnerID:    rt.owner(body.OwnerID),
		SessionID:  body.SessionID,
		Collection: search.CollectionMessages,
		Metadata:   body.Metadata,
	})
	if err != nil {
		sendInsertError(w, err)
		return
	}
	SendJSON(w, http.StatusCreated, InsertResponse{ID: id})
}

// HandleInsertFact durably writes a fact and indexes it.
func (rt *Router) HandleInsertFact(w http.ResponseWriter, req *http.Request) {
	var body InsertFactRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if body.Content == "" {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Content is required")
		return
	}
	category := body.Category
	if category == "" {
		category = "general"
	}

	id, err := rt.svc.Indexer.Insert(req.Context(), search.IndexedItem{
		Content:    body.Content,
		Category:   category,
		OwnerID:    rt.owner(body.OwnerID),
		Collection: search.CollectionFacts,
		Metadata:   body.Metadata,
	})
	if err != nil {
		sendInsertError(w, err)
		return
	}
	SendJSON(w, http.StatusCreated, InsertResponse{ID: id})
}

// HandleDeleteMessage removes a message from the store and the index.
func (rt *Router) HandleDeleteMessage(w http.ResponseWriter, req *http.Request) {
	rt.deleteItem(w, req, search.CollectionMessages)
}

// HandleDeleteFact removes a fact from the store and the index.
func (rt *Router) HandleDeleteFact(w http.ResponseWriter, req *http.Request) {
	rt.deleteItem(w, req, search.CollectionFacts)
}

func (rt *Router) deleteItem(w http.ResponseWriter, req *http.Request, collection string) {
	id := mux.Vars(req)["id"]
	if id == "" {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Id is required")
		return
	}
	if err := rt.svc.Indexer.Remove(req.Context(), collection, id); err != nil {
		if errors.Is(err, search.ErrCloudUnavailable) {
			SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Cloud store unavailable")
			return
		}
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sendInsertError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidInput):
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, search.ErrCloudUnavailable):
		SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Cloud store unavailable")
	default:
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
