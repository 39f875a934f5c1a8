package v1

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"engram/internal/search"
)

// Router wraps v1 API dependencies.
type Router struct {
	svc       *search.Service
	ownerID   string
	version   string
	startTime time.Time
}

// NewRouter creates a new v1 API router. ownerID is the default owner
// applied to requests that do not name one.
func NewRouter(svc *search.Service, ownerID, version string) *Router {
	return &Router{
		svc:       svc,
		ownerID:   ownerID,
		version:   version,
		startTime: time.Now(),
	}
}

// RegisterRoutes mounts the v1 API under /api/v1.
func (rt *Router) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/search", rt.HandleSearch).Methods(http.MethodPost)
	api.HandleFunc("/context", rt.HandleContext).Methods(http.MethodPost)
	api.HandleFunc("/messages", rt.HandleInsertMessage).Methods(http.MethodPost)
	api.HandleFunc("/facts", rt.HandleInsertFact).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}", rt.HandleDeleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/facts/{id}", rt.HandleDeleteFact).Methods(http.MethodDelete)
	api.HandleFunc("/resync", rt.HandleResync).Methods(http.MethodPost)
	api.HandleFunc("/stats", rt.HandleStats).Methods(http.MethodGet)
	api.HandleFunc("/health", rt.HandleHealth).Methods(http.MethodGet)
}

// owner resolves the effective owner id for a request.
func (rt *Router) owner(requested string) string {
	if requested != "" {
		return requested
	}
	return rt.ownerID
}
