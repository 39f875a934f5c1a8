package v1

import (
	"errors"
	"net/http"
	"time"

	"engram/internal/search"
)

// HandleResync rebuilds the local index from the cloud store.
func (rt *Router) HandleResync(w http.ResponseWriter, req *http.Request) {
	ownerID := rt.owner(req.URL.Query().Get("owner_id"))

	if err := rt.svc.Indexer.Resync(req.Context(), ownerID); err != nil {
		if errors.Is(err, search.ErrCloudUnavailable) {
			SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Cloud store unavailable")
			return
		}
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	SendJSON(w, http.StatusOK, ResyncResponse{Indexed: rt.svc.Index.Count()})
}

// HandleStats reports index health.
func (rt *Router) HandleStats(w http.ResponseWriter, req *http.Request) {
	ownerID := rt.owner(req.URL.Query().Get("owner_id"))

	needsResync := false
	if rt.svc.Persister != nil {
		needsResync = rt.svc.Persister.NeedsResync()
	}
	SendJSON(w, http.StatusOK, StatsResponse{
		Indexed:     rt.svc.Index.Count(),
		MaxItems:    rt.svc.Config().MaxItems,
		NeedsResync: needsResync,
		LastResync:  rt.svc.Indexer.LastResync(ownerID),
	})
}

// HandleHealth reports liveness.
func (rt *Router) HandleHealth(w http.ResponseWriter, req *http.Request) {
	SendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: rt.version,
		Uptime:  int64(time.Since(rt.startTime).Seconds()),
	})
}
