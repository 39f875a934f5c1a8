// Package v1 provides API v1 data types and handlers.
package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"engram/internal/search"
)

// Error codes for API responses.
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendJSON writes a JSON response with the given status code.
func SendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// SendError writes an error response.
func SendError(w http.ResponseWriter, status int, code, message string) {
	SendJSON(w, status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// SearchRequest represents a search request.
type SearchRequest struct {
	Query      string  `json:"query"`
	OwnerID    string  `json:"owner_id,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
	Collection string  `json:"collection,omitempty"` // "messages"|"facts", empty = both
	Mode       string  `json:"mode,omitempty"`       // "keyword"|"semantic"|"hybrid"
	Limit      int     `json:"limit,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
	ForceCloud bool    `json:"force_cloud,omitempty"`
}

// SearchResponse wraps ranked results with how they were produced.
type SearchResponse struct {
	Results []search.SearchResult `json:"results"`
	Stats   search.Stats          `json:"stats"`
}

// ContextRequest represents a context enrichment request.
type ContextRequest struct {
	Query   string `json:"query"`
	OwnerID string `json:"owner_id,omitempty"`
}

// InsertMessageRequest represents a durable message write.
type InsertMessageRequest struct {
	Content   string         `json:"content"`
	Role      string         `json:"role,omitempty"`
	OwnerID   string         `json:"owner_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// InsertFactRequest represents a durable fact write.
type InsertFactRequest struct {
	Content  string         `json:"content"`
	Category string         `json:"category,omitempty"`
	OwnerID  string         `json:"owner_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// InsertResponse returns the id assigned to a durable write.
type InsertResponse struct {
	ID string `json:"id"`
}

// ResyncResponse reports the index size after a rebuild.
type ResyncResponse struct {
	Indexed int `json:"indexed"`
}

// StatsResponse reports index health. LastResync is zero when no
// resync has completed yet.
type StatsResponse struct {
	Indexed     int       `json:"indexed"`
	MaxItems    int       `json:"max_items"`
	NeedsResync bool      `json:"needs_resync"`
	LastResync  time.Time `json:"last_resync,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
}
