package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/search"
)

func newTestRouter(t *testing.T) (*mux.Router, *search.Service) {
	t.Helper()

	svc := search.NewService(search.ServiceOptions{
		OwnerID:  "owner-1",
		Embedder: search.NewSimpleEmbedder(64),
		Config:   search.DefaultConfig(),
		Logger:   zerolog.Nop(),
	})

	r := mux.NewRouter()
	NewRouter(svc, "owner-1", "test").RegisterRoutes(r)
	return r, svc
}

func doJSON(t *testing.T, r *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHandleSearch_Validation(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/search", SearchRequest{Query: ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewBufferString("{broken"))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var apiErr ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
	assert.Equal(t, ErrCodeInvalidRequest, apiErr.Error.Code)
}

func TestHandleSearch_EmptyIndex(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/search", SearchRequest{Query: "anything"})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp SearchResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Empty(t, resp.Results)
	assert.Equal(t, "local", resp.Stats.Source)
}

func TestInsertMessageThenSearch(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/messages", InsertMessageRequest{
		Content:   "I live in Boston now",
		Role:      "user",
		SessionID: "session-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var inserted InsertResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&inserted))
	require.NotEmpty(t, inserted.ID)

	rr = doJSON(t, r, http.MethodPost, "/api/v1/search", SearchRequest{Query: "What did I say about Boston?"})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp SearchResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, inserted.ID, resp.Results[0].ID)
	assert.Contains(t, resp.Results[0].Content, "Boston")
}

func TestInsertMessage_Validation(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/messages", InsertMessageRequest{Content: ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInsertFactAndContext(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/facts", InsertFactRequest{
		Content:  "prefers espresso over drip coffee",
		Category: "preference",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, r, http.MethodPost, "/api/v1/messages", InsertMessageRequest{
		Content: "ordered an espresso this morning",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, r, http.MethodPost, "/api/v1/context", ContextRequest{Query: "espresso"})
	require.Equal(t, http.StatusOK, rr.Code)

	var enriched search.EnrichedContext
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&enriched))
	assert.Len(t, enriched.Facts, 1)
	assert.Len(t, enriched.Messages, 1)
	assert.Equal(t, "preference", enriched.Facts[0].Category)
}

func TestDeleteMessage(t *testing.T) {
	r, svc := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/messages", InsertMessageRequest{Content: "short lived"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var inserted InsertResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&inserted))

	rr = doJSON(t, r, http.MethodDelete, "/api/v1/messages/"+inserted.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, svc.Index.Has(inserted.ID))
}

func TestHandleStats(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/messages", InsertMessageRequest{Content: "one indexed item"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, r, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var stats StatsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 5000, stats.MaxItems)
	assert.False(t, stats.NeedsResync)
}

func TestHandleResync_WithoutCloud(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/resync", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandleHealth(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
}
