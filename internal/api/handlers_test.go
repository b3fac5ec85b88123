package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskv/campuskv/internal/broadcast"
	"github.com/campuskv/campuskv/internal/storage"
	"github.com/campuskv/campuskv/internal/wal"
)

type nopWAL struct{}

func (nopWAL) Append(*wal.Entry) error { return nil }
func (nopWAL) Sync() error             { return nil }
func (nopWAL) Close() error            { return nil }

func isSensitive(key string) bool {
	return key == "session"
}

func newTestRouter(t *testing.T, authManager *AuthManager) (http.Handler, *storage.Table, *broadcast.Hub) {
	t.Helper()

	table := storage.NewTable(nopWAL{}, nil, 0)
	hub := broadcast.NewHub(isSensitive)

	healthManager := NewHealthManager()
	healthManager.RegisterChecker("storage", NewStorageHealthChecker(table))

	handler := NewHandler(table, hub, nil, healthManager, isSensitive)
	return Router(handler, authManager, nil, nil), table, hub
}

func TestSetGetValue(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	body := []byte(`[{"id":"1","name":"A"}]`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/keys/teachers", bytes.NewReader(body))
	req.Header.Set("X-Origin", "ctx-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/keys/teachers", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var row storage.Row
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.Equal(t, "teachers", row.Key)
	assert.JSONEq(t, string(body), string(row.Value))
	assert.Equal(t, "ctx-1", row.Origin)
	assert.False(t, row.UpdatedAt.IsZero())
}

func TestGetMissingValue(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/keys/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", resp.Error.Type)
}

func TestSetValueRejectsInvalidJSON(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/keys/teachers", bytes.NewReader([]byte(`{not json`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetValueRejectsSensitiveKey(t *testing.T) {
	router, table, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/keys/session", bytes.NewReader([]byte(`"secret"`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, err := table.Get("session")
	assert.Error(t, err, "sensitive key must not be persisted")
}

func TestDeleteValue(t *testing.T) {
	router, table, _ := newTestRouter(t, nil)

	_, err := table.Upsert("gallery", json.RawMessage(`[]`), "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/keys/gallery", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = table.Get("gallery")
	assert.Error(t, err)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/keys/gallery", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListValues(t *testing.T) {
	router, table, _ := newTestRouter(t, nil)

	_, err := table.Upsert("teachers", json.RawMessage(`[]`), "")
	require.NoError(t, err)
	_, err = table.Upsert("students", json.RawMessage(`[]`), "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []storage.Row
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 2)
}

func TestHealthCheck(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status["storage"].Status)
}

func TestAuthEnforcement(t *testing.T) {
	authManager := NewAuthManager(NewMemoryAPIKeyStore())
	reader, err := authManager.CreateUser("reader", []Role{RoleRead})
	require.NoError(t, err)
	writer, err := authManager.CreateUser("writer", []Role{RoleWrite})
	require.NoError(t, err)

	router, _, _ := newTestRouter(t, authManager)

	// No key
	req := httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Read key can read
	req = httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil)
	req.Header.Set("X-API-Key", reader.APIKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Read key cannot write
	req = httptest.NewRequest(http.MethodPut, "/api/v1/keys/teachers", bytes.NewReader([]byte(`[]`)))
	req.Header.Set("X-API-Key", reader.APIKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Write key can write
	req = httptest.NewRequest(http.MethodPut, "/api/v1/keys/teachers", bytes.NewReader([]byte(`[]`)))
	req.Header.Set("X-API-Key", writer.APIKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays public
	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubscribeStreamsChanges(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, server.URL+"/api/v1/subscribe/teachers", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Give the hub subscription a moment to register before writing.
	time.Sleep(50 * time.Millisecond)

	body := []byte(`[{"id":"1","name":"A"}]`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, server.URL+"/api/v1/keys/teachers", bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var event broadcast.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "teachers", event.Key)
	assert.JSONEq(t, string(body), string(event.Value))
}

func TestSubscribeRejectsSensitiveKey(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscribe/session", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
