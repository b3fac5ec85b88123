package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/campuskv/campuskv/internal/broadcast"
	kvErr "github.com/campuskv/campuskv/internal/errors"
	"github.com/campuskv/campuskv/internal/storage"
)

// maxValueSize bounds a single row value accepted over the wire.
const maxValueSize = 4 * 1024 * 1024

// Handler handles HTTP requests for the shared row table
type Handler struct {
	store         *storage.Table
	hub           *broadcast.Hub
	metrics       *Metrics
	healthManager *HealthManager
	isSensitive   func(key string) bool
}

// NewHandler creates a new API handler
func NewHandler(store *storage.Table, hub *broadcast.Hub, metrics *Metrics, healthManager *HealthManager, isSensitive func(string) bool) *Handler {
	if isSensitive == nil {
		isSensitive = func(string) bool { return false }
	}
	return &Handler{
		store:         store,
		hub:           hub,
		metrics:       metrics,
		healthManager: healthManager,
		isSensitive:   isSensitive,
	}
}

// GetValue handles GET /api/v1/keys/{key}
func (h *Handler) GetValue(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		h.handleError(w, r, kvErr.New(kvErr.ErrorTypeInvalidInput, "key is required", nil))
		return
	}

	row, err := h.store.Get(key)
	if err != nil {
		var notFound *storage.ErrKeyNotFound
		if errors.As(err, &notFound) {
			h.handleError(w, r, kvErr.New(kvErr.ErrorTypeNotFound, "key not found", err))
			return
		}
		h.handleError(w, r, kvErr.New(kvErr.ErrorTypeStorage, "failed to read row", err))
		return
	}

	h.writeJSON(w, row, http.StatusOK)
}

// SetValue handles PUT /api/v1/keys/{key}. The request body is the raw
// JSON value; the originating context is carried in the X-Origin header.
func (h *Handler) SetValue(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		h.handleError(w, r, kvErr.New(kvErr.ErrorTypeInvalidInput, "key is required", nil))
		return
	}

	if h.isSensitive(key) {
		h.handleError(w, r, kvErr.New(kvErr.ErrorTypeInvalidInput, "sensitive keys are not persisted remotely", nil))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxValueSize+1))
	if err != nil {
		h.handleError(w, r, kvErr.New(kvErr.ErrorTypeInternal, "failed to read request body", err))
		return
	}
	if len(body) > maxValueSize {
		h.handleError(w, r, kvErr.New(kvErr.ErrorTypeInvalidInput, "value too large", nil))
		return
	}
	if !json.Valid(body) {
		h.handleError(w, r, kvErr.New(kvErr.ErrorTypeInvalidInput, "value must be valid JSON", nil))
		return
	}

	origin := r.Header.Get("X-Origin")

	row, err := h.store.Upsert(key, body, origin)
	if err != nil {
		var quota *storage.ErrQuotaExceeded
		if errors.As(err, &quota) {
			h.handleError(w, r, kvErr.New(kvErr.ErrorTypeQuota, "table quota exceeded", err))
			return
		}
		h.handleError(w, r, kvErr.New(kvErr.ErrorTypeStorage, "failed to upsert row", err))
		return
	}

	h.hub.Publish(broadcast.Event{
		Key:       row.Key,
		Value:     row.Value,
		Origin:    row.Origin,
		UpdatedAt: row.UpdatedAt,
	})
	if h.metrics != nil {
		h.metrics.EventPublished()
		h.metrics.UpdateStorageMetrics(h.store.GetMetrics())
	}

	h.writeJSON(w, row, http.StatusOK)
}

// DeleteValue handles DELETE /api/v1/keys/{key}
func (h *Handler) DeleteValue(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		h.handleError(w, r, kvErr.New(kvErr.ErrorTypeInvalidInput, "key is required", nil))
		return
	}

	if err := h.store.Delete(key); err != nil {
		var notFound *storage.ErrKeyNotFound
		if errors.As(err, &notFound) {
			h.handleError(w, r, kvErr.New(kvErr.ErrorTypeNotFound, "key not found", err))
			return
		}
		h.handleError(w, r, kvErr.New(kvErr.ErrorTypeStorage, "failed to delete row", err))
		return
	}

	h.hub.Publish(broadcast.Event{
		Key:       key,
		Origin:    r.Header.Get("X-Origin"),
		Deleted:   true,
		UpdatedAt: time.Now(),
	})
	if h.metrics != nil {
		h.metrics.EventPublished()
		h.metrics.UpdateStorageMetrics(h.store.GetMetrics())
	}

	w.WriteHeader(http.StatusOK)
}

// ListValues handles GET /api/v1/keys
func (h *Handler) ListValues(w http.ResponseWriter, r *http.Request) {
	rows := h.store.List()
	h.writeJSON(w, rows, http.StatusOK)
}

// HealthCheckHandler handles GET /api/v1/health
func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.healthManager.RunHealthChecks(r.Context())
	status := h.healthManager.GetStatus()

	healthy := true
	for _, s := range status {
		if s.Status != "healthy" {
			healthy = false
			break
		}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, code)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return
	}
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if h.metrics != nil {
		if kv, ok := err.(*kvErr.KVError); ok {
			h.metrics.ObserveError(r.Method, r.URL.Path, string(kv.Type))
		}
	}
	writeError(w, err)
}
