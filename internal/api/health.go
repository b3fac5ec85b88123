package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/campuskv/campuskv/internal/storage"
)

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Details   any       `json:"details,omitempty"`
}

// HealthChecker defines the interface for health checks
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthManager manages health checks
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	status   map[string]HealthStatus
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		status:   make(map[string]HealthStatus),
	}
}

// RegisterChecker registers a health checker
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// RunHealthChecks runs all registered health checks
func (hm *HealthManager) RunHealthChecks(ctx context.Context) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	for name, checker := range hm.checkers {
		hm.status[name] = checker.Check(ctx)
	}
}

// GetStatus returns the current health status
func (hm *HealthManager) GetStatus() map[string]HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := make(map[string]HealthStatus)
	for k, v := range hm.status {
		status[k] = v
	}
	return status
}

// StorageHealthChecker checks row table health
type StorageHealthChecker struct {
	store storage.RowStore
}

// NewStorageHealthChecker creates a new storage health checker
func NewStorageHealthChecker(store storage.RowStore) *StorageHealthChecker {
	return &StorageHealthChecker{store: store}
}

// Check implements HealthChecker
func (c *StorageHealthChecker) Check(ctx context.Context) HealthStatus {
	start := time.Now()
	_, err := c.store.Get("__health_check__")
	duration := time.Since(start)

	// A missing probe key still proves the table answers reads.
	var notFound *storage.ErrKeyNotFound
	if err != nil && !errors.As(err, &notFound) {
		return HealthStatus{
			Status:    "error",
			Message:   "storage health check failed",
			Timestamp: time.Now(),
			Details: map[string]interface{}{
				"error":    err.Error(),
				"duration": duration.String(),
			},
		}
	}

	return HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"duration": duration.String(),
		},
	}
}
