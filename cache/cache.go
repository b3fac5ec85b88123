// Package cache is the synchronous per-context key-value store that fronts
// the remote row table. Reads and writes never suspend; a hard byte quota
// models the capacity ceiling of the backing context.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Metrics tracks cache metrics
type Metrics struct {
	Keys       int64
	Size       int64
	HitCount   int64
	MissCount  int64
	WriteCount int64
	ErrorCount int64
}

// Cache is a quota-limited string-keyed JSON store
type Cache struct {
	data    map[string][]byte
	mutex   sync.RWMutex
	metrics *Metrics
	maxSize int64
}

// New creates a cache with the given byte quota. maxSize <= 0 disables
// the quota.
func New(maxSize int64) *Cache {
	return &Cache{
		data:    make(map[string][]byte),
		metrics: &Metrics{},
		maxSize: maxSize,
	}
}

// Get returns the cached value for key and whether it was present
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	value, exists := c.data[key]
	if !exists {
		atomic.AddInt64(&c.metrics.MissCount, 1)
		return nil, false
	}
	atomic.AddInt64(&c.metrics.HitCount, 1)
	return value, true
}

// Set stores a value for key. A write that would exceed the quota fails
// and leaves the prior value intact.
func (c *Cache) Set(key string, value []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var oldSize int64
	old, exists := c.data[key]
	if exists {
		oldSize = int64(len(old))
	}

	delta := int64(len(value)) - oldSize
	size := atomic.LoadInt64(&c.metrics.Size)
	if c.maxSize > 0 && size+delta > c.maxSize {
		atomic.AddInt64(&c.metrics.ErrorCount, 1)
		return &ErrQuotaExceeded{CurrentSize: size, MaxSize: c.maxSize}
	}

	c.data[key] = value
	atomic.AddInt64(&c.metrics.Size, delta)
	atomic.AddInt64(&c.metrics.WriteCount, 1)
	if !exists {
		atomic.AddInt64(&c.metrics.Keys, 1)
	}
	return nil
}

// Delete removes a key from the cache
func (c *Cache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	old, exists := c.data[key]
	if !exists {
		return
	}
	atomic.AddInt64(&c.metrics.Size, -int64(len(old)))
	delete(c.data, key)
	atomic.AddInt64(&c.metrics.Keys, -1)
}

// Keys returns the number of cached keys
func (c *Cache) Keys() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// GetMetrics returns a copy of the current cache metrics
func (c *Cache) GetMetrics() Metrics {
	return Metrics{
		Keys:       atomic.LoadInt64(&c.metrics.Keys),
		Size:       atomic.LoadInt64(&c.metrics.Size),
		HitCount:   atomic.LoadInt64(&c.metrics.HitCount),
		MissCount:  atomic.LoadInt64(&c.metrics.MissCount),
		WriteCount: atomic.LoadInt64(&c.metrics.WriteCount),
		ErrorCount: atomic.LoadInt64(&c.metrics.ErrorCount),
	}
}

// ErrQuotaExceeded is returned when a write would exceed the cache quota
type ErrQuotaExceeded struct {
	CurrentSize int64
	MaxSize     int64
}

func (e *ErrQuotaExceeded) Error() string {
	return fmt.Sprintf("cache quota exceeded: %d of %d bytes used", e.CurrentSize, e.MaxSize)
}
