package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/campuskv/campuskv/internal/wal"
)

// Row is a single (key, value) record in the shared table. Value is an
// opaque JSON blob; the table never interprets its structure.
type Row struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Origin    string          `json:"origin,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RowStore defines the interface for the shared row table
type RowStore interface {
	Get(key string) (Row, error)
	Upsert(key string, value json.RawMessage, origin string) (Row, error)
	Delete(key string) error
	List() []Row
	GetMetrics() *TableMetrics
}

// TableMetrics tracks row table metrics
type TableMetrics struct {
	TotalRows   int64
	TotalSize   int64
	ReadCount   int64
	WriteCount  int64
	DeleteCount int64
	ErrorCount  int64
}

// Table implements RowStore with an in-memory map backed by a WAL and
// periodic snapshots. Upserts are last-write-wins in arrival order; there
// is no version token and no conflict detection.
type Table struct {
	rows        map[string]*Row
	mutex       sync.RWMutex
	walWriter   wal.Writer
	snapshotter Snapshotter
	metrics     *TableMetrics
	maxSize     int64
}

// NewTable creates a new Table instance. maxSize <= 0 disables the quota.
func NewTable(walWriter wal.Writer, snapshotter Snapshotter, maxSize int64) *Table {
	return &Table{
		rows:        make(map[string]*Row),
		walWriter:   walWriter,
		snapshotter: snapshotter,
		metrics:     &TableMetrics{},
		maxSize:     maxSize,
	}
}

// Get retrieves the row for the given key
func (t *Table) Get(key string) (Row, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	atomic.AddInt64(&t.metrics.ReadCount, 1)

	row, exists := t.rows[key]
	if !exists {
		atomic.AddInt64(&t.metrics.ErrorCount, 1)
		return Row{}, &ErrKeyNotFound{Key: key}
	}
	return *row, nil
}

// Upsert replaces the row for the given key, creating it on first write.
// The previous row is left intact when the write would exceed the quota.
func (t *Table) Upsert(key string, value json.RawMessage, origin string) (Row, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var oldSize int64
	old, exists := t.rows[key]
	if exists {
		oldSize = int64(len(old.Value))
	}

	delta := int64(len(value)) - oldSize
	if t.maxSize > 0 && atomic.LoadInt64(&t.metrics.TotalSize)+delta > t.maxSize {
		atomic.AddInt64(&t.metrics.ErrorCount, 1)
		return Row{}, &ErrQuotaExceeded{
			CurrentSize: atomic.LoadInt64(&t.metrics.TotalSize),
			MaxSize:     t.maxSize,
		}
	}

	now := time.Now()
	entry := &wal.Entry{
		Operation: "UPSERT",
		Key:       key,
		Value:     value,
		Origin:    origin,
		UpdatedAt: now.UnixNano(),
	}
	if err := t.walWriter.Append(entry); err != nil {
		atomic.AddInt64(&t.metrics.ErrorCount, 1)
		return Row{}, err
	}

	row := &Row{
		Key:       key,
		Value:     value,
		Origin:    origin,
		UpdatedAt: now,
	}
	t.rows[key] = row

	atomic.AddInt64(&t.metrics.TotalSize, delta)
	atomic.AddInt64(&t.metrics.WriteCount, 1)
	if !exists {
		atomic.AddInt64(&t.metrics.TotalRows, 1)
	}
	return *row, nil
}

// Delete removes the row for the given key
func (t *Table) Delete(key string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	old, exists := t.rows[key]
	if !exists {
		atomic.AddInt64(&t.metrics.ErrorCount, 1)
		return &ErrKeyNotFound{Key: key}
	}

	entry := &wal.Entry{
		Operation: "DELETE",
		Key:       key,
		UpdatedAt: time.Now().UnixNano(),
	}
	if err := t.walWriter.Append(entry); err != nil {
		atomic.AddInt64(&t.metrics.ErrorCount, 1)
		return err
	}

	atomic.AddInt64(&t.metrics.TotalSize, -int64(len(old.Value)))
	delete(t.rows, key)
	atomic.AddInt64(&t.metrics.DeleteCount, 1)
	atomic.AddInt64(&t.metrics.TotalRows, -1)
	return nil
}

// List returns a snapshot of all rows
func (t *Table) List() []Row {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	rows := make([]Row, 0, len(t.rows))
	for _, row := range t.rows {
		rows = append(rows, *row)
	}
	return rows
}

// CreateSnapshot persists the current table state
func (t *Table) CreateSnapshot() (string, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	dataCopy := make(map[string]Row, len(t.rows))
	for k, v := range t.rows {
		dataCopy[k] = *v
	}
	return t.snapshotter.Create(dataCopy)
}

// RestoreSnapshot replaces the table state from a snapshot file
func (t *Table) RestoreSnapshot(path string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	data, err := t.snapshotter.Restore(path)
	if err != nil {
		atomic.AddInt64(&t.metrics.ErrorCount, 1)
		return err
	}

	t.rows = make(map[string]*Row, len(data))
	var totalSize int64
	for k, v := range data {
		row := v
		t.rows[k] = &row
		totalSize += int64(len(v.Value))
	}

	atomic.StoreInt64(&t.metrics.TotalRows, int64(len(data)))
	atomic.StoreInt64(&t.metrics.TotalSize, totalSize)
	return nil
}

// ApplyWALEntry replays a single WAL entry during recovery, bypassing the
// WAL writer so recovery does not re-log itself.
func (t *Table) ApplyWALEntry(entry *wal.Entry) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	switch entry.Operation {
	case "UPSERT":
		var oldSize int64
		old, exists := t.rows[entry.Key]
		if exists {
			oldSize = int64(len(old.Value))
		}
		t.rows[entry.Key] = &Row{
			Key:       entry.Key,
			Value:     entry.Value,
			Origin:    entry.Origin,
			UpdatedAt: time.Unix(0, entry.UpdatedAt),
		}
		atomic.AddInt64(&t.metrics.TotalSize, int64(len(entry.Value))-oldSize)
		if !exists {
			atomic.AddInt64(&t.metrics.TotalRows, 1)
		}
	case "DELETE":
		if old, exists := t.rows[entry.Key]; exists {
			atomic.AddInt64(&t.metrics.TotalSize, -int64(len(old.Value)))
			delete(t.rows, entry.Key)
			atomic.AddInt64(&t.metrics.TotalRows, -1)
		}
	default:
		return fmt.Errorf("unknown WAL operation: %s", entry.Operation)
	}
	return nil
}

// GetMetrics returns the current table metrics
func (t *Table) GetMetrics() *TableMetrics {
	return &TableMetrics{
		TotalRows:   atomic.LoadInt64(&t.metrics.TotalRows),
		TotalSize:   atomic.LoadInt64(&t.metrics.TotalSize),
		ReadCount:   atomic.LoadInt64(&t.metrics.ReadCount),
		WriteCount:  atomic.LoadInt64(&t.metrics.WriteCount),
		DeleteCount: atomic.LoadInt64(&t.metrics.DeleteCount),
		ErrorCount:  atomic.LoadInt64(&t.metrics.ErrorCount),
	}
}

// ErrKeyNotFound is returned when a key has no row in the table
type ErrKeyNotFound struct {
	Key string
}

func (e *ErrKeyNotFound) Error() string {
	return "key not found: " + e.Key
}

// ErrQuotaExceeded is returned when a write would exceed the table quota
type ErrQuotaExceeded struct {
	CurrentSize int64
	MaxSize     int64
}

func (e *ErrQuotaExceeded) Error() string {
	return fmt.Sprintf("storage quota exceeded: %d of %d bytes used", e.CurrentSize, e.MaxSize)
}
