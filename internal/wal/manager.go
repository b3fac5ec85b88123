package wal

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Config contains configuration for WAL management
type Config struct {
	MaxFileSize    int64         // Maximum size of each WAL file in bytes
	MaxFiles       int           // Maximum number of WAL files to retain
	RotationPeriod time.Duration // Interval for periodic rotation
}

// Metrics tracks operational metrics for the WAL
type Metrics struct {
	TotalEntries     int64     // Total number of entries written
	TotalSize        int64     // Total size of all entries in bytes
	CurrentFileSize  int64     // Size of the current WAL file
	RotationCount    int64     // Number of rotations performed
	LastRotationTime time.Time // Timestamp of last rotation
	ErrorCount       int64     // Number of errors encountered
}

// Manager manages WAL files and operations
type Manager struct {
	config    Config
	dir       string
	current   *os.File
	encoder   *gob.Encoder
	metrics   Metrics
	mutex     sync.RWMutex
	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewManager creates a new WAL manager
func NewManager(dir string, config Config) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %v", err)
	}

	m := &Manager{
		config: config,
		dir:    dir,
		stopCh: make(chan struct{}),
	}

	if err := m.rotate(); err != nil {
		return nil, fmt.Errorf("failed to create initial WAL file: %v", err)
	}

	go m.rotationLoop()

	return m, nil
}

// Append writes an entry to the WAL
func (m *Manager) Append(entry *Entry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.metrics.CurrentFileSize >= m.config.MaxFileSize {
		if err := m.rotate(); err != nil {
			m.metrics.ErrorCount++
			return fmt.Errorf("failed to rotate WAL: %v", err)
		}
	}

	if err := m.encoder.Encode(entry); err != nil {
		m.metrics.ErrorCount++
		return fmt.Errorf("failed to encode WAL entry: %v", err)
	}

	entrySize := int64(len(entry.Key) + len(entry.Value))
	m.metrics.TotalEntries++
	m.metrics.TotalSize += entrySize
	m.metrics.CurrentFileSize += entrySize

	return nil
}

// Sync flushes the current WAL file to disk
func (m *Manager) Sync() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.current == nil {
		return nil
	}
	return m.current.Sync()
}

// Rotate creates a new WAL file
func (m *Manager) Rotate() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.rotate()
}

func (m *Manager) rotate() error {
	if m.current != nil {
		if err := m.current.Close(); err != nil {
			return fmt.Errorf("failed to close current WAL file: %v", err)
		}
	}

	timestamp := time.Now().Format("20060102150405.000000000")
	filename := filepath.Join(m.dir, fmt.Sprintf("wal-%s.log", timestamp))
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create new WAL file: %v", err)
	}

	m.current = file
	m.encoder = gob.NewEncoder(file)
	m.metrics.CurrentFileSize = 0
	m.metrics.RotationCount++
	m.metrics.LastRotationTime = time.Now()

	if err := m.cleanupOldFiles(); err != nil {
		return fmt.Errorf("failed to cleanup old WAL files: %v", err)
	}

	return nil
}

func (m *Manager) cleanupOldFiles() error {
	files, err := filepath.Glob(filepath.Join(m.dir, "wal-*.log"))
	if err != nil {
		return fmt.Errorf("failed to list WAL files: %v", err)
	}

	sort.Strings(files)

	if len(files) > m.config.MaxFiles {
		for _, file := range files[:len(files)-m.config.MaxFiles] {
			if err := os.Remove(file); err != nil {
				return fmt.Errorf("failed to remove old WAL file: %v", err)
			}
		}
	}

	return nil
}

// Recover replays all retained WAL entries in write order
func (m *Manager) Recover(handler func(*Entry) error) error {
	files, err := filepath.Glob(filepath.Join(m.dir, "wal-*.log"))
	if err != nil {
		return fmt.Errorf("failed to list WAL files: %v", err)
	}

	sort.Strings(files)

	for _, file := range files {
		if err := m.replayFile(file, handler); err != nil {
			return fmt.Errorf("failed to replay WAL file %s: %v", file, err)
		}
	}

	return nil
}

func (m *Manager) replayFile(path string, handler func(*Entry) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open WAL file: %v", err)
	}
	defer file.Close()

	decoder := gob.NewDecoder(file)
	for {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to decode WAL entry: %v", err)
		}
		if err := handler(&entry); err != nil {
			return err
		}
	}

	return nil
}

// GetMetrics returns a copy of the current WAL metrics
func (m *Manager) GetMetrics() Metrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.metrics
}

// Close stops background rotation and closes the current file
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stopCh)
		m.mutex.Lock()
		defer m.mutex.Unlock()
		if m.current != nil {
			err = m.current.Close()
			m.current = nil
		}
	})
	return err
}

// rotationLoop periodically rotates the WAL file
func (m *Manager) rotationLoop() {
	if m.config.RotationPeriod <= 0 {
		return
	}

	ticker := time.NewTicker(m.config.RotationPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Rotate(); err != nil {
				m.mutex.Lock()
				m.metrics.ErrorCount++
				m.mutex.Unlock()
			}
		case <-m.stopCh:
			return
		}
	}
}
