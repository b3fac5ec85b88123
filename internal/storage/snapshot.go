package storage

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Snapshotter defines the interface for snapshot operations
type Snapshotter interface {
	Create(data map[string]Row) (string, error)
	Restore(path string) (map[string]Row, error)
}

// FileSnapshotter implements Snapshotter using gob files on disk
type FileSnapshotter struct {
	snapshotDir string
}

// NewFileSnapshotter creates a new FileSnapshotter instance
func NewFileSnapshotter(snapshotDir string) (*FileSnapshotter, error) {
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSnapshotter{snapshotDir: snapshotDir}, nil
}

// Create saves the current state to a snapshot file
func (s *FileSnapshotter) Create(data map[string]Row) (string, error) {
	timestamp := time.Now().UnixNano()
	filename := fmt.Sprintf("snapshot_%d.gob", timestamp)
	path := filepath.Join(s.snapshotDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(data); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to encode snapshot data: %w", err)
	}

	return path, nil
}

// Restore loads a snapshot from a file
func (s *FileSnapshotter) Restore(path string) (map[string]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	var data map[string]Row
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot data: %w", err)
	}

	return data, nil
}

// Latest returns the path of the most recent snapshot, or "" if none exist
func (s *FileSnapshotter) Latest() (string, error) {
	files, err := filepath.Glob(filepath.Join(s.snapshotDir, "snapshot_*.gob"))
	if err != nil {
		return "", fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(files) == 0 {
		return "", nil
	}
	sort.Strings(files)
	return files[len(files)-1], nil
}
