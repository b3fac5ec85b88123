package api

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// FileAPIKeyStore implements APIKeyStore using the filesystem
type FileAPIKeyStore struct {
	mu       sync.RWMutex
	filePath string
}

// NewFileAPIKeyStore creates a new file-based API key store
func NewFileAPIKeyStore(dataDir string) (*FileAPIKeyStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	return &FileAPIKeyStore{
		filePath: filepath.Join(dataDir, "api_keys.json"),
	}, nil
}

// SaveAPIKey saves an API key and its associated user
func (s *FileAPIKeyStore) SaveAPIKey(key string, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.loadKeys()
	if err != nil {
		return err
	}

	keys[key] = user
	return s.saveKeys(keys)
}

// GetAPIKey retrieves a user by API key
func (s *FileAPIKeyStore) GetAPIKey(key string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys, err := s.loadKeys()
	if err != nil {
		return nil, err
	}

	user, exists := keys[key]
	if !exists {
		return nil, errors.New("API key not found")
	}
	return user, nil
}

// DeleteAPIKey removes an API key
func (s *FileAPIKeyStore) DeleteAPIKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.loadKeys()
	if err != nil {
		return err
	}

	delete(keys, key)
	return s.saveKeys(keys)
}

func (s *FileAPIKeyStore) loadKeys() (map[string]*User, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*User), nil
		}
		return nil, err
	}

	var keys map[string]*User
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *FileAPIKeyStore) saveKeys(keys map[string]*User) error {
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, data, 0600)
}

// MemoryAPIKeyStore implements APIKeyStore in memory, for tests and for
// servers that provision keys at startup only.
type MemoryAPIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*User
}

// NewMemoryAPIKeyStore creates a new in-memory API key store
func NewMemoryAPIKeyStore() *MemoryAPIKeyStore {
	return &MemoryAPIKeyStore{keys: make(map[string]*User)}
}

// SaveAPIKey saves an API key and its associated user
func (s *MemoryAPIKeyStore) SaveAPIKey(key string, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = user
	return nil
}

// GetAPIKey retrieves a user by API key
func (s *MemoryAPIKeyStore) GetAPIKey(key string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, exists := s.keys[key]
	if !exists {
		return nil, errors.New("API key not found")
	}
	return user, nil
}

// DeleteAPIKey removes an API key
func (s *MemoryAPIKeyStore) DeleteAPIKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
