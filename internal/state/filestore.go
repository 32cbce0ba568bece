package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists device state as a single JSON document on disk.
// The whole document is held in memory and rewritten on every save.
type FileStore struct {
	path    string
	mu      sync.Mutex
	devices map[string]DeviceState
}

// NewFileStore creates a store backed by the given file path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Init loads the existing document or creates an empty one. Calling Init
// again reloads from disk.
func (s *FileStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.devices = make(map[string]DeviceState)
		return s.writeLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	devices := make(map[string]DeviceState)
	if err := json.Unmarshal(data, &devices); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}

	s.devices = devices
	return nil
}

// Load returns the persisted state for a device, and whether it exists
func (s *FileStore) Load(device string) (DeviceState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.devices == nil {
		return DeviceState{}, false, fmt.Errorf("state store is not initialized")
	}

	st, ok := s.devices[device]
	return st, ok, nil
}

// Save persists the state for a device
func (s *FileStore) Save(device string, st DeviceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.devices == nil {
		return fmt.Errorf("state store is not initialized")
	}

	s.devices[device] = st
	return s.writeLocked()
}

func (s *FileStore) writeLocked() error {
	data, err := json.MarshalIndent(s.devices, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
