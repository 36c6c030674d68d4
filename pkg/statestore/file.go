package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is written into every state file. Files from a newer
// agent are refused rather than half-understood.
const StateVersion = 1

// ErrUnsupportedVersion is returned by Load for a state file written with a
// newer format.
var ErrUnsupportedVersion = errors.New("unsupported state file version")

// State is the on-disk form of the persisted facts. Channel handles are
// never persisted: they die with the process.
type State struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`

	ExternalDeviceID            string `json:"external_device_id,omitempty"`
	IsDeviceRegistered          bool   `json:"is_device_registered,omitempty"`
	DeviceUpdateServiceInstance string `json:"device_update_service_instance,omitempty"`
	MQTTBrokerHostname          string `json:"mqtt_broker_hostname,omitempty"`
}

// FileStore reads and writes a State as JSON. Writes go through a temporary
// file and a rename, so a crash leaves either the old or the new state.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore for path. Nothing is touched until the
// first Save or Load.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file path.
func (f *FileStore) Path() string { return f.path }

// Save stamps state with the current version and, if unset, the save time
// and replaces the file with it. Missing parent directories are created.
func (f *FileStore) Save(state *State) error {
	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Load returns the saved state, or nil without error when no file exists.
func (f *FileStore) Load() (*State, error) {
	f.mu.Lock()
	data, err := os.ReadFile(f.path)
	f.mu.Unlock()

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, state.Version)
	}
	return &state, nil
}

// Clear deletes the state file. A missing file is not an error.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Snapshot captures the persistable facts.
func (s *Store) Snapshot() *State {
	st := &State{}
	st.ExternalDeviceID, _ = s.ExternalDeviceID()
	st.IsDeviceRegistered = s.IsDeviceRegistered()
	st.DeviceUpdateServiceInstance, _ = s.DeviceUpdateServiceInstance()
	st.MQTTBrokerHostname, _ = s.MQTTBrokerHostname()
	return st
}

// Restore loads facts from a persisted state and clears the dirty flag.
// A nil state is a no-op.
func (s *Store) Restore(st *State) {
	if st == nil {
		return
	}
	s.SetExternalDeviceID(st.ExternalDeviceID)
	s.SetDeviceRegistered(st.IsDeviceRegistered)
	s.SetDeviceUpdateServiceInstance(st.DeviceUpdateServiceInstance)
	s.SetMQTTBrokerHostname(st.MQTTBrokerHostname)

	s.takeDirty()
}

// SaveTo writes the facts to f if anything changed since the last save.
// On failure the store stays dirty so the next call retries.
func (s *Store) SaveTo(f *FileStore) error {
	if !s.takeDirty() {
		return nil
	}
	err := f.Save(s.Snapshot())
	if err != nil {
		s.markDirty()
	}
	return err
}

func (s *Store) takeDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.dirty
	s.dirty = false
	return was
}

func (s *Store) markDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}
