package statestore

import (
	"errors"
	"sort"
	"sync"
)

// Well-known keys.
const (
	KeyExternalDeviceID            = "externalDeviceId"
	KeyIsDeviceRegistered          = "isDeviceRegistered"
	KeyDeviceUpdateServiceInstance = "deviceUpdateServiceInstance"
	KeyMQTTBrokerHostname          = "mqttBrokerHostname"
)

// Store errors.
var (
	ErrNotFound  = errors.New("key not found")
	ErrWrongType = errors.New("value has wrong type")
)

// Store is the process-wide key/value store shared by agent modules.
//
// Facts (strings and booleans under the well-known keys) are persisted by
// Save. Communication channel handles live in a separate in-memory table and
// are never persisted.
type Store struct {
	mu sync.RWMutex

	values  map[string]any
	handles map[string]any
	dirty   bool

	watchers []func(key string)
}

// New creates an empty store.
func New() *Store {
	return &Store{
		values:  make(map[string]any),
		handles: make(map[string]any),
	}
}

// Get returns the raw value under key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key. A nil value removes the key.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	if value == nil {
		if _, ok := s.values[key]; !ok {
			s.mu.Unlock()
			return
		}
		delete(s.values, key)
	} else {
		if old, ok := s.values[key]; ok && sameValue(old, value) {
			s.mu.Unlock()
			return
		}
		s.values[key] = value
	}
	s.dirty = true
	watchers := s.watchers
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(key)
	}
}

// GetString returns the string under key.
func (s *Store) GetString(key string) (string, error) {
	v, ok := s.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	str, ok := v.(string)
	if !ok {
		return "", ErrWrongType
	}
	return str, nil
}

// GetBool returns the boolean under key.
func (s *Store) GetBool(key string) (bool, error) {
	v, ok := s.Get(key)
	if !ok {
		return false, ErrNotFound
	}
	b, ok := v.(bool)
	if !ok {
		return false, ErrWrongType
	}
	return b, nil
}

// ExternalDeviceID returns the device identity used in topic names.
// An empty identity is reported as not found.
func (s *Store) ExternalDeviceID() (string, bool) {
	id, err := s.GetString(KeyExternalDeviceID)
	return id, err == nil && id != ""
}

// SetExternalDeviceID records the device identity.
func (s *Store) SetExternalDeviceID(id string) {
	s.Set(KeyExternalDeviceID, nilIfEmpty(id))
}

// IsDeviceRegistered returns true once provisioning has completed.
func (s *Store) IsDeviceRegistered() bool {
	b, _ := s.GetBool(KeyIsDeviceRegistered)
	return b
}

// SetDeviceRegistered records the registration state.
func (s *Store) SetDeviceRegistered(registered bool) {
	s.Set(KeyIsDeviceRegistered, registered)
}

// DeviceUpdateServiceInstance returns the service instance (scope id) assigned at enrollment.
func (s *Store) DeviceUpdateServiceInstance() (string, bool) {
	v, err := s.GetString(KeyDeviceUpdateServiceInstance)
	return v, err == nil && v != ""
}

// SetDeviceUpdateServiceInstance records the service instance. Empty clears it.
func (s *Store) SetDeviceUpdateServiceInstance(instance string) {
	s.Set(KeyDeviceUpdateServiceInstance, nilIfEmpty(instance))
}

// MQTTBrokerHostname returns the broker hostname written by provisioning.
func (s *Store) MQTTBrokerHostname() (string, bool) {
	v, err := s.GetString(KeyMQTTBrokerHostname)
	return v, err == nil && v != ""
}

// SetMQTTBrokerHostname records the broker hostname. Empty clears it.
func (s *Store) SetMQTTBrokerHostname(hostname string) {
	s.Set(KeyMQTTBrokerHostname, nilIfEmpty(hostname))
}

// ChannelHandle returns the handle registered under channel id.
// Callers must look the handle up on every use and never cache it.
func (s *Store) ChannelHandle(id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[id]
	return h, ok
}

// SetChannelHandle registers a channel handle under id.
func (s *Store) SetChannelHandle(id string, handle any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[id] = handle
}

// RemoveChannelHandle unregisters the handle under id if it is still handle.
func (s *Store) RemoveChannelHandle(id string, handle any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.handles[id]; ok && cur == handle {
		delete(s.handles, id)
	}
}

// Watch registers fn to be called after a fact changes. fn runs on the
// writer's goroutine and must not block.
func (s *Store) Watch(fn func(key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

// Keys returns the fact keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dirty returns true if facts changed since the last Save or Restore.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// sameValue compares scalar facts. Other types always count as changed.
func sameValue(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
