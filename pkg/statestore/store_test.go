package statestore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreFacts(t *testing.T) {
	t.Run("EmptyStore", func(t *testing.T) {
		s := New()

		_, ok := s.ExternalDeviceID()
		assert.False(t, ok)
		assert.False(t, s.IsDeviceRegistered())
		_, ok = s.DeviceUpdateServiceInstance()
		assert.False(t, ok)
		_, ok = s.MQTTBrokerHostname()
		assert.False(t, ok)
		assert.False(t, s.Dirty())
	})

	t.Run("SetAndGet", func(t *testing.T) {
		s := New()
		s.SetExternalDeviceID("device-1")
		s.SetDeviceRegistered(true)
		s.SetDeviceUpdateServiceInstance("scope-1")
		s.SetMQTTBrokerHostname("broker.example.com")

		id, ok := s.ExternalDeviceID()
		assert.True(t, ok)
		assert.Equal(t, "device-1", id)
		assert.True(t, s.IsDeviceRegistered())
		inst, ok := s.DeviceUpdateServiceInstance()
		assert.True(t, ok)
		assert.Equal(t, "scope-1", inst)
		host, ok := s.MQTTBrokerHostname()
		assert.True(t, ok)
		assert.Equal(t, "broker.example.com", host)
		assert.True(t, s.Dirty())
		assert.Equal(t, []string{
			KeyDeviceUpdateServiceInstance,
			KeyExternalDeviceID,
			KeyIsDeviceRegistered,
			KeyMQTTBrokerHostname,
		}, s.Keys())
	})

	t.Run("EmptyClears", func(t *testing.T) {
		s := New()
		s.SetDeviceUpdateServiceInstance("scope-1")
		s.SetDeviceUpdateServiceInstance("")

		_, ok := s.DeviceUpdateServiceInstance()
		assert.False(t, ok)
		_, present := s.Get(KeyDeviceUpdateServiceInstance)
		assert.False(t, present)
	})

	t.Run("WrongType", func(t *testing.T) {
		s := New()
		s.Set(KeyExternalDeviceID, 42)

		_, err := s.GetString(KeyExternalDeviceID)
		assert.ErrorIs(t, err, ErrWrongType)
		_, err = s.GetBool("missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, ok := s.ExternalDeviceID()
		assert.False(t, ok)
	})

	t.Run("WatchersSeeChanges", func(t *testing.T) {
		s := New()
		var keys []string
		s.Watch(func(key string) { keys = append(keys, key) })

		s.SetExternalDeviceID("device-1")
		s.SetExternalDeviceID("device-1") // unchanged, no notification
		s.SetDeviceRegistered(true)

		assert.Equal(t, []string{KeyExternalDeviceID, KeyIsDeviceRegistered}, keys)
	})
}

func TestStoreChannelHandles(t *testing.T) {
	s := New()
	h1 := &struct{ name string }{"first"}
	h2 := &struct{ name string }{"second"}

	_, ok := s.ChannelHandle("chan")
	assert.False(t, ok)

	s.SetChannelHandle("chan", h1)
	got, ok := s.ChannelHandle("chan")
	require.True(t, ok)
	assert.Same(t, h1, got)
	assert.False(t, s.Dirty(), "handles are not persisted facts")

	// Removing a stale handle leaves the current one alone.
	s.SetChannelHandle("chan", h2)
	s.RemoveChannelHandle("chan", h1)
	got, ok = s.ChannelHandle("chan")
	require.True(t, ok)
	assert.Same(t, h2, got)

	s.RemoveChannelHandle("chan", h2)
	_, ok = s.ChannelHandle("chan")
	assert.False(t, ok)
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.SetDeviceRegistered(j%2 == 0)
				s.SetChannelHandle("chan", j)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.IsDeviceRegistered()
				_, _ = s.ChannelHandle("chan")
			}
		}()
	}
	wg.Wait()
}

func TestFileStore(t *testing.T) {
	t.Run("LoadNonExistent", func(t *testing.T) {
		f := NewFileStore(filepath.Join(t.TempDir(), "nonexistent.json"))

		got, err := f.Load()
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "state.json")
		f := NewFileStore(path)

		s := New()
		s.SetExternalDeviceID("device-1")
		s.SetDeviceRegistered(true)
		s.SetDeviceUpdateServiceInstance("scope-1")
		require.NoError(t, s.SaveTo(f))
		assert.False(t, s.Dirty())

		st, err := f.Load()
		require.NoError(t, err)
		require.NotNil(t, st)
		assert.Equal(t, StateVersion, st.Version)
		assert.False(t, st.SavedAt.IsZero())

		restored := New()
		restored.Restore(st)

		id, _ := restored.ExternalDeviceID()
		assert.Equal(t, "device-1", id)
		assert.True(t, restored.IsDeviceRegistered())
		inst, _ := restored.DeviceUpdateServiceInstance()
		assert.Equal(t, "scope-1", inst)
		_, ok := restored.MQTTBrokerHostname()
		assert.False(t, ok)
		assert.False(t, restored.Dirty())
	})

	t.Run("SaveSkipsCleanStore", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		f := NewFileStore(path)

		require.NoError(t, New().SaveTo(f))

		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("Clear", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		f := NewFileStore(path)
		require.NoError(t, f.Save(&State{ExternalDeviceID: "x"}))

		require.NoError(t, f.Clear())
		require.NoError(t, f.Clear(), "clearing a missing file is not an error")

		got, err := f.Load()
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("NewerVersion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"version": 99}`), 0644))

		_, err := NewFileStore(path).Load()
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("SaveLeavesNoTempFiles", func(t *testing.T) {
		dir := t.TempDir()
		f := NewFileStore(filepath.Join(dir, "state.json"))
		require.NoError(t, f.Save(&State{ExternalDeviceID: "a"}))
		require.NoError(t, f.Save(&State{ExternalDeviceID: "b"}))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		st, err := f.Load()
		require.NoError(t, err)
		assert.Equal(t, "b", st.ExternalDeviceID)
	})

	t.Run("FailedSaveStaysDirty", func(t *testing.T) {
		s := New()
		s.SetExternalDeviceID("device-1")

		err := s.SaveTo(NewFileStore(t.TempDir()))
		require.Error(t, err)
		assert.True(t, s.Dirty())
	})

	t.Run("CorruptFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

		_, err := NewFileStore(path).Load()
		assert.Error(t, err)
	})
}
