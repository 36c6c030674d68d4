package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geebinge/iot-hub-device-update/pkg/commchannel"
	"github.com/geebinge/iot-hub-device-update/pkg/config"
	"github.com/geebinge/iot-hub-device-update/pkg/enrollment"
	"github.com/geebinge/iot-hub-device-update/pkg/statestore"
)

type nopSession struct {
	mu           sync.Mutex
	disconnected bool
}

func (s *nopSession) Subscribe(context.Context, *paho.Subscribe) (*paho.Suback, error) {
	return &paho.Suback{Reasons: []byte{0x01}}, nil
}

func (s *nopSession) Publish(context.Context, *paho.Publish) (*paho.PublishResponse, error) {
	return &paho.PublishResponse{}, nil
}

func (s *nopSession) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
	return nil
}

type dialRecorder struct {
	mu   sync.Mutex
	cfgs []autopaho.ClientConfig
	sess *nopSession
}

func (d *dialRecorder) dial(_ context.Context, cfg autopaho.ClientConfig) (commchannel.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfgs = append(d.cfgs, cfg)
	return d.sess, nil
}

func testConfig(t *testing.T) *config.File {
	t.Helper()
	f, err := config.Parse([]byte(`
agent:
  name: test
  connectionType: MQTTBroker
  externalDeviceId: dev-1
  connectionData:
    mqttBroker:
      hostname: broker.example.com
      username: dev-1
      useTLS: false
      tcpPort: 1883
`))
	require.NoError(t, err)
	f.StateFile = filepath.Join(t.TempDir(), "state.json")
	return f
}

func TestNewAgent(t *testing.T) {
	a, err := newAgent(testConfig(t), agentOptions{})
	require.NoError(t, err)
	defer a.Close()

	id, ok := a.store.ExternalDeviceID()
	assert.True(t, ok)
	assert.Equal(t, "dev-1", id)
	assert.True(t, a.store.IsDeviceRegistered())

	host, ok := a.store.MQTTBrokerHostname()
	assert.True(t, ok)
	assert.Equal(t, "broker.example.com", host)

	handle, ok := a.store.ChannelHandle(commchannel.DUServiceChannelID)
	assert.True(t, ok)
	assert.Same(t, a.channel, handle)

	mods := a.host.Modules()
	require.Len(t, mods, 3)
	assert.Equal(t, channelModule, mods[0].ContractInfo().Name)
	assert.Equal(t, enrollment.ModuleName, mods[1].ContractInfo().Name)
	assert.Equal(t, "StateStore", mods[2].ContractInfo().Name)
}

func TestNewAgentDeviceIDOverride(t *testing.T) {
	a, err := newAgent(testConfig(t), agentOptions{DeviceID: "dev-override"})
	require.NoError(t, err)
	defer a.Close()

	id, _ := a.store.ExternalDeviceID()
	assert.Equal(t, "dev-override", id)
}

func TestNewAgentInvalidConfig(t *testing.T) {
	f := testConfig(t)
	f.Agent.ConnectionData.MQTTBroker.Username = ""

	_, err := newAgent(f, agentOptions{})
	assert.ErrorIs(t, err, config.ErrMissingUsername)
}

func TestNewAgentWithoutIdentity(t *testing.T) {
	f := testConfig(t)
	f.Agent.ExternalDeviceID = ""

	a, err := newAgent(f, agentOptions{})
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.store.IsDeviceRegistered())
}

func TestAgentStartsSession(t *testing.T) {
	d := &dialRecorder{sess: &nopSession{}}
	a, err := newAgent(testConfig(t), agentOptions{Dial: d.dial})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.host.Initialize(ctx))
	require.NoError(t, a.host.RunOnce(ctx))

	require.Len(t, d.cfgs, 1)
	cfg := d.cfgs[0]
	require.Len(t, cfg.ServerUrls, 1)
	assert.Equal(t, "mqtt://broker.example.com:1883", cfg.ServerUrls[0].String())
	assert.Equal(t, "dev-1", cfg.ClientConfig.ClientID)
	assert.Equal(t, "dev-1", cfg.ConnectUsername)
	assert.Equal(t, commchannel.StateConnecting, a.channel.State())
	assert.Equal(t, enrollment.StateAwaitingPrerequisites, a.enrollment.Operation().State())

	require.NoError(t, a.Close())
	d.sess.mu.Lock()
	assert.True(t, d.sess.disconnected)
	d.sess.mu.Unlock()
	_, ok := a.store.ChannelHandle(commchannel.DUServiceChannelID)
	assert.False(t, ok)
}

func TestAgentPersistsState(t *testing.T) {
	f := testConfig(t)

	a, err := newAgent(f, agentOptions{Dial: (&dialRecorder{sess: &nopSession{}}).dial})
	require.NoError(t, err)
	a.store.SetDeviceUpdateServiceInstance("scope-42")
	require.NoError(t, a.Close())

	st, err := statestore.NewFileStore(f.StateFile).Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "dev-1", st.ExternalDeviceID)
	assert.True(t, st.IsDeviceRegistered)
	assert.Equal(t, "scope-42", st.DeviceUpdateServiceInstance)

	// A second agent starts from the saved facts.
	f.Agent.ExternalDeviceID = ""
	b, err := newAgent(f, agentOptions{})
	require.NoError(t, err)
	defer b.Close()

	scope, ok := b.store.DeviceUpdateServiceInstance()
	assert.True(t, ok)
	assert.Equal(t, "scope-42", scope)
	id, _ := b.store.ExternalDeviceID()
	assert.Equal(t, "dev-1", id)
}

func TestStateSaver(t *testing.T) {
	store := statestore.New()
	file := statestore.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	s := &stateSaver{store: store, file: file, logger: discardLogger()}

	require.NoError(t, s.DoWork(context.Background()))
	st, err := file.Load()
	require.NoError(t, err)
	assert.Nil(t, st, "nothing written while clean")

	store.SetExternalDeviceID("dev-1")
	require.NoError(t, s.DoWork(context.Background()))
	assert.False(t, store.Dirty())

	st, err = file.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "dev-1", st.ExternalDeviceID)
}

func TestStateSaverError(t *testing.T) {
	store := statestore.New()
	// A directory path cannot be written as a file.
	file := statestore.NewFileStore(t.TempDir())
	s := &stateSaver{store: store, file: file, logger: discardLogger()}

	store.SetExternalDeviceID("dev-1")
	err := s.DoWork(context.Background())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
	assert.True(t, store.Dirty())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
