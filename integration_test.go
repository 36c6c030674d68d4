package adu_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geebinge/iot-hub-device-update/pkg/commchannel"
	"github.com/geebinge/iot-hub-device-update/pkg/enrollment"
	"github.com/geebinge/iot-hub-device-update/pkg/log"
	"github.com/geebinge/iot-hub-device-update/pkg/module"
	"github.com/geebinge/iot-hub-device-update/pkg/statestore"
)

// fakeService stands in for the broker and the Device Update service. It
// grants every subscription and answers enr_req with enr_resp on a separate
// goroutine, as the client's receive loop would.
type fakeService struct {
	mu           sync.Mutex
	cfg          *autopaho.ClientConfig
	subscribed   []string
	requests     int
	disconnected bool

	response []byte
}

func (f *fakeService) dial(_ context.Context, cfg autopaho.ClientConfig) (commchannel.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = &cfg
	return f, nil
}

func (f *fakeService) Subscribe(_ context.Context, s *paho.Subscribe) (*paho.Suback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range s.Subscriptions {
		f.subscribed = append(f.subscribed, o.Topic)
	}
	return &paho.Suback{Reasons: []byte{0x01}}, nil
}

func (f *fakeService) Publish(_ context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	f.mu.Lock()
	f.requests++
	onReceive := f.cfg.ClientConfig.OnPublishReceived
	payload := f.response
	f.mu.Unlock()

	if p.Properties.User.Get(commchannel.PropMessageType) == enrollment.RequestType {
		resp := &paho.Publish{
			QoS:     1,
			Topic:   p.Properties.ResponseTopic,
			Payload: payload,
			Properties: &paho.PublishProperties{
				CorrelationData: p.Properties.CorrelationData,
			},
		}
		resp.Properties.User.Add(commchannel.PropMessageType, enrollment.ResponseType)
		resp.Properties.User.Add(commchannel.PropProtocolID, commchannel.ProtocolVersion)
		go func() {
			for _, fn := range onReceive {
				_, _ = fn(paho.PublishReceived{Packet: resp})
			}
		}()
	}
	return &paho.PublishResponse{}, nil
}

func (f *fakeService) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	return nil
}

func (f *fakeService) config() *autopaho.ClientConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

// connectSignal closes its channel on the first CONNECT trace event, which
// the channel records once the session handle is stored.
type connectSignal struct {
	once sync.Once
	ch   chan struct{}
}

func (c *connectSignal) Log(ev log.Event) {
	if ev.ControlMsg != nil && ev.ControlMsg.Type == log.ControlMsgConnect {
		c.once.Do(func() { close(c.ch) })
	}
}

type agentFixture struct {
	store   *statestore.Store
	service *fakeService
	channel *commchannel.Manager
	enr     *enrollment.Module
	host    *module.Host
}

func newAgentFixture(t *testing.T, response string) *agentFixture {
	t.Helper()

	store := statestore.New()
	store.SetExternalDeviceID("dev-1")
	store.SetDeviceRegistered(true)
	store.SetMQTTBrokerHostname("broker.example.com")

	svc := &fakeService{response: []byte(response)}
	connected := &connectSignal{ch: make(chan struct{})}

	ch, err := commchannel.NewManager(commchannel.Config{
		Store:          store,
		Dial:           svc.dial,
		ProtocolLogger: connected,
	})
	require.NoError(t, err)

	enr := enrollment.NewModule(enrollment.Config{Store: store})

	host := module.NewHost(module.WithInterval(5 * time.Millisecond))
	host.Add(module.FromOperation(module.ContractInfo{Name: "CommunicationManagement"}, ch))
	host.Add(enr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = host.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		host.Close()
	})

	select {
	case <-connected.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("channel never dialed")
	}
	svc.config().OnConnectionUp(nil, &paho.Connack{})

	return &agentFixture{store: store, service: svc, channel: ch, enr: enr, host: host}
}

func TestEnrollmentEndToEnd(t *testing.T) {
	f := newAgentFixture(t, `{"isEnrolled": true, "scopeId": "scope-42"}`)

	require.Eventually(t, func() bool {
		return f.enr.Operation().State() == enrollment.StateEnrolled
	}, 5*time.Second, 5*time.Millisecond)

	scope, ok := f.store.DeviceUpdateServiceInstance()
	assert.True(t, ok)
	assert.Equal(t, "scope-42", scope)
	assert.Equal(t, commchannel.StateSubscribed, f.channel.State())
	assert.True(t, f.channel.IsSubscribed("adu/oto/dev-1/s"))

	f.service.mu.Lock()
	assert.Equal(t, []string{"adu/oto/dev-1/s"}, f.service.subscribed)
	assert.Equal(t, 1, f.service.requests)
	f.service.mu.Unlock()

	d := f.enr.Operation().Data()
	assert.True(t, d.IsEnrolled)
	assert.Empty(t, d.CorrelationID)
	assert.Equal(t, enrollment.ResponseType, d.RespUserProps.MessageType)
}

func TestEnrollmentRevokedEndToEnd(t *testing.T) {
	f := newAgentFixture(t, `{"isEnrolled": false, "resultCode": 3}`)

	require.Eventually(t, func() bool {
		return f.enr.Operation().State() == enrollment.StateNotEnrolled
	}, 5*time.Second, 5*time.Millisecond)

	_, ok := f.store.DeviceUpdateServiceInstance()
	assert.False(t, ok)
	assert.Equal(t, 3, f.enr.Operation().Data().ResultCode)
}

func TestShutdownReleasesChannel(t *testing.T) {
	f := newAgentFixture(t, `{"isEnrolled": true, "scopeId": "scope-42"}`)

	require.Eventually(t, func() bool {
		return f.channel.State() == commchannel.StateSubscribed
	}, 5*time.Second, 5*time.Millisecond)

	f.host.Close()

	f.service.mu.Lock()
	assert.True(t, f.service.disconnected)
	f.service.mu.Unlock()
	assert.Equal(t, commchannel.StateDisconnected, f.channel.State())
	_, ok := f.store.ChannelHandle(commchannel.DUServiceChannelID)
	assert.False(t, ok)
}
