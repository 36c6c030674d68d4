package interactive

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/geebinge/iot-hub-device-update/pkg/commchannel"
	"github.com/geebinge/iot-hub-device-update/pkg/enrollment"
	"github.com/geebinge/iot-hub-device-update/pkg/statestore"
)

type stubChannel struct {
	state  commchannel.State
	topics []string
}

func (s *stubChannel) ID() string                 { return commchannel.DUServiceChannelID }
func (s *stubChannel) State() commchannel.State   { return s.state }
func (s *stubChannel) BrokerURL() string          { return "mqtts://broker.example.com:8883" }
func (s *stubChannel) ConnectionID() string       { return "" }
func (s *stubChannel) CommonTopic() string        { return "adu/oto/dev-1/s" }
func (s *stubChannel) SubscribedTopics() []string { return s.topics }

type stubEnrollment struct {
	data      enrollment.Data
	refreshed int
}

func (s *stubEnrollment) Data() enrollment.Data { return s.data }
func (s *stubEnrollment) Refresh()              { s.refreshed++ }

func newTestConsole() (*Console, *bytes.Buffer, *statestore.Store, *stubEnrollment) {
	var buf bytes.Buffer
	store := statestore.New()
	enr := &stubEnrollment{}
	c := &Console{out: &buf}
	c.Attach(store, &stubChannel{state: commchannel.StateSubscribed, topics: []string{"adu/oto/dev-1/s"}}, enr)
	return c, &buf, store, enr
}

func TestConsoleStatus(t *testing.T) {
	c, buf, _, enr := newTestConsole()
	enr.data = enrollment.Data{
		State:         enrollment.StateEnrolled,
		IsEnrolled:    true,
		ScopeID:       "scope-42",
		RequestSentAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	assert.True(t, c.execute("status", nil))

	out := buf.String()
	assert.Contains(t, out, "SUBSCRIBED")
	assert.Contains(t, out, "mqtts://broker.example.com:8883")
	assert.Contains(t, out, "Connection ID:  (none)")
	assert.Contains(t, out, "ENROLLED")
	assert.Contains(t, out, "scope-42")
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.NotContains(t, out, "Pending")
}

func TestConsoleIdentityCommands(t *testing.T) {
	c, buf, store, _ := newTestConsole()

	c.execute("device-id", []string{"dev-9"})
	id, ok := store.ExternalDeviceID()
	assert.True(t, ok)
	assert.Equal(t, "dev-9", id)

	c.execute("register", nil)
	assert.True(t, store.IsDeviceRegistered())
	c.execute("register", []string{"off"})
	assert.False(t, store.IsDeviceRegistered())

	c.execute("hostname", []string{"broker.local"})
	host, ok := store.MQTTBrokerHostname()
	assert.True(t, ok)
	assert.Equal(t, "broker.local", host)

	buf.Reset()
	c.execute("device-id", nil)
	assert.Contains(t, buf.String(), "Usage: device-id")

	buf.Reset()
	c.execute("register", []string{"maybe"})
	assert.Contains(t, buf.String(), "Usage: register")
}

func TestConsoleStore(t *testing.T) {
	c, buf, store, _ := newTestConsole()

	c.execute("store", nil)
	assert.Contains(t, buf.String(), "State Store is empty")

	store.SetExternalDeviceID("dev-1")
	buf.Reset()
	c.execute("store", nil)
	assert.Contains(t, buf.String(), statestore.KeyExternalDeviceID)
	assert.Contains(t, buf.String(), "dev-1")
}

func TestConsoleEnrollAndTopics(t *testing.T) {
	c, buf, _, enr := newTestConsole()

	c.execute("enroll", nil)
	c.execute("refresh", nil)
	assert.Equal(t, 2, enr.refreshed)

	buf.Reset()
	c.execute("topics", nil)
	assert.Contains(t, buf.String(), "adu/oto/dev-1/s")
}

func TestConsoleQuitAndUnknown(t *testing.T) {
	c, buf, _, _ := newTestConsole()

	assert.True(t, c.execute("bogus", nil))
	assert.Contains(t, buf.String(), "Unknown command: bogus")

	assert.False(t, c.execute("quit", nil))
	assert.False(t, c.execute("q", nil))
}

func TestConsoleNotAttached(t *testing.T) {
	var buf bytes.Buffer
	c := &Console{out: &buf}

	c.execute("status", nil)
	c.execute("store", nil)
	c.execute("enroll", nil)
	assert.Contains(t, buf.String(), "(not attached)")
	assert.Contains(t, buf.String(), "State Store not attached")
	assert.Contains(t, buf.String(), "Enrollment not attached")
}
