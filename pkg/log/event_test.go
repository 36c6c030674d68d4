package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumNames(t *testing.T) {
	assert.Equal(t, "IN", DirectionIn.String())
	assert.Equal(t, "OUT", DirectionOut.String())
	assert.Equal(t, "CHANNEL", LayerChannel.String())
	assert.Equal(t, "ERROR", CategoryError.String())
	assert.Equal(t, "ENROLLMENT", StateEntityEnrollment.String())
	assert.Equal(t, "SUBACK", ControlMsgSuback.String())

	assert.Equal(t, "UNKNOWN", Direction(9).String())
	assert.Equal(t, "UNKNOWN", ControlMsgType(200).String())
}

// Values are persisted in trace files and must not be renumbered.
func TestEnumValuesStable(t *testing.T) {
	assert.EqualValues(t, 1, DirectionOut)
	assert.EqualValues(t, 2, LayerOperation)
	assert.EqualValues(t, 3, CategoryError)
	assert.EqualValues(t, 2, StateEntityEnrollment)
	assert.EqualValues(t, 4, ControlMsgDisconnect)
}

func TestParseNames(t *testing.T) {
	l, err := ParseLayer("channel")
	require.NoError(t, err)
	assert.Equal(t, LayerChannel, l)

	d, err := ParseDirection("Out")
	require.NoError(t, err)
	assert.Equal(t, DirectionOut, d)

	c, err := ParseCategory("STATE")
	require.NoError(t, err)
	assert.Equal(t, CategoryState, c)

	_, err = ParseLayer("wire")
	assert.ErrorContains(t, err, "transport, channel, operation")
	_, err = ParseCategory("")
	assert.Error(t, err)
}

func TestEventLabel(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"TypedMessage", Event{Message: &MessageEvent{MessageType: "enr_resp"}}, "enr_resp"},
		{"UntypedMessage", Event{Message: &MessageEvent{}}, "Message"},
		{"State", Event{StateChange: &StateChangeEvent{}}, "State"},
		{"Control", Event{ControlMsg: &ControlMsgEvent{Type: ControlMsgConnack}}, "CONNACK"},
		{"Error", Event{Error: &ErrorEventData{}}, "Error"},
		{"Empty", Event{}, "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.Label())
		})
	}
}

func TestNewMessageEventCopiesPayload(t *testing.T) {
	payload := []byte(`{"isEnrolled":true}`)
	ev := NewMessageEvent("adu/oto/dev-1/s", "enr_resp", "corr-1", 1, payload)
	payload[0] = 'X'

	assert.Equal(t, `{"isEnrolled":true}`, string(ev.Payload))
	assert.Equal(t, len(payload), ev.PayloadSize)
	assert.False(t, ev.Truncated)
}

func TestNewMessageEventTruncates(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, MaxPayloadCapture+1)
	ev := NewMessageEvent("adu/oto/dev-1/a", "", "", 0, payload)

	assert.Len(t, ev.Payload, MaxPayloadCapture)
	assert.Equal(t, MaxPayloadCapture+1, ev.PayloadSize)
	assert.True(t, ev.Truncated)

	empty := NewMessageEvent("adu/oto/dev-1/a", "", "", 0, nil)
	assert.Nil(t, empty.Payload)
}
