package log

import (
	"fmt"
	"strings"
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the MQTT session (UUID, new per connection).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// BrokerAddr is the broker URL the session is connected to.
	BrokerAddr string `cbor:"6,keyasint,omitempty"`

	// DeviceID is the external device id.
	DeviceID string `cbor:"7,keyasint,omitempty"`

	// ScopeID is the device update service instance (populated after enrollment).
	ScopeID string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"` // Application messages
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Channel/operation state
	ControlMsg  *ControlMsgEvent  `cbor:"12,keyasint,omitempty"` // Connect/subscribe/disconnect
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Label is a short name for the event payload: the message type for
// application messages, the packet type for control events.
func (e Event) Label() string {
	switch {
	case e.Message != nil:
		if e.Message.MessageType != "" {
			return e.Message.MessageType
		}
		return "Message"
	case e.StateChange != nil:
		return "State"
	case e.ControlMsg != nil:
		return e.ControlMsg.Type.String()
	case e.Error != nil:
		return "Error"
	}
	return "Unknown"
}

// Direction indicates the direction of message flow.
type Direction uint8

// Direction values. Incoming is relative to the agent.
const (
	DirectionIn Direction = iota
	DirectionOut
)

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the MQTT session as seen by the client.
	LayerTransport Layer = iota
	// LayerChannel is the communication channel manager.
	LayerChannel
	// LayerOperation is an agent operation such as enrollment.
	LayerOperation
)

// Category classifies the event payload.
type Category uint8

const (
	CategoryMessage Category = iota // application request or response
	CategoryControl                 // connect, subscribe, disconnect
	CategoryState
	CategoryError
)

var (
	directionNames = []string{"IN", "OUT"}
	layerNames     = []string{"TRANSPORT", "CHANNEL", "OPERATION"}
	categoryNames  = []string{"MESSAGE", "CONTROL", "STATE", "ERROR"}
	entityNames    = []string{"CHANNEL", "OPERATION", "ENROLLMENT"}
	controlNames   = []string{"CONNECT", "CONNACK", "SUBSCRIBE", "SUBACK", "DISCONNECT"}
)

func enumName(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return "UNKNOWN"
}

func parseEnum(kind string, names []string, s string) (uint8, error) {
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("invalid %s: %q (must be one of %s)", kind, s, strings.ToLower(strings.Join(names, ", ")))
}

func (d Direction) String() string { return enumName(directionNames, uint8(d)) }

func (l Layer) String() string { return enumName(layerNames, uint8(l)) }

func (c Category) String() string { return enumName(categoryNames, uint8(c)) }

// ParseDirection parses a direction name, ignoring case.
func ParseDirection(s string) (Direction, error) {
	v, err := parseEnum("direction", directionNames, s)
	return Direction(v), err
}

// ParseLayer parses a layer name, ignoring case.
func ParseLayer(s string) (Layer, error) {
	v, err := parseEnum("layer", layerNames, s)
	return Layer(v), err
}

// ParseCategory parses a category name, ignoring case.
func ParseCategory(s string) (Category, error) {
	v, err := parseEnum("category", categoryNames, s)
	return Category(v), err
}

// MaxPayloadCapture is the number of payload bytes kept in a MessageEvent.
const MaxPayloadCapture = 4096

// MessageEvent captures an application message published or received on a topic.
type MessageEvent struct {
	// Topic the message was published on.
	Topic string `cbor:"1,keyasint"`

	// MessageType is the "mt" user property (e.g. enr_req, enr_resp).
	MessageType string `cbor:"2,keyasint,omitempty"`

	// CorrelationID correlates request/response pairs.
	CorrelationID string `cbor:"3,keyasint,omitempty"`

	// QoS is the MQTT quality of service.
	QoS uint8 `cbor:"4,keyasint"`

	// ResponseTopic is set on requests.
	ResponseTopic string `cbor:"5,keyasint,omitempty"`

	// PayloadSize is the full payload size in bytes.
	PayloadSize int `cbor:"6,keyasint"`

	// Payload is the raw payload (may be truncated for large messages).
	Payload []byte `cbor:"7,keyasint,omitempty"`

	// Truncated indicates if Payload was truncated.
	Truncated bool `cbor:"8,keyasint,omitempty"`

	// ReasonCode is the broker reason code for acknowledged publishes.
	ReasonCode *uint8 `cbor:"9,keyasint,omitempty"`
}

// NewMessageEvent builds a MessageEvent, truncating the payload copy to
// MaxPayloadCapture bytes.
func NewMessageEvent(topic, msgType, correlationID string, qos uint8, payload []byte) *MessageEvent {
	ev := &MessageEvent{
		Topic:         topic,
		MessageType:   msgType,
		CorrelationID: correlationID,
		QoS:           qos,
		PayloadSize:   len(payload),
	}
	if len(payload) > MaxPayloadCapture {
		ev.Payload = append([]byte(nil), payload[:MaxPayloadCapture]...)
		ev.Truncated = true
	} else if len(payload) > 0 {
		ev.Payload = append([]byte(nil), payload...)
	}
	return ev
}

// StateChangeEvent captures channel and operation lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	StateEntityChannel StateEntity = iota
	StateEntityOperation
	StateEntityEnrollment
)

func (s StateEntity) String() string { return enumName(entityNames, uint8(s)) }

// ControlMsgEvent captures MQTT control packets.
type ControlMsgEvent struct {
	// Type of control packet.
	Type ControlMsgType `cbor:"1,keyasint"`

	// Topics lists the subscription filters for SUBSCRIBE/SUBACK.
	Topics []string `cbor:"2,keyasint,omitempty"`

	// ReasonCodes are the CONNACK/SUBACK/DISCONNECT reason codes.
	ReasonCodes []uint8 `cbor:"3,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control packet.
type ControlMsgType uint8

const (
	ControlMsgConnect    ControlMsgType = iota // sent by the agent
	ControlMsgConnack                          // received from the broker
	ControlMsgSubscribe
	ControlMsgSuback
	ControlMsgDisconnect // either direction
)

func (c ControlMsgType) String() string { return enumName(controlNames, uint8(c)) }

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error or reason code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
