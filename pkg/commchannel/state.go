package commchannel

import "errors"

// DUServiceChannelID is the State Store key of the device update service channel.
const DUServiceChannelID = "duservicecommunicationchannel"

// Channel errors.
var (
	ErrNotConnected    = errors.New("not connected")
	ErrNoBroker        = errors.New("broker hostname unknown")
	ErrNoDeviceID      = errors.New("external device id unknown")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrSubscribeFailed = errors.New("subscribe rejected")
	ErrPublishRejected = errors.New("publish rejected")
	ErrChannelClosed   = errors.New("channel closed")
)

// State represents the communication channel state.
type State uint8

const (
	// StateDisconnected indicates no MQTT session is up.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateSubscribing indicates the session is up and a subscription is pending.
	StateSubscribing

	// StateSubscribed indicates all requested subscriptions are acknowledged.
	StateSubscribed

	// StateError indicates the last connect or subscribe attempt failed.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateSubscribing:
		return "SUBSCRIBING"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
