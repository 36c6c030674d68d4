package mqttcommon

import (
	"errors"
	"fmt"

	"github.com/geebinge/iot-hub-device-update/pkg/commchannel"
)

// Response validation errors.
var (
	ErrMissingUserProperty = errors.New("missing user property")
	ErrMessageTypeMismatch = errors.New("unexpected message type")
	ErrUnsupportedProtocol = errors.New("unsupported protocol id")
)

// ResponseUserProperties are the user properties common to every service
// response.
type ResponseUserProperties struct {
	MessageType string
	ProtocolID  string
}

// ParseCommonResponseUserProperties validates the common response envelope:
// "mt" must equal expectedType and "pid" must be the supported protocol.
func ParseCommonResponseUserProperties(props map[string]string, expectedType string) (ResponseUserProperties, error) {
	var out ResponseUserProperties

	mt, ok := props[commchannel.PropMessageType]
	if !ok || mt == "" {
		return out, fmt.Errorf("%w: %s", ErrMissingUserProperty, commchannel.PropMessageType)
	}
	if mt != expectedType {
		return out, fmt.Errorf("%w: got %q, want %q", ErrMessageTypeMismatch, mt, expectedType)
	}

	pid, ok := props[commchannel.PropProtocolID]
	if !ok || pid == "" {
		return out, fmt.Errorf("%w: %s", ErrMissingUserProperty, commchannel.PropProtocolID)
	}
	if pid != commchannel.ProtocolVersion {
		return out, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, pid)
	}

	out.MessageType = mt
	out.ProtocolID = pid
	return out, nil
}
