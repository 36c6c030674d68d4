// Package topic derives the MQTT topics used between the device and the
// device update service.
package topic

import (
	"errors"
	"fmt"
	"strings"
)

// Topic templates. The device publishes on the "a" (agent) topic and receives
// on the "s" (service) topic.
const (
	PublishTemplate        = "adu/oto/%s/a"
	ResponseTemplate       = "adu/oto/%s/s"
	ScopedPublishTemplate  = "adu/oto/%s/%s/a"
	ScopedResponseTemplate = "adu/oto/%s/%s/s"
)

// Topic errors.
var (
	ErrInvalidTopic   = errors.New("invalid topic")
	ErrEmptyDeviceID  = fmt.Errorf("%w: empty device id", ErrInvalidTopic)
	ErrEmptyScopeID   = fmt.Errorf("%w: empty scope id", ErrInvalidTopic)
	ErrInvalidSegment = fmt.Errorf("%w: segment contains reserved character", ErrInvalidTopic)
)

// Pair holds the publish and response topic for one exchange.
type Pair struct {
	Publish  string
	Response string
}

// Unscoped returns the topics that carry the device id only.
func Unscoped(deviceID string) (Pair, error) {
	if err := validateSegment(deviceID, ErrEmptyDeviceID); err != nil {
		return Pair{}, err
	}
	return Pair{
		Publish:  fmt.Sprintf(PublishTemplate, deviceID),
		Response: fmt.Sprintf(ResponseTemplate, deviceID),
	}, nil
}

// Scoped returns the topics that carry the device id and the service instance
// (scope) id.
func Scoped(deviceID, scopeID string) (Pair, error) {
	if err := validateSegment(deviceID, ErrEmptyDeviceID); err != nil {
		return Pair{}, err
	}
	if err := validateSegment(scopeID, ErrEmptyScopeID); err != nil {
		return Pair{}, err
	}
	return Pair{
		Publish:  fmt.Sprintf(ScopedPublishTemplate, deviceID, scopeID),
		Response: fmt.Sprintf(ScopedResponseTemplate, deviceID, scopeID),
	}, nil
}

// CommonResponse returns the service-to-device topic that the communication
// channel keeps subscribed for all unscoped traffic.
func CommonResponse(deviceID string) (string, error) {
	p, err := Unscoped(deviceID)
	if err != nil {
		return "", err
	}
	return p.Response, nil
}

// validateSegment rejects values that would change the topic structure.
func validateSegment(s string, emptyErr error) error {
	if s == "" {
		return emptyErr
	}
	if strings.ContainsAny(s, "/+#\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidSegment, s)
	}
	return nil
}
