package mqttcommon

import (
	"errors"
	"log/slog"

	"github.com/geebinge/iot-hub-device-update/pkg/commchannel"
	"github.com/geebinge/iot-hub-device-update/pkg/retry"
	"github.com/geebinge/iot-hub-device-update/pkg/statestore"
	"github.com/geebinge/iot-hub-device-update/pkg/topic"
)

// Operation is the part of a retriable operation the prerequisite checks need.
// operation.Context implements it.
type Operation interface {
	Name() string
	Logger() *slog.Logger
	Retry(class retry.Class) error
	Cancel()
}

// LookupChannel returns the channel registered under id. The result must not
// be kept beyond the current tick.
func LookupChannel(store *statestore.Store, id string) (commchannel.Channel, bool) {
	h, ok := store.ChannelHandle(id)
	if !ok {
		return nil, false
	}
	ch, ok := h.(commchannel.Channel)
	return ch, ok
}

// SetupRequestPrerequisites checks, in order, that the device is registered,
// the service channel is available, the external device id is known, the
// topics of msgCtx are derived and the response topic is subscribed.
//
// It returns needed == true as soon as one prerequisite is missing, after
// scheduling a retry (or cancelling op when the topics cannot be built).
// When needed is false, ch is the channel to publish on.
func SetupRequestPrerequisites(op Operation, store *statestore.Store, msgCtx *MessageContext) (ch commchannel.Channel, needed bool) {
	logger := op.Logger()

	if !store.IsDeviceRegistered() {
		logger.Info("device is not registered, will retry")
		_ = op.Retry(retry.ClassDefault)
		return nil, true
	}

	ch, ok := LookupChannel(store, commchannel.DUServiceChannelID)
	if !ok {
		logger.Info("communication channel is not ready, will retry")
		_ = op.Retry(retry.ClassDefault)
		return nil, true
	}

	deviceID, ok := store.ExternalDeviceID()
	if !ok {
		logger.Info("external device id is not available, will retry")
		_ = op.Retry(retry.ClassDefault)
		return nil, true
	}

	if TopicSetupNeeded(op, store, msgCtx, deviceID) {
		return nil, true
	}

	if !EnsureSubscribedForResponse(op, ch, msgCtx) {
		return nil, true
	}

	return ch, false
}

// TopicSetupNeeded derives the topics of msgCtx if they are not set yet.
// A scoped context waits for the service instance id under DEFAULT. Topics
// that cannot be built cancel op.
func TopicSetupNeeded(op Operation, store *statestore.Store, msgCtx *MessageContext, deviceID string) bool {
	if msgCtx.HasTopics() {
		return false
	}

	var (
		pair topic.Pair
		err  error
	)
	if msgCtx.Scoped {
		scopeID, ok := store.DeviceUpdateServiceInstance()
		if !ok {
			op.Logger().Info("service instance is not known, will retry")
			_ = op.Retry(retry.ClassDefault)
			return true
		}
		pair, err = topic.Scoped(deviceID, scopeID)
	} else {
		pair, err = topic.Unscoped(deviceID)
	}
	if err != nil {
		op.Logger().Error("cannot build topics, cancelling operation", "device_id", deviceID, "error", err)
		op.Cancel()
		return true
	}

	if msgCtx.setTopics(pair) {
		op.Logger().Info("topics set", "scoped", msgCtx.Scoped, "publish", pair.Publish, "response", pair.Response)
	}
	return false
}

// EnsureSubscribedForResponse returns true when the response topic of msgCtx
// is subscribed and a request may be sent.
//
// While the channel is subscribing the caller waits without issuing another
// subscribe. A channel that is not connected is a prerequisite (DEFAULT). A
// rejected subscribe request is retried under CLIENT_TRANSIENT.
func EnsureSubscribedForResponse(op Operation, ch commchannel.Channel, msgCtx *MessageContext) bool {
	t := msgCtx.ResponseTopic()

	switch ch.State() {
	case commchannel.StateSubscribing:
		return false
	case commchannel.StateDisconnected, commchannel.StateConnecting:
		op.Logger().Debug("communication channel not connected, will retry")
		_ = op.Retry(retry.ClassDefault)
		return false
	}

	if ch.IsSubscribed(t) {
		return true
	}

	err := ch.Subscribe(t)
	if err == nil {
		op.Logger().Info("subscribing to response topic", "topic", t)
		return false
	}

	op.Logger().Warn("cannot subscribe to response topic, will retry", "topic", t, "error", err)
	if errors.Is(err, commchannel.ErrChannelClosed) || errors.Is(err, commchannel.ErrNotConnected) {
		_ = op.Retry(retry.ClassDefault)
	} else {
		_ = op.Retry(retry.ClassClientTransient)
	}
	return false
}
