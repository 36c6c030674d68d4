package enrollment

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/geebinge/iot-hub-device-update/pkg/commchannel"
	"github.com/geebinge/iot-hub-device-update/pkg/log"
	"github.com/geebinge/iot-hub-device-update/pkg/mqttcommon"
	"github.com/geebinge/iot-hub-device-update/pkg/operation"
	"github.com/geebinge/iot-hub-device-update/pkg/retry"
	"github.com/geebinge/iot-hub-device-update/pkg/statestore"
)

// Message types of the enrollment exchange.
const (
	RequestType  = "enr_req"
	ResponseType = "enr_resp"
)

// Default timing.
const (
	DefaultRefreshInterval = time.Hour
	DefaultResponseTimeout = 60 * time.Second
)

// OperationName is the name of the enrollment operation.
const OperationName = "enrollment"

var requestPayload = []byte("{}")

// Config configures an enrollment Operation.
type Config struct {
	// Store holds the device identity and receives the service instance id.
	Store *statestore.Store

	// RefreshInterval is the delay between enrollment checks once a response
	// was received.
	RefreshInterval time.Duration

	// ResponseTimeout is how long a request may stay unanswered before it is
	// sent again.
	ResponseTimeout time.Duration

	// Params overrides retry parameters.
	Params retry.ParamSet

	Logger         *slog.Logger
	ProtocolLogger log.Logger
	Now            func() time.Time
}

// Operation asks the service whether the device is enrolled and records the
// assigned service instance.
//
// DoWork runs on the host goroutine. The response handler runs on the MQTT
// receive goroutine; it only validates, parses and records the outcome under
// o.mu. Retry decisions are taken in DoWork.
type Operation struct {
	*operation.Context

	cfg    Config
	store  *statestore.Store
	plog   log.Logger
	msgCtx *mqttcommon.MessageContext

	mu          sync.Mutex
	data        Data
	outstanding bool
	responded   bool
	publishErr  error
}

var _ operation.Operation = (*Operation)(nil)

// New creates an enrollment operation.
func New(cfg Config) *Operation {
	if cfg.Store == nil {
		cfg.Store = statestore.New()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ProtocolLogger == nil {
		cfg.ProtocolLogger = log.NoopLogger{}
	}

	return &Operation{
		Context: operation.NewContext(operation.Config{
			Name:   OperationName,
			Params: cfg.Params,
			Logger: cfg.Logger,
			Now:    cfg.Now,
		}),
		cfg:    cfg,
		store:  cfg.Store,
		plog:   cfg.ProtocolLogger,
		msgCtx: mqttcommon.NewMessageContext(RequestType, ResponseType, false),
	}
}

// Data returns a snapshot of the enrollment data.
func (o *Operation) Data() Data {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := o.data
	d.CorrelationID = o.msgCtx.CorrelationID()
	return d
}

// State returns the enrollment state.
func (o *Operation) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.data.State
}

// IsEnrolled returns the last enrollment status reported by the service.
func (o *Operation) IsEnrolled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.data.IsEnrolled
}

// MessageContext returns the message context of the enrollment exchange.
func (o *Operation) MessageContext() *mqttcommon.MessageContext {
	return o.msgCtx
}

// Refresh makes the next DoWork send a new request.
func (o *Operation) Refresh() {
	o.mu.Lock()
	o.outstanding = false
	o.mu.Unlock()
	o.msgCtx.ClearCorrelationID()
	o.ScheduleNow()
}

// DoWork advances the enrollment exchange. It never blocks.
func (o *Operation) DoWork(ctx context.Context) error {
	if o.IsCancelled() {
		o.release()
		return nil
	}

	o.applyOutcome()

	if !o.Due() {
		return nil
	}

	ch, needed := mqttcommon.SetupRequestPrerequisites(o, o.store, o.msgCtx)
	if needed {
		if o.IsCancelled() {
			o.release()
			return nil
		}
		o.setStateIf(StateAwaitingPrerequisites, StateNotStarted, StateAwaitingPrerequisites, StateRetryScheduled)
		return nil
	}

	o.mu.Lock()
	outstanding, sentAt := o.outstanding, o.data.RequestSentAt
	o.mu.Unlock()
	if outstanding {
		if o.Now().Sub(sentAt) < o.cfg.ResponseTimeout {
			return nil
		}
		o.Logger().Warn("no enrollment response, will retry", "timeout", o.cfg.ResponseTimeout)
		o.abandonRequest()
		_ = o.Retry(retry.ClassDefault)
		return nil
	}

	o.send(ch)
	return nil
}

// send publishes a new enrollment request on ch.
func (o *Operation) send(ch commchannel.Channel) {
	ch.SetHandler(ResponseType, o.HandleMessage)

	msg := o.msgCtx.NewRequest(requestPayload)
	corrID := o.msgCtx.CorrelationID()

	o.mu.Lock()
	o.outstanding = true
	o.publishErr = nil
	o.data.RequestSentAt = o.Now()
	o.mu.Unlock()
	o.setState(StateRequestSent)

	err := ch.Publish(msg, func(err error) {
		if err != nil {
			o.publishFailed(corrID, err)
		}
	})
	if err != nil {
		o.Logger().Warn("cannot send enrollment request, will retry", "error", err)
		o.abandonRequest()
		_ = o.Retry(retry.ClassClientTransient)
		return
	}

	o.Logger().Info("enrollment request sent", "topic", msg.Topic, "correlation_id", corrID)
	o.ScheduleAfter(o.cfg.ResponseTimeout)
}

// publishFailed runs on a channel goroutine when the broker rejected or
// dropped a request.
func (o *Operation) publishFailed(corrID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.outstanding || o.msgCtx.CorrelationID() != corrID {
		return
	}
	o.publishErr = err
}

// applyOutcome acts on a response or publish failure recorded since the
// last tick.
func (o *Operation) applyOutcome() {
	o.mu.Lock()
	responded, pubErr := o.responded, o.publishErr
	o.responded = false
	o.publishErr = nil
	enrolled := o.data.IsEnrolled
	o.mu.Unlock()

	switch {
	case responded:
		if enrolled {
			o.setState(StateEnrolled)
		} else {
			o.setState(StateNotEnrolled)
		}
		o.ResetRetries()
		o.ScheduleAfter(o.cfg.RefreshInterval)

	case pubErr != nil:
		o.Logger().Warn("enrollment request failed, will retry", "error", pubErr)
		o.abandonRequest()
		_ = o.Retry(retry.ClassClientTransient)
	}
}

// abandonRequest forgets the outstanding request so late responses are ignored.
func (o *Operation) abandonRequest() {
	o.mu.Lock()
	o.outstanding = false
	o.msgCtx.ClearCorrelationID()
	o.mu.Unlock()
	o.setState(StateRetryScheduled)
}

// HandleMessage processes an enr_resp message. It runs on the MQTT receive
// goroutine and drops anything that does not answer the outstanding request.
func (o *Operation) HandleMessage(msg *commchannel.Message) {
	logger := o.Logger()

	if !o.msgCtx.Matches(msg) {
		logger.Debug("enrollment response correlation mismatch")
		return
	}
	// Not queued: the request is re-sent once the subscription settles.
	if ch, ok := mqttcommon.LookupChannel(o.store, commchannel.DUServiceChannelID); ok && ch.State() == commchannel.StateSubscribing {
		logger.Warn("dropping enrollment response while channel is subscribing")
		return
	}
	if len(msg.Payload) == 0 {
		logger.Warn("enrollment response has empty payload")
		return
	}
	props, err := mqttcommon.ParseCommonResponseUserProperties(msg.UserProperties, ResponseType)
	if err != nil {
		logger.Warn("invalid enrollment response properties", "error", err)
		return
	}
	resp, err := ParseResponse(msg.Payload)
	if err != nil {
		logger.Warn("invalid enrollment response payload", "error", err)
		return
	}
	if o.IsCancelled() {
		logger.Info("discarding enrollment response for cancelled operation")
		return
	}

	o.HandleResponse(string(msg.CorrelationData), props, resp)
}

// HandleResponse records a validated response for the request with the given
// correlation id and updates the State Store. It reports whether the response
// was applied.
func (o *Operation) HandleResponse(corrID string, props mqttcommon.ResponseUserProperties, resp Response) bool {
	o.mu.Lock()
	if !o.outstanding || corrID == "" || o.msgCtx.CorrelationID() != corrID {
		o.mu.Unlock()
		return false
	}
	o.outstanding = false
	o.responded = true
	o.msgCtx.ClearCorrelationID()

	old := o.data.State
	o.data.State = StateResponseReceived
	o.data.IsEnrolled = resp.IsEnrolled
	o.data.ScopeID = resp.ScopeID
	o.data.ResultCode = resp.ResultCode
	o.data.ExtendedResultCode = resp.ExtendedResultCode
	o.data.RespUserProps = props
	o.data.LastResponseAt = o.Now()
	o.mu.Unlock()

	if resp.IsEnrolled {
		o.store.SetDeviceUpdateServiceInstance(resp.ScopeID)
		enrolledGauge.Set(1)
	} else {
		// Revoked or never enrolled.
		o.store.SetDeviceUpdateServiceInstance("")
		enrolledGauge.Set(0)
	}

	o.Logger().Info("enrollment response received",
		"is_enrolled", resp.IsEnrolled,
		"scope_id", resp.ScopeID,
		"result_code", resp.ResultCode,
		"extended_result_code", resp.ExtendedResultCode)
	o.logState(old, StateResponseReceived, "enr_resp")
	return true
}

// Destroy releases the message context and the response handler.
func (o *Operation) Destroy() {
	o.release()
	o.Context.Destroy()
}

// release removes the response handler and forgets topics and requests.
func (o *Operation) release() {
	if ch, ok := mqttcommon.LookupChannel(o.store, commchannel.DUServiceChannelID); ok {
		ch.RemoveHandler(ResponseType)
	}
	o.mu.Lock()
	o.outstanding = false
	o.responded = false
	o.publishErr = nil
	o.msgCtx.Reset()
	o.mu.Unlock()
}

func (o *Operation) setState(s State) {
	o.mu.Lock()
	old := o.data.State
	o.data.State = s
	o.mu.Unlock()
	if old != s {
		o.logState(old, s, "")
	}
}

// setStateIf moves to s only from one of the given states.
func (o *Operation) setStateIf(s State, from ...State) {
	o.mu.Lock()
	old := o.data.State
	ok := false
	for _, f := range from {
		if old == f {
			ok = true
			break
		}
	}
	if ok {
		o.data.State = s
	}
	o.mu.Unlock()
	if ok && old != s {
		o.logState(old, s, "")
	}
}

func (o *Operation) logState(old, s State, reason string) {
	o.Logger().Debug("enrollment state changed", "from", old.String(), "to", s.String())
	ev := log.Event{
		Timestamp: o.Now(),
		Layer:     log.LayerOperation,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityEnrollment,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	}
	if id, ok := o.store.ExternalDeviceID(); ok {
		ev.DeviceID = id
	}
	if scope, ok := o.store.DeviceUpdateServiceInstance(); ok {
		ev.ScopeID = scope
	}
	o.plog.Log(ev)
}
