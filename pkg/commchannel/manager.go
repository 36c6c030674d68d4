package commchannel

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/geebinge/iot-hub-device-update/pkg/log"
	"github.com/geebinge/iot-hub-device-update/pkg/operation"
	"github.com/geebinge/iot-hub-device-update/pkg/retry"
	"github.com/geebinge/iot-hub-device-update/pkg/statestore"
	"github.com/geebinge/iot-hub-device-update/pkg/topic"
)

// Default configuration values.
const (
	DefaultPort           = 8883
	DefaultKeepAlive      = 180 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultQoS            = 1

	// MaxKeepAlive is the largest keep alive a CONNECT packet can carry.
	MaxKeepAlive = 65535 * time.Second

	// Responses are only delivered reliably at QoS 1.
	minSubscribeQoS byte = 1
)

// Config configures a Manager.
type Config struct {
	// ChannelID is the State Store key the manager registers under.
	// Defaults to DUServiceChannelID.
	ChannelID string

	// Store provides the device identity and, when Hostname is empty, the
	// broker hostname written by provisioning. Required.
	Store *statestore.Store

	// Hostname is the broker hostname. Empty means read it from Store.
	Hostname string

	Port      int
	UseTLS    bool
	TLSConfig *tls.Config

	Username string
	Password []byte

	// ClientID defaults to the external device id.
	ClientID string

	// KeepAlive outside (0, MaxKeepAlive] is replaced by DefaultKeepAlive.
	KeepAlive     time.Duration
	CleanSession  bool
	SessionExpiry time.Duration

	// QoS is used for subscriptions, raised to 1 when lower.
	QoS byte

	ConnectTimeout time.Duration

	// RequestTimeout bounds each background subscribe and publish.
	RequestTimeout time.Duration

	// Params overrides the retry parameters of the manager operation.
	Params retry.ParamSet

	// ReconnectParams shapes the delay between connection attempts.
	// Defaults to the CLIENT_TRANSIENT parameters.
	ReconnectParams retry.Params

	// Logger receives operational logs. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger receives MQTT protocol events. Nil discards.
	ProtocolLogger log.Logger

	// Now overrides the clock. Nil uses time.Now.
	Now func() time.Time

	// Dial starts the MQTT session. Nil uses DialAutopaho.
	Dial Dialer
}

func (c *Config) applyDefaults() {
	if c.ChannelID == "" {
		c.ChannelID = DUServiceChannelID
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.KeepAlive <= 0 || c.KeepAlive > MaxKeepAlive {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.QoS > 2 {
		c.QoS = DefaultQoS
	}
	if c.ReconnectParams == (retry.Params{}) {
		c.ReconnectParams = retry.ClientTransientParams
	}
	// Reconnection never gives up.
	c.ReconnectParams.MaxAttempts = 0
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.ProtocolLogger == nil {
		c.ProtocolLogger = log.NoopLogger{}
	}
	if c.Dial == nil {
		c.Dial = DialAutopaho
	}
}

// Manager owns the MQTT session of one communication channel. It keeps the
// common service-to-device topic subscribed, routes incoming messages by
// message type and offers non-blocking subscribe and publish to operations.
//
// Manager is itself a retriable operation: its DoWork starts the session once
// the broker and device identity are known and re-subscribes after a failed
// subscription.
type Manager struct {
	*operation.Context

	cfg       Config
	store     *statestore.Store
	logger    *slog.Logger
	plog      log.Logger
	reconnect *retry.Backoff

	mu sync.RWMutex

	state     State
	sess      Session
	started   bool
	connected bool
	closed    bool

	// gen changes on every connection up/down so late SUBACKs from an old
	// session are ignored.
	gen uint64

	connID      string
	brokerURL   string
	deviceID    string
	commonTopic string

	wanted     map[string]bool
	subscribed map[string]bool
	pending    map[string]bool
	handlers   map[string]MessageHandler

	onStateChange func(oldState, newState State)

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

var (
	_ Channel             = (*Manager)(nil)
	_ operation.Operation = (*Manager)(nil)
)

// NewManager creates a channel manager and registers it in the State Store.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("commchannel: store is required")
	}
	cfg.applyDefaults()

	m := &Manager{
		Context: operation.NewContext(operation.Config{
			Name:   "commchannel",
			Params: cfg.Params,
			Logger: cfg.Logger,
			Now:    cfg.Now,
		}),
		cfg:        cfg,
		store:      cfg.Store,
		logger:     cfg.Logger.With("channel", cfg.ChannelID),
		plog:       cfg.ProtocolLogger,
		reconnect:  retry.NewBackoff(cfg.ReconnectParams),
		state:      StateDisconnected,
		wanted:     make(map[string]bool),
		subscribed: make(map[string]bool),
		pending:    make(map[string]bool),
		handlers:   make(map[string]MessageHandler),
	}
	channelState.WithLabelValues(cfg.ChannelID).Set(float64(StateDisconnected))
	m.store.SetChannelHandle(cfg.ChannelID, m)

	return m, nil
}

// ID returns the channel id.
func (m *Manager) ID() string {
	return m.cfg.ChannelID
}

// State returns the current channel state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true while an MQTT session is up.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// IsSubscribed reports whether topic is subscribed on the current session.
func (m *Manager) IsSubscribed(t string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected && m.subscribed[t]
}

// CommonTopic returns the service-to-device topic kept subscribed by the channel.
func (m *Manager) CommonTopic() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commonTopic
}

// BrokerURL returns the broker URL of the session, if started.
func (m *Manager) BrokerURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.brokerURL
}

// ConnectionID returns the id of the current connection, used in protocol traces.
func (m *Manager) ConnectionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connID
}

// SubscribedTopics returns the acknowledged topics in sorted order.
func (m *Manager) SubscribedTopics() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	topics := make([]string, 0, len(m.subscribed))
	for t := range m.subscribed {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// OnStateChange sets a callback for state changes. The callback runs on the
// goroutine that caused the change and must not block.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// SetHandler routes messages with the given "mt" user property to h.
func (m *Manager) SetHandler(msgType string, h MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[msgType] = h
}

// RemoveHandler removes the handler for msgType.
func (m *Manager) RemoveHandler(msgType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, msgType)
}

// DoWork starts the session once identity and broker are known, and
// re-subscribes after a failed subscription.
func (m *Manager) DoWork(ctx context.Context) error {
	if m.IsCancelled() {
		m.stop()
		return nil
	}
	if !m.Due() {
		return nil
	}

	m.mu.RLock()
	started, connected, state := m.started, m.connected, m.state
	m.mu.RUnlock()

	switch {
	case !started:
		return m.startSession(ctx)
	case connected && state == StateError:
		m.logger.Info("retrying failed subscriptions")
		// Schedule first; a fast SUBACK resets the retry counters.
		_ = m.Retry(retry.ClassClientTransient)
		m.resubscribe()
	}
	return nil
}

// Destroy disconnects the session and unregisters the channel.
func (m *Manager) Destroy() {
	m.stop()
	m.Context.Destroy()
}

// Subscribe requests a subscription to t. It does not wait for the broker.
func (m *Manager) Subscribe(t string) error {
	if t == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidMessage)
	}
	return m.subscribeAsync(t)
}

// Publish sends msg in the background. done receives the outcome.
func (m *Manager) Publish(msg *Message, done func(error)) error {
	if msg == nil || msg.Topic == "" {
		return fmt.Errorf("%w: missing topic", ErrInvalidMessage)
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrChannelClosed
	}
	if !m.connected || m.sess == nil {
		m.mu.RUnlock()
		return ErrNotConnected
	}
	sess, ctx := m.sess, m.runCtx
	m.wg.Add(1)
	m.mu.RUnlock()

	pub := msg.toPublish()
	m.logMessage(log.DirectionOut, msg)
	messagesTotal.WithLabelValues(m.cfg.ChannelID, "out", typeLabel(msg.MessageType())).Inc()

	go func() {
		defer m.wg.Done()

		reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
		defer cancel()

		resp, err := sess.Publish(reqCtx, pub)
		if err == nil && resp != nil && resp.ReasonCode >= 0x80 {
			err = fmt.Errorf("%w: reason code 0x%02x", ErrPublishRejected, resp.ReasonCode)
		}
		if err != nil {
			m.logger.Warn("publish failed", "topic", msg.Topic, "type", msg.MessageType(), "error", err)
			m.logError(log.LayerChannel, err, "publish "+msg.Topic, nil)
		}
		if done != nil {
			done(err)
		}
	}()

	return nil
}

// startSession dials the broker once the device id and hostname are known.
func (m *Manager) startSession(ctx context.Context) error {
	deviceID, ok := m.store.ExternalDeviceID()
	if !ok {
		m.logger.Debug("session not started", "reason", ErrNoDeviceID)
		_ = m.Retry(retry.ClassDefault)
		return nil
	}

	host := m.cfg.Hostname
	if host == "" {
		if host, ok = m.store.MQTTBrokerHostname(); !ok {
			m.logger.Debug("session not started", "reason", ErrNoBroker)
			_ = m.Retry(retry.ClassDefault)
			return nil
		}
	}

	common, err := topic.CommonResponse(deviceID)
	if err != nil {
		m.logger.Error("cannot derive common topic", "device_id", deviceID, "error", err)
		m.Cancel()
		return err
	}

	scheme := "mqtt"
	if m.cfg.UseTLS {
		scheme = "mqtts"
	}
	u := &url.URL{Scheme: scheme, Host: net.JoinHostPort(host, strconv.Itoa(m.cfg.Port))}

	clientID := m.cfg.ClientID
	if clientID == "" {
		clientID = deviceID
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	m.mu.Lock()
	m.deviceID = deviceID
	m.commonTopic = common
	m.brokerURL = u.String()
	m.wanted[common] = true
	m.runCtx = runCtx
	m.runCancel = cancel
	m.mu.Unlock()

	m.transition(StateConnecting, "session starting")
	sess, err := m.cfg.Dial(runCtx, m.clientConfig(u, clientID))
	if err != nil {
		cancel()
		m.logger.Warn("cannot start mqtt session", "broker", u.String(), "error", err)
		m.logError(log.LayerTransport, err, "dial", nil)
		m.transition(StateError, err.Error())
		_ = m.Retry(retry.ClassClientTransient)
		return nil
	}

	m.mu.Lock()
	if m.sess == nil {
		m.sess = sess
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info("mqtt session started", "broker", u.String(), "client_id", clientID)
	m.logEvent(log.Event{
		Direction:  log.DirectionOut,
		Layer:      log.LayerTransport,
		Category:   log.CategoryControl,
		ControlMsg: &log.ControlMsgEvent{Type: log.ControlMsgConnect},
	})
	return nil
}

func (m *Manager) clientConfig(u *url.URL, clientID string) autopaho.ClientConfig {
	return autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		TlsCfg:                        m.cfg.TLSConfig,
		KeepAlive:                     uint16(m.cfg.KeepAlive / time.Second),
		CleanStartOnInitialConnection: m.cfg.CleanSession,
		SessionExpiryInterval:         uint32(m.cfg.SessionExpiry / time.Second),
		ReconnectBackoff:              m.reconnectBackoff,
		ConnectTimeout:                m.cfg.ConnectTimeout,
		ConnectUsername:               m.cfg.Username,
		ConnectPassword:               m.cfg.Password,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connack *paho.Connack) {
			var s Session
			if cm != nil {
				s = cm
			}
			m.connectionUp(s, connack)
		},
		OnConnectionDown: m.connectionDown,
		OnConnectError:   m.connectError,
		Debug:            pahoLogger{logger: m.logger.With("component", "autopaho"), level: slog.LevelDebug},
		Errors:           pahoLogger{logger: m.logger.With("component", "autopaho"), level: slog.LevelWarn},
		ClientConfig: paho.ClientConfig{
			ClientID:           clientID,
			OnPublishReceived:  []func(paho.PublishReceived) (bool, error){m.onPublishReceived},
			OnServerDisconnect: m.serverDisconnect,
		},
	}
}

// reconnectBackoff is called by autopaho before every connection attempt.
func (m *Manager) reconnectBackoff(attempt int) time.Duration {
	m.transition(StateConnecting, "connection attempt "+strconv.Itoa(attempt+1))
	if attempt == 0 {
		return 0
	}
	d, _ := m.reconnect.Next()
	return d
}

// connectionUp runs on the autopaho goroutine after CONNACK.
func (m *Manager) connectionUp(s Session, connack *paho.Connack) {
	m.mu.Lock()
	if s != nil {
		m.sess = s
	}
	m.connected = true
	m.gen++
	m.connID = uuid.NewString()
	m.subscribed = make(map[string]bool)
	m.pending = make(map[string]bool)
	topics := make([]string, 0, len(m.wanted))
	for t := range m.wanted {
		topics = append(topics, t)
	}
	m.mu.Unlock()
	sort.Strings(topics)

	m.reconnect.Reset()
	m.logger.Info("mqtt connection up", "broker", m.BrokerURL())

	ctrl := &log.ControlMsgEvent{Type: log.ControlMsgConnack}
	if connack != nil {
		ctrl.ReasonCodes = []uint8{connack.ReasonCode}
	}
	m.logEvent(log.Event{
		Direction:  log.DirectionIn,
		Layer:      log.LayerTransport,
		Category:   log.CategoryControl,
		ControlMsg: ctrl,
	})

	m.transition(StateSubscribing, "connection up")
	for _, t := range topics {
		if err := m.subscribeAsync(t); err != nil {
			m.logger.Warn("cannot subscribe", "topic", t, "error", err)
		}
	}
}

// connectionDown runs on the autopaho goroutine after the connection drops.
// Returning false stops autopaho from reconnecting.
func (m *Manager) connectionDown() bool {
	m.mu.Lock()
	m.connected = false
	m.gen++
	m.subscribed = make(map[string]bool)
	m.pending = make(map[string]bool)
	closed := m.closed
	m.mu.Unlock()

	m.logger.Warn("mqtt connection down")
	m.transition(StateDisconnected, "connection down")
	return !closed
}

// connectError runs on an autopaho goroutine after a failed attempt.
func (m *Manager) connectError(err error) {
	connectErrorsTotal.WithLabelValues(m.cfg.ChannelID).Inc()
	m.logger.Warn("mqtt connect failed", "broker", m.BrokerURL(), "error", err)

	var code *int
	var ce *autopaho.ConnackError
	if errors.As(err, &ce) {
		c := int(ce.ReasonCode)
		code = &c
	}
	m.logError(log.LayerTransport, err, "connect", code)
	m.transition(StateError, err.Error())
}

func (m *Manager) serverDisconnect(d *paho.Disconnect) {
	ctrl := &log.ControlMsgEvent{Type: log.ControlMsgDisconnect}
	reason := ""
	if d != nil {
		ctrl.ReasonCodes = []uint8{d.ReasonCode}
		if d.Properties != nil {
			reason = d.Properties.ReasonString
		}
	}
	m.logger.Warn("broker sent disconnect", "reason", reason)
	m.logEvent(log.Event{
		Direction:  log.DirectionIn,
		Layer:      log.LayerTransport,
		Category:   log.CategoryControl,
		ControlMsg: ctrl,
	})
}

// onPublishReceived dispatches an incoming PUBLISH by its "mt" user property.
// It runs on the paho receive goroutine.
func (m *Manager) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	if pr.Packet == nil {
		return false, nil
	}
	msg := messageFromPublish(pr.Packet)
	mt := msg.MessageType()

	m.logMessage(log.DirectionIn, msg)

	m.mu.RLock()
	h := m.handlers[mt]
	m.mu.RUnlock()

	if h == nil {
		messagesTotal.WithLabelValues(m.cfg.ChannelID, "in", "unhandled").Inc()
		m.logger.Debug("no handler for message", "topic", msg.Topic, "type", mt)
		return false, nil
	}

	messagesTotal.WithLabelValues(m.cfg.ChannelID, "in", typeLabel(mt)).Inc()
	h(msg)
	return true, nil
}

func (m *Manager) subscribeAsync(t string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrChannelClosed
	}
	if !m.connected || m.sess == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.wanted[t] = true
	if m.subscribed[t] || m.pending[t] {
		m.mu.Unlock()
		return nil
	}
	m.pending[t] = true
	sess, gen, ctx := m.sess, m.gen, m.runCtx
	old, changed := m.setStateLocked(StateSubscribing)
	m.wg.Add(1)
	m.mu.Unlock()

	if changed {
		m.notifyState(old, StateSubscribing, "subscribe "+t)
	}
	m.logEvent(log.Event{
		Direction:  log.DirectionOut,
		Layer:      log.LayerTransport,
		Category:   log.CategoryControl,
		ControlMsg: &log.ControlMsgEvent{Type: log.ControlMsgSubscribe, Topics: []string{t}},
	})

	go func() {
		defer m.wg.Done()

		reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
		defer cancel()

		suback, err := sess.Subscribe(reqCtx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: t, QoS: max(m.cfg.QoS, minSubscribeQoS)}},
		})
		m.subscribeDone(gen, t, suback, err)
	}()

	return nil
}

func (m *Manager) subscribeDone(gen uint64, t string, suback *paho.Suback, err error) {
	if err == nil {
		switch {
		case suback == nil || len(suback.Reasons) == 0:
			err = fmt.Errorf("%w: %s: empty suback", ErrSubscribeFailed, t)
		case suback.Reasons[0] >= 0x80:
			err = fmt.Errorf("%w: %s: reason code 0x%02x", ErrSubscribeFailed, t, suback.Reasons[0])
		}
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		m.logger.Debug("ignoring suback from previous connection", "topic", t)
		return
	}
	delete(m.pending, t)

	var (
		newState State
		old      State
		changed  bool
	)
	if err != nil {
		newState = StateError
		old, changed = m.setStateLocked(StateError)
	} else {
		m.subscribed[t] = true
		if len(m.pending) == 0 && m.state != StateError {
			newState = StateSubscribed
			old, changed = m.setStateLocked(StateSubscribed)
		}
	}
	m.mu.Unlock()

	if suback != nil {
		m.logEvent(log.Event{
			Direction:  log.DirectionIn,
			Layer:      log.LayerTransport,
			Category:   log.CategoryControl,
			ControlMsg: &log.ControlMsgEvent{Type: log.ControlMsgSuback, Topics: []string{t}, ReasonCodes: suback.Reasons},
		})
	}

	if err != nil {
		m.logger.Warn("subscribe failed", "topic", t, "error", err)
		m.logError(log.LayerTransport, err, "subscribe "+t, nil)
	} else {
		m.logger.Debug("subscribed", "topic", t)
	}
	if changed {
		m.notifyState(old, newState, "suback "+t)
	}
	if newState == StateSubscribed {
		m.ResetRetries()
	}
}

// resubscribe re-issues every requested topic that is not subscribed.
func (m *Manager) resubscribe() {
	m.mu.RLock()
	var topics []string
	for t := range m.wanted {
		if !m.subscribed[t] && !m.pending[t] {
			topics = append(topics, t)
		}
	}
	m.mu.RUnlock()
	sort.Strings(topics)

	for _, t := range topics {
		if err := m.subscribeAsync(t); err != nil {
			m.logger.Warn("cannot subscribe", "topic", t, "error", err)
		}
	}
}

// stop disconnects the session and waits for background requests.
func (m *Manager) stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.connected = false
	m.gen++
	sess, cancel := m.sess, m.runCancel
	m.mu.Unlock()

	if sess != nil {
		ctx, done := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
		if err := sess.Disconnect(ctx); err != nil {
			m.logger.Debug("disconnect", "error", err)
		}
		done()
		m.logEvent(log.Event{
			Direction:  log.DirectionOut,
			Layer:      log.LayerTransport,
			Category:   log.CategoryControl,
			ControlMsg: &log.ControlMsgEvent{Type: log.ControlMsgDisconnect},
		})
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.transition(StateDisconnected, "stopped")
	m.store.RemoveChannelHandle(m.cfg.ChannelID, m)
	m.logger.Info("channel stopped")
}

// transition moves to newState and notifies observers.
func (m *Manager) transition(newState State, reason string) {
	m.mu.Lock()
	old, changed := m.setStateLocked(newState)
	m.mu.Unlock()
	if changed {
		m.notifyState(old, newState, reason)
	}
}

// setStateLocked sets the state. Caller holds mu.
func (m *Manager) setStateLocked(newState State) (State, bool) {
	old := m.state
	if old == newState {
		return old, false
	}
	m.state = newState
	return old, true
}

func (m *Manager) notifyState(oldState, newState State, reason string) {
	m.logger.Info("channel state changed", "from", oldState.String(), "to", newState.String(), "reason", reason)
	channelState.WithLabelValues(m.cfg.ChannelID).Set(float64(newState))
	m.logEvent(log.Event{
		Layer:    log.LayerChannel,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityChannel,
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})

	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil {
		fn(oldState, newState)
	}
}

func (m *Manager) logMessage(dir log.Direction, msg *Message) {
	ev := log.NewMessageEvent(msg.Topic, msg.MessageType(), string(msg.CorrelationData), msg.QoS, msg.Payload)
	ev.ResponseTopic = msg.ResponseTopic
	m.logEvent(log.Event{
		Direction: dir,
		Layer:     log.LayerChannel,
		Category:  log.CategoryMessage,
		Message:   ev,
	})
}

func (m *Manager) logError(layer log.Layer, err error, what string, code *int) {
	m.logEvent(log.Event{
		Layer:    layer,
		Category: log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Code:    code,
			Context: what,
		},
	})
}

// logEvent fills the session identifiers and forwards ev to the protocol logger.
func (m *Manager) logEvent(ev log.Event) {
	m.mu.RLock()
	ev.ConnectionID = m.connID
	ev.BrokerAddr = m.brokerURL
	ev.DeviceID = m.deviceID
	m.mu.RUnlock()
	ev.Timestamp = m.Now()
	if scope, ok := m.store.DeviceUpdateServiceInstance(); ok {
		ev.ScopeID = scope
	}
	m.plog.Log(ev)
}

func typeLabel(mt string) string {
	if mt == "" {
		return "unknown"
	}
	return mt
}
