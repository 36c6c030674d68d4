package log

import (
	"context"
	"log/slog"
)

// SlogAdapter renders protocol events as slog records. Events are logged
// at debug level, except error events which are raised to warn so they
// surface without enabling protocol tracing.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger. A nil logger means slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Log emits one record with the event's envelope followed by a group
// named after its payload.
func (a *SlogAdapter) Log(event Event) {
	level := slog.LevelDebug
	if event.Error != nil {
		level = slog.LevelWarn
	}
	if !a.logger.Enabled(context.Background(), level) {
		return
	}

	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs,
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
	)
	attrs = appendNonEmpty(attrs, "device_id", event.DeviceID)
	attrs = appendNonEmpty(attrs, "scope_id", event.ScopeID)
	if group, ok := payloadGroup(event); ok {
		attrs = append(attrs, group)
	}

	a.logger.LogAttrs(context.Background(), level, "protocol "+event.Label(), attrs...)
}

func payloadGroup(event Event) (slog.Attr, bool) {
	var attrs []slog.Attr
	var name string

	switch {
	case event.Message != nil:
		m := event.Message
		name = "message"
		attrs = append(attrs,
			slog.String("topic", m.Topic),
			slog.Int("qos", int(m.QoS)),
			slog.Int("size", m.PayloadSize),
		)
		attrs = appendNonEmpty(attrs, "type", m.MessageType)
		attrs = appendNonEmpty(attrs, "correlation_id", m.CorrelationID)
		attrs = appendNonEmpty(attrs, "response_topic", m.ResponseTopic)
		if m.ReasonCode != nil {
			attrs = append(attrs, slog.Int("reason_code", int(*m.ReasonCode)))
		}
	case event.StateChange != nil:
		sc := event.StateChange
		name = "state"
		attrs = append(attrs,
			slog.String("entity", sc.Entity.String()),
			slog.String("from", sc.OldState),
			slog.String("to", sc.NewState),
		)
		attrs = appendNonEmpty(attrs, "reason", sc.Reason)
	case event.ControlMsg != nil:
		c := event.ControlMsg
		name = "control"
		attrs = append(attrs, slog.String("type", c.Type.String()))
		if len(c.Topics) > 0 {
			attrs = append(attrs, slog.Any("topics", c.Topics))
		}
		if len(c.ReasonCodes) > 0 {
			codes := make([]int, len(c.ReasonCodes))
			for i, rc := range c.ReasonCodes {
				codes[i] = int(rc)
			}
			attrs = append(attrs, slog.Any("reason_codes", codes))
		}
	case event.Error != nil:
		e := event.Error
		name = "error"
		attrs = append(attrs,
			slog.String("layer", e.Layer.String()),
			slog.String("message", e.Message),
		)
		attrs = appendNonEmpty(attrs, "context", e.Context)
		if e.Code != nil {
			attrs = append(attrs, slog.Int("code", *e.Code))
		}
	default:
		return slog.Attr{}, false
	}

	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}, true
}

func appendNonEmpty(attrs []slog.Attr, key, value string) []slog.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, slog.String(key, value))
}

var _ Logger = (*SlogAdapter)(nil)
