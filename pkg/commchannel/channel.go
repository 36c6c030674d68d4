package commchannel

// Channel is the view of a communication channel that agent operations use.
// Operations look the channel up in the State Store on every tick and never
// keep the reference across ticks.
type Channel interface {
	// ID returns the channel id the channel is registered under.
	ID() string

	// State returns the current channel state.
	State() State

	// IsSubscribed reports whether topic has an acknowledged subscription on
	// the current session.
	IsSubscribed(topic string) bool

	// Subscribe requests a subscription to topic without waiting for the
	// broker. It returns ErrNotConnected when no session is up. Topics that
	// are already subscribed or pending are not subscribed again.
	Subscribe(topic string) error

	// Publish sends msg without waiting for the broker. done, if not nil, is
	// called from a background goroutine with the outcome.
	Publish(msg *Message, done func(error)) error

	// SetHandler routes incoming messages with the given "mt" user property
	// to h, replacing any previous handler.
	SetHandler(msgType string, h MessageHandler)

	// RemoveHandler removes the handler for msgType.
	RemoveHandler(msgType string)
}
