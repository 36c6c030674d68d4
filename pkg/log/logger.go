package log

// Logger receives protocol trace events. Implementations must be safe for
// concurrent use and must not block the caller for long: events are
// emitted from the channel's receive path.
type Logger interface {
	Log(event Event)
}

// LoggerFunc adapts a function to the Logger interface.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// NoopLogger discards all events. The zero value is ready to use.
type NoopLogger struct{}

// Log does nothing.
func (NoopLogger) Log(Event) {}

// Combine returns a Logger that forwards each event to every non-nil
// logger in order. With no usable loggers it returns NoopLogger, with one
// it returns that logger unchanged.
func Combine(loggers ...Logger) Logger {
	var out fanout
	for _, l := range loggers {
		switch l := l.(type) {
		case nil, NoopLogger:
		case fanout:
			out = append(out, l...)
		default:
			out = append(out, l)
		}
	}
	switch len(out) {
	case 0:
		return NoopLogger{}
	case 1:
		return out[0]
	}
	return out
}

type fanout []Logger

func (f fanout) Log(event Event) {
	for _, l := range f {
		l.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
	_ Logger = fanout(nil)
)
