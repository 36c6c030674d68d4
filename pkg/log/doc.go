// Package log records a machine-readable trace of the agent's MQTT traffic
// and state transitions.
//
// It is independent of operational logging (slog). Components take a
// Logger in their config and emit Events at three layers: transport
// (CONNECT, SUBACK and other control packets), channel (application
// messages with their correlation data) and operation (enrollment and
// channel state changes). Errors have their own payload at every layer.
//
//	trace, err := log.NewFileLogger("/var/log/adu/agent.alog", log.WithMaxSize(8<<20))
//	...
//	cfg.ProtocolLogger = log.Combine(trace, log.NewSlogAdapter(logger))
//
// Trace files are a stream of CBOR records keyed by small integers and
// carry the .alog extension. Reader and Filter read them back; the
// adu-log command builds on both.
package log
