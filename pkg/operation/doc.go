// Package operation provides the retriable operation context shared by agent
// modules.
//
// An operation is advanced by the module host calling DoWork on a fixed
// cadence. DoWork never blocks: when something is not ready the operation
// calls Retry with the matching retry class and returns. Due reports whether
// the scheduled attempt time has passed.
//
// Retry classes keep independent attempt counters, so waiting on a
// prerequisite (DEFAULT) does not use up the attempts allowed for client failures
// (CLIENT_TRANSIENT).
package operation
