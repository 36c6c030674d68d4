// Package statestore provides the synchronized process-wide key/value store
// that agent modules use to share device facts.
//
// Provisioning writes the external device id, the registration flag and,
// when the broker hostname comes from provisioning, the broker hostname.
// Enrollment writes the device update service instance. The communication
// channel manager registers its handle under its channel id.
//
// Facts can be persisted to a JSON file so they survive agent restarts.
// Writers only mark the store dirty; the agent main loop flushes it, so the
// MQTT receive goroutine never does file I/O.
package statestore
