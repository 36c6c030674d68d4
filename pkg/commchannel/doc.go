// Package commchannel manages the MQTT v5 session the agent uses to talk to
// the Device Update service.
//
// A Manager is registered in the State Store under its channel id. It waits
// for the external device id and broker hostname, connects with autopaho,
// keeps the common service-to-device topic subscribed across reconnects, and
// dispatches incoming messages to handlers by their "mt" user property.
//
// The channel moves through these states:
//
//	DISCONNECTED -> CONNECTING -> SUBSCRIBING -> SUBSCRIBED
//	                    |              |
//	                    +---> ERROR <--+
//
// Subscribe and Publish never block. Operations check IsSubscribed on later
// ticks and receive publish outcomes through a callback.
package commchannel
