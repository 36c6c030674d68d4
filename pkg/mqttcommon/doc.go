// Package mqttcommon holds the request plumbing shared by operations that
// exchange messages with the Device Update service: message contexts with
// correlation ids, the prerequisite chain that must hold before a request is
// published, and validation of the common response envelope.
package mqttcommon
