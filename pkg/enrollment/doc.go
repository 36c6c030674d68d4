// Package enrollment implements the enrollment handshake with the Device
// Update service.
//
// The operation publishes an enr_req on adu/oto/<deviceId>/a once the device
// is registered and the service channel has the response topic subscribed.
// The service answers with an enr_resp carrying the same correlation data and
// a JSON body:
//
//	{"isEnrolled": true, "scopeId": "<service instance>"}
//
// On success the service instance is written to the State Store under
// deviceUpdateServiceInstance. The operation keeps polling every
// RefreshInterval so revocation and renewal are picked up.
package enrollment
