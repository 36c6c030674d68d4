package enrollment

import (
	"time"

	"github.com/geebinge/iot-hub-device-update/pkg/mqttcommon"
)

// State is the enrollment progress of the device.
type State uint8

const (
	StateNotStarted State = iota
	StateAwaitingPrerequisites
	StateRequestSent
	StateResponseReceived
	StateRetryScheduled

	// StateEnrolled and StateNotEnrolled are informative; the operation keeps
	// polling to detect revocation or renewal.
	StateEnrolled
	StateNotEnrolled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateAwaitingPrerequisites:
		return "AWAITING_PREREQUISITES"
	case StateRequestSent:
		return "REQUEST_SENT"
	case StateResponseReceived:
		return "RESPONSE_RECEIVED"
	case StateRetryScheduled:
		return "RETRY_SCHEDULED"
	case StateEnrolled:
		return "ENROLLED"
	case StateNotEnrolled:
		return "NOT_ENROLLED"
	default:
		return "UNKNOWN"
	}
}

// Data is a snapshot of the enrollment operation data.
type Data struct {
	State      State
	IsEnrolled bool
	ScopeID    string

	ResultCode         int
	ExtendedResultCode int

	// RespUserProps are the common user properties of the last response.
	RespUserProps mqttcommon.ResponseUserProperties

	RequestSentAt  time.Time
	LastResponseAt time.Time

	// CorrelationID of the outstanding request, if any.
	CorrelationID string
}
