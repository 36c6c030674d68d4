// Package retry provides the retry classes and backoff curves used by
// retriable agent operations.
//
// # Retry Classes
//
// Each class keeps an independent attempt counter:
//
//   - DEFAULT: a prerequisite is not ready yet (1s, doubling, capped at 60s)
//   - CLIENT_TRANSIENT: a local client call was rejected (5s, doubling, capped at 10m, 25% jitter)
//   - CLIENT_UNRECOVERABLE: slow bounded retries after a hard client failure
//   - SERVICE_TRANSIENT: the service asked the device to back off
//
// # Jitter
//
//	actual_delay = base_delay + random(0, base_delay * jitter)
//
// A class with MaxAttempts set stops producing delays once the attempts are
// used up; callers treat that as a terminal failure.
package retry
