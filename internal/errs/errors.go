// Package errs defines the sentinel errors shared by the coordinator and
// multiplexer. They are wrapped, never compared by message, so callers use
// errors.Is against these values.
package errs

import "errors"

var (
	// ErrNeverUnlocked is returned verbatim by Coordinator.Get once
	// maxAttempts is exhausted without ever observing a done message.
	ErrNeverUnlocked = errors.New("Never received message that key was unlocked.")

	// ErrDecode marks a failure of the configured decode function applied
	// to a cached value. Pub/sub payload decode failures are not wrapped
	// with it; the waiter retries instead.
	ErrDecode = errors.New("failed to decode value")
)
