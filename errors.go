package memolock

import "github.com/demipixel/memolock/internal/errs"

// Sentinel errors a caller can match against with errors.Is. Cleanup
// failures are never returned here: lock-release failures are routed to
// the configured ErrorHandler, and unsubscribe failures to the Cache's
// Logger.
var (
	// ErrNeverUnlocked is returned by Get once opts.MaxAttempts waiter
	// attempts have all timed out without a done-channel message arriving.
	ErrNeverUnlocked = errs.ErrNeverUnlocked
	// ErrDecode marks a failure decoding a cache hit. The returned error
	// wraps both ErrDecode and the codec's own error, so errors.Is matches
	// either. A done-channel payload that fails to decode is not reported
	// with ErrDecode; the waiter restarts the Get sequence as on a timeout.
	ErrDecode = errs.ErrDecode
)
