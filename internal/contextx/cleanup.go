// Package contextx provides context utilities shared across memolock's
// components for cleanup operations that must survive the cancellation of
// whatever request triggered them.
package contextx

import (
	"context"
	"time"
)

// WithCleanupTimeout returns a context detached from parent's cancellation
// (so a caller that abandons its Get does not abort lock or subscription
// cleanup) but bounded by its own timeout to avoid blocking indefinitely on
// a wedged backing store.
func WithCleanupTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	cleanupCtx := context.WithoutCancel(parent)
	return context.WithTimeout(cleanupCtx, timeout)
}
