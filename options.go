package memolock

import (
	"time"

	"github.com/demipixel/memolock/internal/coordinator"
)

// Options configures a single Get/Set call. The zero value is valid except
// that TTL (or TTLFunc) should normally be set; a zero TTL caches nothing,
// which is also a legitimate way to opt a specific call out of caching
// while still participating in the lock protocol.
type Options[V any] struct {
	// TTL is the cache entry's lifetime.
	TTL time.Duration
	// TTLFunc, if set, overrides TTL and is evaluated against the fetched
	// value — for when a TTL is a function of what was fetched.
	TTLFunc func(V) time.Duration

	// LockTimeout is the lock sentinel's TTL and a waiter's per-attempt
	// subscription timeout. Defaults to 1 second.
	LockTimeout time.Duration
	// MaxAttempts is the total number of attempts (the first one included)
	// a waiter makes before giving up with ErrNeverUnlocked. Defaults to 3.
	MaxAttempts int
	// ForceRefresh skips the initial cache read but still runs the full
	// lock protocol, so concurrent callers still collapse to one fetch.
	ForceRefresh bool

	// Encode/Decode default to JSON when nil.
	Encode func(V) (string, error)
	Decode func(string) (V, error)

	// CacheIf decides whether a fetched value is stored. Waiters are still
	// notified either way. Defaults to always-true.
	CacheIf func(V) bool

	// ErrorHandler receives best-effort cleanup failures (lock release,
	// pipeline errors) that are never surfaced to a caller. Defaults to the
	// Cache's Logger.Error. Unsubscribe failures and panics in multiplexer
	// callbacks do not reach ErrorHandler; they always go to the Cache's
	// Logger.Error.
	ErrorHandler func(error)
}

func (o Options[V]) toInternal() coordinator.Options[V] {
	return coordinator.Options[V]{
		TTL:          o.TTL,
		TTLFunc:      o.TTLFunc,
		LockTimeout:  o.LockTimeout,
		MaxAttempts:  o.MaxAttempts,
		ForceRefresh: o.ForceRefresh,
		Encode:       o.Encode,
		Decode:       o.Decode,
		CacheIf:      o.CacheIf,
		ErrorHandler: o.ErrorHandler,
	}
}

// CacheOption configures a Cache. All fields are optional with sensible
// defaults, validated in NewCache.
type CacheOption struct {
	// Logger receives Error/Debug diagnostics. Defaults to slog.Default().
	Logger Logger
}
