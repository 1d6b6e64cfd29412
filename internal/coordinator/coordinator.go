// Package coordinator implements the lock/wait coordinator: the memolock
// algorithm itself. For a given key it reads the cache, and on a miss
// either becomes the fetcher (having won SetNxPX on the lock sentinel) or
// becomes a waiter (subscribed to the done channel via the multiplexer),
// retrying from the top on timeout up to a bounded number of attempts.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/demipixel/memolock/internal/backingstore"
	"github.com/demipixel/memolock/internal/contextx"
	"github.com/demipixel/memolock/internal/errs"
	"github.com/demipixel/memolock/internal/logger"
	"github.com/demipixel/memolock/internal/multiplex"
	"github.com/demipixel/memolock/internal/syncx"
)

const cleanupTimeout = 5 * time.Second

// lockValue is the fixed lock-sentinel value (spec.md §6, bit-exact):
// unlike the teacher's per-acquirer UUID lock values, every memolock
// acquirer writes the same literal, since nothing here ever needs to tell
// two concurrent acquirers apart by value alone.
const lockValue = "locked"

// Options configures one Get/Set/Delete call. Zero-value fields take the
// defaults documented per-field below.
type Options[V any] struct {
	// TTL is the cache entry's lifetime. May be 0 to skip storing the value
	// (the fetch still runs and still unblocks waiters) on a per-call basis.
	TTL time.Duration
	// TTLFunc, if set, overrides TTL and is evaluated against the fetched
	// value, matching the spec's "TTL may be a function of the value".
	TTLFunc func(V) time.Duration

	// LockTimeout is the lock sentinel's TTL and the waiter's per-attempt
	// subscription timeout. Defaults to 1 second.
	LockTimeout time.Duration
	// MaxAttempts bounds the retry loop a waiter runs before giving up.
	// Defaults to 3.
	MaxAttempts int
	// ForceRefresh skips the initial cache read but still runs the full
	// lock protocol.
	ForceRefresh bool

	// Encode/Decode default to JSON via internal/codec when nil.
	Encode func(V) (string, error)
	Decode func(string) (V, error)

	// CacheIf decides whether a fetched value is stored; it still publishes
	// to waiters either way. Defaults to always-true.
	CacheIf func(V) bool

	// ErrorHandler receives best-effort cleanup failures that are never
	// surfaced to a caller. Defaults to the Coordinator's configured
	// Logger.Error.
	ErrorHandler func(error)
}

func (o Options[V]) ttlFor(v V) time.Duration {
	if o.TTLFunc != nil {
		return o.TTLFunc(v)
	}
	return o.TTL
}

func (o Options[V]) cacheIf(v V) bool {
	if o.CacheIf == nil {
		return true
	}
	return o.CacheIf(v)
}

func (o Options[V]) lockTimeout() time.Duration {
	if o.LockTimeout > 0 {
		return o.LockTimeout
	}
	return time.Second
}

func (o Options[V]) maxAttempts() int {
	if o.MaxAttempts > 0 {
		return o.MaxAttempts
	}
	return 3
}

// Fetch computes the value to cache for a key on a miss.
type Fetch[V any] func(ctx context.Context) (V, error)

// Coordinator runs the memolock algorithm for keys whose cached payload
// decodes to V.
type Coordinator[V any] struct {
	store backingstore.Store
	mux   *multiplex.Multiplexer[string]
	log   logger.Logger

	// lockedLocally is owned by the caller (typically one Cache instance)
	// and shared across every Coordinator[V] constructed against the same
	// key space, since the set must dedupe SetNX attempts regardless of
	// which V a particular call happens to decode to.
	lockedLocally *syncx.Set[string]

	encode func(V) (string, error)
	decode func(string) (V, error)
}

// New returns a Coordinator backed by store, using mux as its done-channel
// multiplexer and lockedLocally as its local lock-dedup set. Both are
// shared across every Coordinator instance constructed against the same
// cache, since the wire payload is always an encoded string and
// lock ownership is per-key, not per-V. defaultEncode/defaultDecode are
// used whenever a call's Options don't override them.
func New[V any](store backingstore.Store, mux *multiplex.Multiplexer[string], lockedLocally *syncx.Set[string], log logger.Logger, defaultEncode func(V) (string, error), defaultDecode func(string) (V, error)) *Coordinator[V] {
	return &Coordinator[V]{store: store, mux: mux, lockedLocally: lockedLocally, log: log, encode: defaultEncode, decode: defaultDecode}
}

func (c *Coordinator[V]) encodeFor(opts Options[V]) func(V) (string, error) {
	if opts.Encode != nil {
		return opts.Encode
	}
	return c.encode
}

func (c *Coordinator[V]) decodeFor(opts Options[V]) func(string) (V, error) {
	if opts.Decode != nil {
		return opts.Decode
	}
	return c.decode
}

func (c *Coordinator[V]) errorHandler(opts Options[V]) func(error) {
	if opts.ErrorHandler != nil {
		return opts.ErrorHandler
	}
	return func(err error) { c.log.Error("coordinator: best-effort cleanup failed", "err", err) }
}

// Get runs the full memolock algorithm for key: a cache read (unless
// opts.ForceRefresh), then lock-or-wait, then either fetch-and-publish or
// wait-and-decode, with at most opts.MaxAttempts attempts in total.
func (c *Coordinator[V]) Get(ctx context.Context, key string, opts Options[V], fetch Fetch[V]) (V, error) {
	callID := uuid.New().String()
	c.log.Debug("coordinator: get starting", "call_id", callID, "key", key)
	v, err := c.getAttempt(ctx, callID, key, opts, fetch, 0)
	if err != nil {
		c.log.Debug("coordinator: get finished with error", "call_id", callID, "key", key, "err", err)
	} else {
		c.log.Debug("coordinator: get finished", "call_id", callID, "key", key)
	}
	return v, err
}

func (c *Coordinator[V]) getAttempt(ctx context.Context, callID, key string, opts Options[V], fetch Fetch[V], attempt int) (V, error) {
	var zero V

	if !opts.ForceRefresh {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return zero, err
		}
		if ok {
			decode := c.decodeFor(opts)
			v, err := decode(raw)
			if err != nil {
				return zero, fmt.Errorf("%w: %w", errs.ErrDecode, err)
			}
			return v, nil
		}
	}

	return c.acquireOrWait(ctx, callID, key, opts, fetch, attempt)
}

func (c *Coordinator[V]) acquireOrWait(ctx context.Context, callID, key string, opts Options[V], fetch Fetch[V], attempt int) (V, error) {
	var zero V

	lockTimeout := opts.lockTimeout()
	lockKey := key + ":lock"
	doneChannel := key + "_done"

	acquired := false
	if !c.lockedLocally.Has(key) {
		var err error
		acquired, err = c.store.SetNxPX(ctx, lockKey, lockValue, lockTimeout)
		if err != nil {
			return zero, err
		}
		c.lockedLocally.Add(key)
	}
	c.log.Debug("coordinator: lock determined", "call_id", callID, "key", key, "acquired", acquired, "attempt", attempt)

	if acquired {
		return c.fetchAndPublish(ctx, key, lockKey, doneChannel, opts, fetch)
	}
	return c.wait(ctx, callID, key, doneChannel, opts, fetch, attempt, lockTimeout)
}

func (c *Coordinator[V]) wait(ctx context.Context, callID, key, doneChannel string, opts Options[V], fetch Fetch[V], attempt int, lockTimeout time.Duration) (V, error) {
	var zero V
	decode := c.decodeFor(opts)

	type outcome struct {
		value V
		err   error
	}
	resultCh := make(chan outcome, 1)

	w := &multiplex.Waiter[string]{
		OnSuccess: func(payload string) {
			c.lockedLocally.Remove(key)
			v, err := decode(payload)
			resultCh <- outcome{value: v, err: err}
		},
		OnError: func(timeout bool, err error) {
			c.lockedLocally.Remove(key)
			resultCh <- outcome{err: waiterError(timeout, err)}
		},
	}

	c.mux.SubscribeOnce(ctx, doneChannel, lockTimeout, decodeRaw, w)

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-resultCh:
		if res.err == nil {
			return res.value, nil
		}
		if attempt+1 < opts.maxAttempts() {
			return c.getAttempt(ctx, callID, key, opts, fetch, attempt+1)
		}
		return zero, errs.ErrNeverUnlocked
	}
}

// decodeRaw is the identity decode used at the multiplexer layer; the
// coordinator decodes into V itself once a payload is delivered, since the
// shared Multiplexer[string] has no knowledge of V.
func decodeRaw(s string) (string, error) { return s, nil }

func waiterError(timeout bool, err error) error {
	if err != nil {
		return err
	}
	if timeout {
		return errs.ErrNeverUnlocked
	}
	return errors.New("coordinator: multiplexer reported a non-timeout error with no cause")
}

func (c *Coordinator[V]) fetchAndPublish(ctx context.Context, key, lockKey, doneChannel string, opts Options[V], fetch Fetch[V]) (V, error) {
	var zero V

	value, fetchErr := fetch(ctx)
	if fetchErr != nil {
		c.releaseLockBestEffort(ctx, lockKey, opts)
		c.lockedLocally.Remove(key)
		return zero, fetchErr
	}

	encode := c.encodeFor(opts)
	encoded, err := encode(value)
	if err != nil {
		c.releaseLockBestEffort(ctx, lockKey, opts)
		c.lockedLocally.Remove(key)
		return zero, err
	}
	if encoded == "" {
		encoded = "null"
	}

	ops := make([]backingstore.Op, 0, 2)
	if opts.cacheIf(value) {
		if ttl := opts.ttlFor(value); ttl > 0 {
			ops = append(ops, backingstore.SetPXOp(key, encoded, ttl))
		}
	}
	ops = append(ops, backingstore.PublishOp(doneChannel, encoded))

	if err := c.store.Pipeline(ctx, ops); err != nil {
		c.errorHandler(opts)(fmt.Errorf("coordinator: pipeline after fetch failed: %w", err))
	}

	// CAS-delete on the fixed lock value. Because every acquirer writes the
	// same value, this deletes any lock still holding it, including one that
	// another process re-acquired after ours expired.
	if _, err := c.store.DelIfEquals(ctx, lockKey, lockValue); err != nil {
		c.errorHandler(opts)(fmt.Errorf("coordinator: releasing lock after fetch: %w", err))
	}

	c.lockedLocally.Remove(key)
	return value, nil
}

func (c *Coordinator[V]) releaseLockBestEffort(parent context.Context, lockKey string, opts Options[V]) {
	ctx, cancel := contextx.WithCleanupTimeout(parent, cleanupTimeout)
	defer cancel()
	if _, err := c.store.DelIfEquals(ctx, lockKey, lockValue); err != nil {
		c.errorHandler(opts)(fmt.Errorf("coordinator: releasing lock after fetch failure: %w", err))
	}
}

// Delete removes key's cached value. It does not touch the lock sentinel
// and does not notify waiters; an in-flight fetch may immediately
// repopulate the key.
func (c *Coordinator[V]) Delete(ctx context.Context, key string) (int, error) {
	return c.store.Del(ctx, key)
}

// Set stores v at key for cache-warming, racing with any in-flight Get's
// pipeline on the same key (last writer wins). The memolock package doc
// describes this race, which is left unresolved.
func (c *Coordinator[V]) Set(ctx context.Context, key string, v V, opts Options[V]) error {
	encode := c.encodeFor(opts)
	encoded, err := encode(v)
	if err != nil {
		return err
	}
	if encoded == "" {
		encoded = "null"
	}
	return c.store.SetPX(ctx, key, encoded, opts.ttlFor(v))
}
