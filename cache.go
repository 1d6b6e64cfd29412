package memolock

import (
	"context"
	"errors"
	"log/slog"

	"github.com/demipixel/memolock/internal/backingstore"
	"github.com/demipixel/memolock/internal/codec"
	"github.com/demipixel/memolock/internal/coordinator"
	"github.com/demipixel/memolock/internal/multiplex"
	"github.com/demipixel/memolock/internal/syncx"
)

// Cache is the raw, string-keyed memolock surface: the backing-store
// connection, the done-channel multiplexer, and the lock-dedup set shared
// by every Get/Set/Delete call regardless of the value type V a given call
// happens to decode to. Typed callers should use Client instead.
type Cache struct {
	store backingstore.Store
	mux   *multiplex.Multiplexer[string]
	log   Logger

	lockedLocally syncx.Set[string]
}

// NewCache wraps store (typically *backingstore.RedisStore) with the
// memolock protocol. It wires store's inbound pub/sub messages to the
// done-channel multiplexer, so store.OnMessage must not be reassigned
// afterward.
func NewCache(store backingstore.Store, opt CacheOption) (*Cache, error) {
	if store == nil {
		return nil, errNilStore
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}

	c := &Cache{store: store, log: opt.Logger}
	c.mux = multiplex.New[string](store, opt.Logger)
	store.OnMessage(c.mux.Deliver)
	return c, nil
}

// Disconnect releases the underlying backing-store connection(s), if the
// store implements a Disconnect method (as backingstore.RedisStore does).
// It swallows "already closed" errors the same way the store itself does.
func (c *Cache) Disconnect() {
	type disconnecter interface{ Disconnect() }
	if d, ok := c.store.(disconnecter); ok {
		d.Disconnect()
	}
}

// Get reads key from c, or — on a miss — runs fetch, memoizing the result
// across every concurrent caller for key, local or remote, per the
// memolock protocol.
func Get[V any](ctx context.Context, c *Cache, key string, opts Options[V], fetch coordinator.Fetch[V]) (V, error) {
	co := coordinator.New[V](c.store, c.mux, &c.lockedLocally, c.log, encodeFor(opts), decodeFor[V](opts))
	return co.Get(ctx, key, opts.toInternal(), fetch)
}

// Delete removes key's cached value. It does not touch the lock sentinel
// and does not notify waiters; a concurrent fetch may immediately
// repopulate the key.
func Delete(ctx context.Context, c *Cache, key string) (int, error) {
	return c.store.Del(ctx, key)
}

// Set stores v at key for cache-warming, without going through the lock
// protocol. It races with any in-flight Get's pipeline on the same key
// (last writer wins) — see the package doc's "What this is not" for why
// this race is intentionally left unresolved.
func Set[V any](ctx context.Context, c *Cache, key string, v V, opts Options[V]) error {
	co := coordinator.New[V](c.store, c.mux, &c.lockedLocally, c.log, encodeFor(opts), decodeFor[V](opts))
	return co.Set(ctx, key, v, opts.toInternal())
}

func encodeFor[V any](opts Options[V]) func(V) (string, error) {
	if opts.Encode != nil {
		return opts.Encode
	}
	return codec.DefaultEncode[V]
}

func decodeFor[V any](opts Options[V]) func(string) (V, error) {
	if opts.Decode != nil {
		return opts.Decode
	}
	return codec.DefaultDecode[V]
}

var errNilStore = errors.New("memolock: store must not be nil")
