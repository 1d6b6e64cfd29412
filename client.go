package memolock

import (
	"context"
	"errors"
)

// FetchFunc computes the value for v on a cache miss.
type FetchFunc[K, V any] func(ctx context.Context, v K) (V, error)

// GetKeyFunc derives the cache key a memolock call should use for v.
type GetKeyFunc[K any] func(v K) string

// ClientOption configures a Client. getKey and fetch are required; every
// other field mirrors Options and is used as that Options struct's default
// for every call made through this Client (an individual Get call may
// still override via its own Options argument).
type ClientOption[K, V any] struct {
	GetKey GetKeyFunc[K]
	Fetch  FetchFunc[K, V]

	Defaults Options[V]
}

// Client binds a key-derivation function and a fetch function to a Cache,
// for callers that don't want to pass a fetch closure and Options on every
// call.
type Client[K, V any] struct {
	cache    *Cache
	getKey   GetKeyFunc[K]
	fetch    FetchFunc[K, V]
	defaults Options[V]
}

// NewClient returns a Client bound to cache. opt.GetKey and opt.Fetch are
// required.
func NewClient[K, V any](cache *Cache, opt ClientOption[K, V]) (*Client[K, V], error) {
	if cache == nil {
		return nil, errNilStore
	}
	if opt.GetKey == nil {
		return nil, errors.New("memolock: ClientOption.GetKey is required")
	}
	if opt.Fetch == nil {
		return nil, errors.New("memolock: ClientOption.Fetch is required")
	}
	return &Client[K, V]{cache: cache, getKey: opt.GetKey, fetch: opt.Fetch, defaults: opt.Defaults}, nil
}

// mergeOverride lets a call-site Options value override individual
// defaults fields without the caller having to restate every field; zero
// fields in override fall back to the Client's defaults.
func mergeOverride[V any](defaults, override Options[V]) Options[V] {
	merged := defaults
	if override.TTL != 0 {
		merged.TTL = override.TTL
	}
	if override.TTLFunc != nil {
		merged.TTLFunc = override.TTLFunc
	}
	if override.LockTimeout != 0 {
		merged.LockTimeout = override.LockTimeout
	}
	if override.MaxAttempts != 0 {
		merged.MaxAttempts = override.MaxAttempts
	}
	if override.ForceRefresh {
		merged.ForceRefresh = true
	}
	if override.Encode != nil {
		merged.Encode = override.Encode
	}
	if override.Decode != nil {
		merged.Decode = override.Decode
	}
	if override.CacheIf != nil {
		merged.CacheIf = override.CacheIf
	}
	if override.ErrorHandler != nil {
		merged.ErrorHandler = override.ErrorHandler
	}
	return merged
}

// Get derives key = getKey(v) and runs the memolock protocol, fetching via
// fetch(ctx, v) on a miss. overrides, if given, are merged field-by-field
// over the Client's configured defaults.
func (cl *Client[K, V]) Get(ctx context.Context, v K, overrides ...Options[V]) (V, error) {
	opts := cl.defaults
	for _, o := range overrides {
		opts = mergeOverride(opts, o)
	}
	key := cl.getKey(v)
	return Get[V](ctx, cl.cache, key, opts, func(ctx context.Context) (V, error) {
		return cl.fetch(ctx, v)
	})
}

// Delete invalidates v's cached value without touching the lock sentinel
// or notifying waiters.
func (cl *Client[K, V]) Delete(ctx context.Context, v K) (int, error) {
	return Delete(ctx, cl.cache, cl.getKey(v))
}

// Set stores data at v's key for cache-warming; see the package doc for
// the race this permits.
func (cl *Client[K, V]) Set(ctx context.Context, v K, data V, overrides ...Options[V]) error {
	opts := cl.defaults
	for _, o := range overrides {
		opts = mergeOverride(opts, o)
	}
	return Set[V](ctx, cl.cache, cl.getKey(v), data, opts)
}

// Disconnect releases the underlying Cache's backing-store connection(s).
func (cl *Client[K, V]) Disconnect() {
	cl.cache.Disconnect()
}
