// Package memolock provides a distributed memoization lock on top of a
// Redis-compatible backing store: for any given cache key, at most one
// fetch of the underlying resource runs at a time across every process
// sharing the store, and every other concurrent caller — local or remote —
// blocks on a pub/sub notification and receives the computed value without
// itself invoking the fetch.
//
// # Basic usage
//
//	store, err := backingstore.NewRedisStore(rueidis.ClientOption{
//	    InitAddress: []string{"localhost:6379"},
//	})
//	if err != nil {
//	    return err
//	}
//	cache, err := memolock.NewCache(store, memolock.CacheOption{})
//	if err != nil {
//	    return err
//	}
//	defer cache.Disconnect()
//
//	val, err := memolock.Get(ctx, cache, "user:123", memolock.Options[User]{TTL: time.Minute},
//	    func(ctx context.Context) (User, error) {
//	        return fetchUserFromDB(ctx, "123")
//	    })
//
// Callers with a fixed key-derivation function and fetch function should
// use Client instead, which binds both once at construction time.
//
// # What this is not
//
// This is not a replacement for a strongly consistent distributed lock.
// Its correctness target is "avoid duplicate work under normal operation,
// make progress under all failures", not mutual exclusion under arbitrary
// network partitions: it guarantees that eventually a fetch completes and
// every waiter either receives a value or an error, not that exactly one
// fetch ever occurs.
//
// Set is cache-warming only and does not go through the lock protocol: it
// races with any in-flight Get's pipeline on the same key, and whichever
// write reaches the store last wins. This race is left unresolved.
package memolock
