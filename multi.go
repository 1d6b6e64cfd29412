package memolock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchError reports partial failure of a GetMulti/SetMulti call: which
// inputs succeeded and the specific error each failed input hit.
type BatchError[K any] struct {
	Failed    map[string]error
	Succeeded []K
}

func (e *BatchError[K]) Error() string {
	if len(e.Failed) == 0 {
		return "memolock: no failures in batch operation"
	}
	total := len(e.Failed) + len(e.Succeeded)
	return fmt.Sprintf("memolock: batch operation partially failed: %d/%d keys failed", len(e.Failed), total)
}

// HasFailures reports whether any input failed.
func (e *BatchError[K]) HasFailures() bool { return len(e.Failed) > 0 }

// AllSucceeded reports whether every input succeeded.
func (e *BatchError[K]) AllSucceeded() bool { return len(e.Failed) == 0 }

// GetMulti runs Get concurrently for every v in vs. Each key still
// collapses concurrent duplicate fetches through the ordinary memolock
// protocol; GetMulti's only job is to fan the independent per-key calls
// out and gather them. On partial failure, it returns the successfully
// fetched values alongside a *BatchError[K] describing the rest.
func (cl *Client[K, V]) GetMulti(ctx context.Context, vs []K, overrides ...Options[V]) ([]V, error) {
	results := make([]V, len(vs))
	failed := make(map[string]error)
	succeeded := make([]K, 0, len(vs))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	for i, v := range vs {
		i, v := i, v
		eg.Go(func() error {
			val, err := cl.Get(egCtx, v, overrides...)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[cl.getKey(v)] = err
				return nil
			}
			results[i] = val
			succeeded = append(succeeded, v)
			return nil
		})
	}
	// eg.Wait only ever returns an error from a goroutine that itself
	// returns one; every failure here is instead recorded in failed so
	// one bad key doesn't cancel its siblings' in-flight fetches.
	_ = eg.Wait()

	if len(failed) > 0 {
		return results, &BatchError[K]{Failed: failed, Succeeded: succeeded}
	}
	return results, nil
}

// SetMulti runs Set concurrently for every (v, data) pair. On partial
// failure, it returns a *BatchError[K] describing which keys failed.
func (cl *Client[K, V]) SetMulti(ctx context.Context, vs []K, data []V, overrides ...Options[V]) error {
	if len(vs) != len(data) {
		return fmt.Errorf("memolock: SetMulti got %d keys but %d values", len(vs), len(data))
	}

	failed := make(map[string]error)
	succeeded := make([]K, 0, len(vs))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	for i := range vs {
		v, d := vs[i], data[i]
		eg.Go(func() error {
			err := cl.Set(egCtx, v, d, overrides...)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[cl.getKey(v)] = err
				return nil
			}
			succeeded = append(succeeded, v)
			return nil
		})
	}
	_ = eg.Wait()

	if len(failed) > 0 {
		return &BatchError[K]{Failed: failed, Succeeded: succeeded}
	}
	return nil
}
