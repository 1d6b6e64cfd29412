//go:build integration

package backingstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/require"

	"github.com/demipixel/memolock/internal/backingstore"
)

var addr = []string{"127.0.0.1:6379"}

func TestRedisStore_PubSubRoundTrip(t *testing.T) {
	store, err := backingstore.NewRedisStore(rueidis.ClientOption{InitAddress: addr})
	require.NoError(t, err)
	defer store.Disconnect()

	channel := "memolock-test:" + uuid.New().String() + "_done"
	got := make(chan string, 1)
	store.OnMessage(func(ch, payload string) {
		if ch == channel {
			got <- payload
		}
	})

	require.NoError(t, store.Subscribe(context.Background(), channel))
	defer store.Unsubscribe(context.Background(), channel)

	// Give the subscription a moment to register upstream before publishing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, store.Publish(context.Background(), channel, "payload"))

	select {
	case payload := <-got:
		require.Equal(t, "payload", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("never received published message")
	}
}

func TestRedisStore_SetNxPXContention(t *testing.T) {
	store, err := backingstore.NewRedisStore(rueidis.ClientOption{InitAddress: addr})
	require.NoError(t, err)
	defer store.Disconnect()

	key := "memolock-test:" + uuid.New().String() + ":lock"
	ctx := context.Background()

	acquired, err := store.SetNxPX(ctx, key, "locked", time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = store.SetNxPX(ctx, key, "locked", time.Second)
	require.NoError(t, err)
	require.False(t, acquired)

	n, err := store.Del(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRedisStore_DelIfEqualsRespectsOwnership(t *testing.T) {
	store, err := backingstore.NewRedisStore(rueidis.ClientOption{InitAddress: addr})
	require.NoError(t, err)
	defer store.Disconnect()

	ctx := context.Background()
	key := "memolock-test:" + uuid.New().String() + ":lock"

	_, err = store.SetNxPX(ctx, key, "locked", time.Second)
	require.NoError(t, err)

	deleted, err := store.DelIfEquals(ctx, key, "some-other-value")
	require.NoError(t, err)
	require.False(t, deleted, "must not delete a lock value it doesn't own")

	deleted, err = store.DelIfEquals(ctx, key, "locked")
	require.NoError(t, err)
	require.True(t, deleted)

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStore_PipelineOrdering(t *testing.T) {
	store, err := backingstore.NewRedisStore(rueidis.ClientOption{InitAddress: addr})
	require.NoError(t, err)
	defer store.Disconnect()

	ctx := context.Background()
	key := "memolock-test:" + uuid.New().String()
	lockKey := key + ":lock"
	channel := key + "_done"

	_, err = store.SetNxPX(ctx, lockKey, "locked", time.Second)
	require.NoError(t, err)

	err = store.Pipeline(ctx, []backingstore.Op{
		backingstore.SetPXOp(key, "value", time.Minute),
		backingstore.PublishOp(channel, "value"),
		backingstore.DelOp(lockKey),
	})
	require.NoError(t, err)

	val, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value", val)

	_, ok, err = store.Get(ctx, lockKey)
	require.NoError(t, err)
	require.False(t, ok)
}
