package backingstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// newTestStore builds a RedisStore around a mock command client, bypassing
// the constructor (and its Dedicate() call) since these tests only exercise
// the command-client surface.
func newTestStore(cmd *mock.Client) *RedisStore {
	return &RedisStore{cmd: cmd}
}

func TestRedisStore_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("hit", func(t *testing.T) {
		client := mock.NewClient(ctrl)
		client.EXPECT().Do(gomock.Any(), mock.Match("GET", "k")).
			Return(mock.Result(mock.RedisString("v")))

		s := newTestStore(client)
		val, ok, err := s.Get(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v", val)
	})

	t.Run("miss", func(t *testing.T) {
		client := mock.NewClient(ctrl)
		client.EXPECT().Do(gomock.Any(), mock.Match("GET", "k")).
			Return(mock.Result(mock.RedisNil()))

		s := newTestStore(client)
		_, ok, err := s.Get(context.Background(), "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRedisStore_SetNxPX(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("acquired", func(t *testing.T) {
		client := mock.NewClient(ctrl)
		client.EXPECT().Do(gomock.Any(), mock.Match("SET", "k:lock", "locked", "NX", "PX", "1000")).
			Return(mock.Result(mock.RedisString("OK")))

		s := newTestStore(client)
		acquired, err := s.SetNxPX(context.Background(), "k:lock", "locked", time.Second)
		require.NoError(t, err)
		assert.True(t, acquired)
	})

	t.Run("contended", func(t *testing.T) {
		client := mock.NewClient(ctrl)
		client.EXPECT().Do(gomock.Any(), mock.Match("SET", "k:lock", "locked", "NX", "PX", "1000")).
			Return(mock.Result(mock.RedisNil()))

		s := newTestStore(client)
		acquired, err := s.SetNxPX(context.Background(), "k:lock", "locked", time.Second)
		require.NoError(t, err)
		assert.False(t, acquired)
	})
}

func TestRedisStore_Del(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := mock.NewClient(ctrl)
	client.EXPECT().Do(gomock.Any(), mock.Match("DEL", "k")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := newTestStore(client)
	n, err := s.Del(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisStore_Publish(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := mock.NewClient(ctrl)
	client.EXPECT().Do(gomock.Any(), mock.Match("PUBLISH", "k_done", "payload")).
		Return(mock.Result(mock.RedisInt64(0)))

	s := newTestStore(client)
	err := s.Publish(context.Background(), "k_done", "payload")
	require.NoError(t, err)
}

func TestRedisStore_Pipeline_AllSucceed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := mock.NewClient(ctrl)
	client.EXPECT().DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisString("OK")),
			mock.Result(mock.RedisInt64(0)),
			mock.Result(mock.RedisInt64(1)),
		})

	s := newTestStore(client)
	err := s.Pipeline(context.Background(), []Op{
		SetPXOp("k", "v", time.Second),
		PublishOp("k_done", "v"),
		DelOp("k:lock"),
	})
	require.NoError(t, err)
}

func TestRedisStore_Pipeline_PropagatesError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	boom := errors.New("boom")
	client := mock.NewClient(ctrl)
	client.EXPECT().DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{mock.ErrorResult(boom)})

	s := newTestStore(client)
	err := s.Pipeline(context.Background(), []Op{SetPXOp("k", "v", time.Second)})
	require.Error(t, err)
}
