package backingstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/rueidis"
)

// delIfEqualsScript atomically deletes a key only if its current value
// matches the expected one.
var delIfEqualsScript = rueidis.NewLuaScript(
	`if redis.call("GET",KEYS[1]) == ARGV[1] then return redis.call("DEL",KEYS[1]) else return 0 end`,
)

// RedisStore implements Store on top of rueidis. It keeps two logically
// distinct clients as required by spec.md §4.A: cmd issues GET/SET/DEL/
// PUBLISH/pipelined commands, and sub is a dedicated client (via
// cmd.Dedicate()) that only ever issues SUBSCRIBE/UNSUBSCRIBE, since rueidis
// — like most pub/sub-capable Redis clients — refuses regular commands on a
// connection that has entered subscribe mode.
type RedisStore struct {
	cmd       rueidis.Client
	sub       rueidis.DedicatedClient
	subCancel func()

	handler atomic.Pointer[func(channel, payload string)]
}

// NewRedisStore dials clientOption and returns a RedisStore ready to use.
func NewRedisStore(clientOption rueidis.ClientOption) (*RedisStore, error) {
	cmd, err := rueidis.NewClient(clientOption)
	if err != nil {
		return nil, err
	}
	return newRedisStoreFromClient(cmd), nil
}

func newRedisStoreFromClient(cmd rueidis.Client) *RedisStore {
	sub, cancel := cmd.Dedicate()
	s := &RedisStore{cmd: cmd, sub: sub, subCancel: cancel}

	sub.SetPubSubHooks(rueidis.PubSubHooks{
		OnMessage: func(m rueidis.PubSubMessage) {
			if h := s.handler.Load(); h != nil {
				(*h)(m.Channel, m.Message)
			}
		},
	})
	return s
}

// Client exposes the underlying command client for advanced use. Direct
// operations on it bypass the memolock protocol.
func (s *RedisStore) Client() rueidis.Client {
	return s.cmd
}

func (s *RedisStore) OnMessage(handler func(channel, payload string)) {
	s.handler.Store(&handler)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	resp := s.cmd.Do(ctx, s.cmd.B().Get().Key(key).Build())
	val, err := resp.ToString()
	switch {
	case rueidis.IsRedisNil(err):
		return "", false, nil
	case err != nil:
		return "", false, err
	default:
		return val, true, nil
	}
}

func (s *RedisStore) SetPX(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.cmd.Do(ctx, s.cmd.B().Set().Key(key).Value(value).Px(ttl).Build()).Error()
}

func (s *RedisStore) SetNxPX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	err := s.cmd.Do(ctx, s.cmd.B().Set().Key(key).Value(value).Nx().Px(ttl).Build()).Error()
	switch {
	case err == nil:
		return true, nil
	case rueidis.IsRedisNil(err):
		return false, nil
	default:
		return false, err
	}
}

func (s *RedisStore) Del(ctx context.Context, key string) (int, error) {
	n, err := s.cmd.Do(ctx, s.cmd.B().Del().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *RedisStore) DelIfEquals(ctx context.Context, key, expected string) (bool, error) {
	n, err := delIfEqualsScript.Exec(ctx, s.cmd, []string{key}, []string{expected}).AsInt64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) Publish(ctx context.Context, channel, payload string) error {
	return s.cmd.Do(ctx, s.cmd.B().Publish().Channel(channel).Message(payload).Build()).Error()
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) error {
	return s.sub.Do(ctx, s.sub.B().Subscribe().Channel(channel).Build()).Error()
}

func (s *RedisStore) Unsubscribe(ctx context.Context, channel string) error {
	return s.sub.Do(ctx, s.sub.B().Unsubscribe().Channel(channel).Build()).Error()
}

func (s *RedisStore) Pipeline(ctx context.Context, ops []Op) error {
	cmds := make(rueidis.Commands, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case OpSetPX:
			cmds = append(cmds, s.cmd.B().Set().Key(op.Key).Value(op.Value).Px(op.TTL).Build())
		case OpPublish:
			cmds = append(cmds, s.cmd.B().Publish().Channel(op.Key).Message(op.Value).Build())
		case OpDel:
			cmds = append(cmds, s.cmd.B().Del().Key(op.Key).Build())
		}
	}
	resps := s.cmd.DoMulti(ctx, cmds...)
	for _, r := range resps {
		if err := r.Error(); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect quits both backing-store clients concurrently, swallowing
// "already closed" panics that can occur if Disconnect races a connection
// error from the dedicated client's own teardown.
func (s *RedisStore) Disconnect() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer swallowAlreadyClosed()
		s.subCancel()
	}()
	go func() {
		defer wg.Done()
		defer swallowAlreadyClosed()
		s.cmd.Close()
	}()
	wg.Wait()
}

func swallowAlreadyClosed() {
	_ = recover()
}
