package faketest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/demipixel/memolock/internal/backingstore"
)

// Store is an in-memory backingstore.Store double. It supports the full
// facade surface (values, lock sentinels via SetNxPX, pub/sub, pipelines)
// well enough to drive coordinator and multiplexer tests without a real
// Redis.
type Store struct {
	mu        sync.Mutex
	values    map[string]string
	handler   func(channel, payload string)
	subs      map[string]int
	subCalls  map[string]int
	Published []Publication

	// FailSubscribe, when non-nil, is returned by Subscribe for channel.
	FailSubscribe map[string]error
}

// Publication records one Publish call, for assertions.
type Publication struct {
	Channel string
	Payload string
}

func NewStore() *Store {
	return &Store{
		values:   map[string]string{},
		subs:     map[string]int{},
		subCalls: map[string]int{},
	}
}

func (s *Store) OnMessage(handler func(channel, payload string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Deliver simulates an inbound pub/sub message, as if published by
// another process, bypassing Publish's local dispatch.
func (s *Store) Deliver(channel, payload string) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(channel, payload)
	}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) SetPX(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Store) SetNxPX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; exists {
		return false, nil
	}
	s.values[key] = value
	return true, nil
}

func (s *Store) Del(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return 0, nil
	}
	delete(s.values, key)
	return 1, nil
}

func (s *Store) DelIfEquals(_ context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[key] != expected {
		return false, nil
	}
	delete(s.values, key)
	return true, nil
}

func (s *Store) Publish(_ context.Context, channel, payload string) error {
	s.mu.Lock()
	s.Published = append(s.Published, Publication{Channel: channel, Payload: payload})
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(channel, payload)
	}
	return nil
}

func (s *Store) Subscribe(_ context.Context, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subCalls[channel]++
	if err, ok := s.FailSubscribe[channel]; ok {
		return err
	}
	s.subs[channel]++
	return nil
}

// SubscribeCalls returns how many times Subscribe was actually invoked for
// channel, regardless of outcome, for asserting the multiplexer amortized
// concurrent waiters into a single upstream subscription.
func (s *Store) SubscribeCalls(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subCalls[channel]
}

func (s *Store) Unsubscribe(_ context.Context, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[channel]--
	return nil
}

// SubscriptionCount returns how many net outstanding Subscribe calls
// channel has, for asserting that the multiplexer unsubscribed.
func (s *Store) SubscriptionCount(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[channel]
}

func (s *Store) Pipeline(ctx context.Context, ops []backingstore.Op) error {
	for _, op := range ops {
		switch op.Kind {
		case backingstore.OpSetPX:
			if err := s.SetPX(ctx, op.Key, op.Value, op.TTL); err != nil {
				return err
			}
		case backingstore.OpPublish:
			if err := s.Publish(ctx, op.Key, op.Value); err != nil {
				return err
			}
		case backingstore.OpDel:
			if _, err := s.Del(ctx, op.Key); err != nil {
				return err
			}
		default:
			return fmt.Errorf("faketest: unknown op kind %v", op.Kind)
		}
	}
	return nil
}

var _ backingstore.Store = (*Store)(nil)
