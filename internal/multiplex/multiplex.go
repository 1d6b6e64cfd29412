// Package multiplex implements the one-shot subscription multiplexer:
// it amortizes one upstream backing-store subscription per channel over
// any number of local waiters, and guarantees each waiter's callback
// fires exactly once, whether that firing is caused by an inbound
// message, a decode error, a timeout, or an upstream subscribe failure.
package multiplex

import (
	"context"
	"sync"
	"time"

	"github.com/demipixel/memolock/internal/contextx"
	"github.com/demipixel/memolock/internal/logger"
	"github.com/demipixel/memolock/internal/syncx"
)

// cleanupTimeout bounds best-effort Unsubscribe calls issued after a
// waiter's own context may already be gone (timeout, or a message
// delivered after the originating caller walked away).
const cleanupTimeout = 5 * time.Second

// Store is the subset of the backing-store facade the multiplexer needs.
type Store interface {
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
}

// Waiter is one caller's stake in a channel's eventual message. OnSuccess
// and OnError are guaranteed to fire exactly once between them, regardless
// of whether a message, a decode error, or a timeout triggers it first.
type Waiter[V any] struct {
	OnSuccess func(V)
	OnError   func(timeout bool, err error)

	fired onceFlag
}

// onceFlag is a single-fire latch guarding a waiter's terminal callback.
type onceFlag struct {
	mu   sync.Mutex
	done bool
}

func (f *onceFlag) fireOnce() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return false
	}
	f.done = true
	return true
}

type subInfo[V any] struct {
	mu      sync.Mutex
	waiters map[*Waiter[V]]*time.Timer
	decode  func(string) (V, error)
}

// Multiplexer fans one upstream subscription per channel out to N local
// waiters. A single Multiplexer[V] instance serves every channel that
// decodes to the same V; Coordinator uses one Multiplexer[string] and
// leaves payload decoding to the caller, since the stored done-channel
// payload is always the coordinator's own encoded string.
type Multiplexer[V any] struct {
	store Store
	log   logger.Logger

	subs syncx.Map[string, *subInfo[V]]
}

// New returns a Multiplexer driven by store's inbound message stream. The
// caller is responsible for wiring the backing store's OnMessage handler
// to call Deliver for every inbound message on a channel this multiplexer
// owns.
func New[V any](store Store, log logger.Logger) *Multiplexer[V] {
	return &Multiplexer[V]{store: store, log: log}
}

// SubscribeOnce registers w as a waiter on channel, decoded with decode
// when a message eventually arrives, with a per-waiter timeout of
// timeout. If channel already has a live upstream subscription, w joins
// the existing waiter set and no new Subscribe call is issued.
func (m *Multiplexer[V]) SubscribeOnce(ctx context.Context, channel string, timeout time.Duration, decode func(string) (V, error), w *Waiter[V]) {
	for {
		fresh := &subInfo[V]{waiters: map[*Waiter[V]]*time.Timer{}, decode: decode}
		info, loaded := m.subs.LoadOrStore(channel, fresh)

		if !loaded {
			// We created the entry; we own subscribing upstream.
			if err := m.store.Subscribe(ctx, channel); err != nil {
				m.subs.CompareAndDelete(channel, fresh)
				m.safeOnError(w, false, err)
				return
			}
		}

		info.mu.Lock()
		if info.waiters == nil {
			// Entry was already torn down by a concurrent delivery or
			// timeout between LoadOrStore and this lock; retry against a
			// fresh epoch.
			info.mu.Unlock()
			continue
		}
		info.waiters[w] = time.AfterFunc(timeout, func() { m.fireTimeout(channel, info, w) })
		info.mu.Unlock()
		return
	}
}

func (m *Multiplexer[V]) fireTimeout(channel string, info *subInfo[V], w *Waiter[V]) {
	info.mu.Lock()
	if _, ok := info.waiters[w]; !ok {
		info.mu.Unlock()
		return
	}
	delete(info.waiters, w)
	empty := len(info.waiters) == 0
	if empty {
		info.waiters = nil
	}
	info.mu.Unlock()

	if empty {
		m.subs.CompareAndDelete(channel, info)
		ctx, cancel := contextx.WithCleanupTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := m.store.Unsubscribe(ctx, channel); err != nil {
			m.log.Error("multiplex: unsubscribe after timeout failed", "channel", channel, "err", err)
		}
	}

	m.safeOnError(w, true, nil)
}

// Deliver is invoked by the backing store's inbound message handler. It
// must be called for every message on every channel this multiplexer is
// responsible for; channels with no registered entry (stale or
// unsolicited messages) are discarded.
func (m *Multiplexer[V]) Deliver(channel string, payload string) {
	info, ok := m.subs.LoadAndDelete(channel)
	if !ok {
		return
	}

	info.mu.Lock()
	waiters := info.waiters
	info.waiters = nil
	decode := info.decode
	info.mu.Unlock()

	ctx, cancel := contextx.WithCleanupTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := m.store.Unsubscribe(ctx, channel); err != nil {
		m.log.Error("multiplex: unsubscribe after delivery failed", "channel", channel, "err", err)
	}

	value, err := decode(payload)
	if err != nil {
		for w, t := range waiters {
			t.Stop()
			m.safeOnError(w, false, err)
		}
		return
	}

	for w, t := range waiters {
		t.Stop()
		m.safeOnSuccess(w, value)
	}
}

func (m *Multiplexer[V]) safeOnSuccess(w *Waiter[V], v V) {
	if !w.fired.fireOnce() {
		return
	}
	defer m.recoverCallback("onSuccess")
	if w.OnSuccess != nil {
		w.OnSuccess(v)
	}
}

func (m *Multiplexer[V]) safeOnError(w *Waiter[V], timeout bool, err error) {
	if !w.fired.fireOnce() {
		return
	}
	defer m.recoverCallback("onError")
	if w.OnError != nil {
		w.OnError(timeout, err)
	}
}

func (m *Multiplexer[V]) recoverCallback(which string) {
	if r := recover(); r != nil {
		m.log.Error("multiplex: user callback panicked", "callback", which, "recover", r)
	}
}
