// Package backingstore defines the narrow facade the coordinator and
// multiplexer depend on (spec.md §4.A), and a rueidis-backed implementation
// of it that honors the dual-client discipline: a command client for
// GET/SET/DEL/PUBLISH/PIPELINE and a dedicated subscription client that only
// ever sits in subscribe mode.
package backingstore

import (
	"context"
	"time"
)

// OpKind identifies one command inside a Pipeline batch.
type OpKind int

const (
	// OpSetPX stores a value with a millisecond TTL.
	OpSetPX OpKind = iota
	// OpPublish publishes a payload on a channel.
	OpPublish
	// OpDel deletes a key.
	OpDel
)

// Op is one command in a Pipeline batch. Submission order is preserved by
// every implementation; no implementation is required to execute the batch
// transactionally (spec.md §4.A).
type Op struct {
	Kind  OpKind
	Key   string // key for OpSetPX/OpDel, channel for OpPublish
	Value string // value for OpSetPX, payload for OpPublish; unused for OpDel
	TTL   time.Duration
}

// SetPXOp builds an Op that stores value at key with the given TTL.
func SetPXOp(key, value string, ttl time.Duration) Op {
	return Op{Kind: OpSetPX, Key: key, Value: value, TTL: ttl}
}

// PublishOp builds an Op that publishes payload on channel.
func PublishOp(channel, payload string) Op {
	return Op{Kind: OpPublish, Key: channel, Value: payload}
}

// DelOp builds an Op that deletes key.
func DelOp(key string) Op {
	return Op{Kind: OpDel, Key: key}
}

// Store is the backing-store facade required by spec.md §4.A. Every method
// other than OnMessage is a direct synchronous request/response operation;
// OnMessage registers the process-wide inbound handler fed by the
// subscription client.
type Store interface {
	// Get returns the value at key, or ok=false if the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// SetPX stores value at key with a millisecond TTL.
	SetPX(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNxPX stores value at key with a millisecond TTL only if key is
	// currently absent. acquired reports whether this call set the value.
	SetNxPX(ctx context.Context, key, value string, ttl time.Duration) (acquired bool, err error)
	// Del removes key, returning the number of keys actually removed (0 or 1).
	Del(ctx context.Context, key string) (count int, err error)
	// DelIfEquals removes key only if its current value equals expected,
	// atomically (a compare-and-delete). Used to release the lock sentinel;
	// since every acquirer writes the same sentinel value, it does not
	// distinguish this process's lock from one another process re-acquired.
	DelIfEquals(ctx context.Context, key, expected string) (deleted bool, err error)
	// Publish publishes payload on channel.
	Publish(ctx context.Context, channel, payload string) error
	// Subscribe opens an upstream subscription to channel on the dedicated
	// subscription client.
	Subscribe(ctx context.Context, channel string) error
	// Unsubscribe closes the upstream subscription to channel.
	Unsubscribe(ctx context.Context, channel string) error
	// Pipeline dispatches ops in order as a single best-effort batch.
	Pipeline(ctx context.Context, ops []Op) error
	// OnMessage registers the process-wide handler invoked for every inbound
	// pub/sub message. Only one handler is active at a time; registering a
	// new one replaces the previous.
	OnMessage(handler func(channel, payload string))
}
