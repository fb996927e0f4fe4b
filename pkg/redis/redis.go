// Package redis provides a relay.Watcher for a Redis string key, driven by
// keyspace notifications.
package redis

import (
	"bytes"
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/zoobzio/relay"
)

var _ relay.Watcher = (*Watcher)(nil)

// isWrite reports whether a keyspace event can change a string value.
func isWrite(event string) bool {
	switch event {
	case "set", "setex", "psetex", "setnx", "setrange", "append", "mset", "rename_to":
		return true
	default:
		return false
	}
}

// Watcher emits the value of a Redis key whenever it is written.
//
// Keyspace notifications must be enabled on the server:
//
//	CONFIG SET notify-keyspace-events KA
//
// Deleting or expiring the key emits nothing; a Feed keeps the last value.
type Watcher struct {
	client *redis.Client
	key    string
	db     int
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDB sets the database index used for the keyspace channel. It must
// match the DB the client is connected to. Default: 0.
func WithDB(db int) Option {
	return func(w *Watcher) {
		w.db = db
	}
}

// New creates a Watcher for key.
func New(client *redis.Client, key string, opts ...Option) *Watcher {
	w := &Watcher{
		client: client,
		key:    key,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch subscribes to the key's keyspace channel, emits the current value if
// the key exists, then emits the value again after every write that changes
// it.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	channel := fmt.Sprintf("__keyspace@%d__:%s", w.db, w.key)
	pubsub := w.client.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so no write is missed between
	// the initial read and the first notification.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer pubsub.Close()

		var last []byte
		emit := func() bool {
			val, err := w.client.Get(ctx, w.key).Bytes()
			if err != nil || bytes.Equal(val, last) {
				return ctx.Err() == nil
			}
			last = val
			select {
			case out <- val:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if !isWrite(msg.Payload) {
					continue
				}
				if !emit() {
					return
				}
			}
		}
	}()

	return out, nil
}
