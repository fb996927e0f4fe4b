// Package nats provides a relay.Watcher for a key in a NATS JetStream
// key-value bucket.
package nats

import (
	"bytes"
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/zoobzio/relay"
)

var _ relay.Watcher = (*Watcher)(nil)

// Watcher emits the value of a KV key on every put.
// Deletes and purges emit nothing; a Feed keeps the last value.
type Watcher struct {
	kv  jetstream.KeyValue
	key string
}

// New creates a Watcher for key in kv.
func New(kv jetstream.KeyValue, key string) *Watcher {
	return &Watcher{kv: kv, key: key}
}

// Watch starts a KV watch. The bucket replays the latest entry first, so the
// current value is emitted immediately when the key exists.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	updates, err := w.kv.Watch(ctx, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to watch key %s: %w", w.key, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer updates.Stop() //nolint:errcheck // best effort on shutdown

		var last []byte
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-updates.Updates():
				if !ok {
					return
				}
				// A nil entry marks the end of the initial replay.
				if entry == nil || entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				value := entry.Value()
				if last != nil && bytes.Equal(value, last) {
					continue
				}
				last = value

				select {
				case out <- value:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
